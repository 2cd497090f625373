package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes classify failures raised anywhere in the generation pipeline.
const (
	CodeConfiguration    = "CONFIGURATION"
	CodeGeneration       = "GENERATION"
	CodeContentParse     = "CONTENT_PARSE"
	CodeTemplateNotFound = "TEMPLATE_NOT_FOUND"
	CodeArtifactStore    = "ARTIFACT_STORE"
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION"
)

// AppError is a structured error carrying a machine-readable code.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Section string `json:"section,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Section != "" {
		msg = fmt.Sprintf("%s (section %s)", msg, e.Section)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches diagnostic detail, e.g. a raw model snippet.
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// Retryable reports whether re-running the failed step can succeed.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case CodeConfiguration, CodeTemplateNotFound, CodeValidation, CodeNotFound:
		return false
	default:
		return true
	}
}

// HTTPStatus maps the code to a response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeTemplateNotFound:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConfiguration:
		return http.StatusUnprocessableEntity
	case CodeArtifactStore, CodeGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Configuration(message string) *AppError {
	return &AppError{Code: CodeConfiguration, Message: message}
}

func Generation(message string, err error) *AppError {
	return &AppError{Code: CodeGeneration, Message: message, Err: err}
}

// ContentParse reports a model response that could not be decoded for section.
func ContentParse(section string, err error) *AppError {
	return &AppError{Code: CodeContentParse, Message: "model response is not valid content", Section: section, Err: err}
}

func TemplateNotFound(templateID string) *AppError {
	return &AppError{Code: CodeTemplateNotFound, Message: fmt.Sprintf("template %q not found", templateID)}
}

func ArtifactStore(message string, err error) *AppError {
	return &AppError{Code: CodeArtifactStore, Message: message, Err: err}
}

func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func Validation(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

// As extracts the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// IsRetryable treats unknown errors as transient.
func IsRetryable(err error) bool {
	if IsFinal(err) {
		return false
	}
	if appErr, ok := As(err); ok {
		return appErr.Retryable()
	}
	return true
}

// Sanitize returns the message safe to expose on a job record.
// Wrapped causes (HTTP bodies, driver errors) are dropped.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, errDeadline) {
		return "pipeline timed out"
	}
	if errors.Is(err, errCancelled) {
		return "pipeline cancelled"
	}
	if appErr, ok := As(err); ok {
		if appErr.Section != "" {
			return fmt.Sprintf("%s: %s (section %s)", appErr.Code, appErr.Message, appErr.Section)
		}
		return fmt.Sprintf("%s: %s", appErr.Code, appErr.Message)
	}
	return "internal error"
}

var (
	errDeadline  = errors.New("deadline")
	errCancelled = errors.New("cancelled")
)

// Timeout marks a pipeline that exceeded its wall-clock budget.
func Timeout(err error) error {
	return fmt.Errorf("%w: %w", errDeadline, err)
}

// Cancelled marks a pipeline abandoned because its caller went away, e.g. a worker shutdown.
func Cancelled(err error) error {
	return fmt.Errorf("%w: %w", errCancelled, err)
}

type finalError struct {
	err error
}

func (e *finalError) Error() string { return e.err.Error() }
func (e *finalError) Unwrap() error { return e.err }

// Final marks a failure that is already recorded on its job; redelivery cannot change the outcome.
func Final(err error) error {
	if err == nil {
		return nil
	}
	return &finalError{err: err}
}

func IsFinal(err error) bool {
	var f *finalError
	return errors.As(err, &f)
}
