package content

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"landing-page-generator/internal/apperrors"
)

var (
	leadingFence  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```$")
)

const snippetLen = 200

// stripCodeFence removes an optional Markdown code fence around a model reply.
func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = leadingFence.ReplaceAllString(cleaned, "")
	cleaned = trailingFence.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// decodeSection parses raw into T and validates it. Failures become ContentParse errors naming section.
func decodeSection[T any](section, raw string, validate func(T) error) (T, error) {
	var zero T
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return zero, apperrors.ContentParse(section, errors.New("empty payload")).WithDetail(snippet(raw))
	}
	var out T
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(&out); err != nil {
		return zero, apperrors.ContentParse(section, err).WithDetail(snippet(raw))
	}
	if dec.More() {
		return zero, apperrors.ContentParse(section, errors.New("trailing data after JSON value")).WithDetail(snippet(raw))
	}
	if validate != nil {
		if err := validate(out); err != nil {
			return zero, apperrors.ContentParse(section, err).WithDetail(snippet(raw))
		}
	}
	return out, nil
}

func snippet(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= snippetLen {
		return raw
	}
	n := snippetLen
	for n > 0 && !utf8.RuneStart(raw[n]) {
		n--
	}
	return raw[:n] + "..."
}
