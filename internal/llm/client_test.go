package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestChatSendsMessagesAndReturnsContent(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  {\"ok\":true}  "}}]}`)
	}))
	defer srv.Close()

	client, err := NewClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "json only"},
		{Role: "user", Content: "hello"},
	}, ChatOptions{MaxTokens: 300})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("content = %q", out)
	}
	if got.Model != models.DefaultModel {
		t.Fatalf("model = %q", got.Model)
	}
	if got.MaxTokens != 300 || got.Temperature != defaultTemperature {
		t.Fatalf("unexpected options %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestChatErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{name: "server_error", status: 500, body: `{"error":{"message":"overloaded"}}`, code: apperrors.CodeGeneration},
		{name: "unauthorized", status: 401, body: `{"error":{"message":"bad key"}}`, code: apperrors.CodeConfiguration},
		{name: "no_choices", status: 200, body: `{"choices":[]}`, code: apperrors.CodeGeneration},
		{name: "empty_content", status: 200, body: `{"choices":[{"message":{"content":"   "}}]}`, code: apperrors.CodeGeneration},
		{name: "not_json", status: 200, body: `<html>`, code: apperrors.CodeGeneration},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Options{
				APIKey: "k",
				HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
					return &http.Response{
						StatusCode: tc.status,
						Body:       io.NopCloser(strings.NewReader(tc.body)),
						Header:     make(http.Header),
					}, nil
				})},
			})
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			_, err = client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
			if !apperrors.HasCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestChatTransportFailure(t *testing.T) {
	client, _ := NewClient(Options{
		APIKey: "k",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection reset")
		})},
	})
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	if !apperrors.HasCode(err, apperrors.CodeGeneration) {
		t.Fatalf("expected GENERATION, got %v", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Fatal("transport failures must be retryable")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Options{APIKey: "  "})
	if !apperrors.HasCode(err, apperrors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION, got %v", err)
	}
}

func TestFactoryUsesCredentialModel(t *testing.T) {
	f := NewHTTPFactory("http://localhost", 0)
	c, err := f.New(models.Credentials{APIKey: "k", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.(*Client).Model() != "gpt-4o" {
		t.Fatalf("model = %s", c.(*Client).Model())
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	body := `{"error":"geçersiz istek: ` + strings.Repeat("ğ", 300) + `"}`
	for _, n := range []int{0, 27, 28, 29, 256, 512} {
		got := truncate(body, n)
		if len(got) > n || !utf8.ValidString(got) {
			t.Fatalf("truncate(%d) = %d bytes, valid=%v", n, len(got), utf8.ValidString(got))
		}
	}
	if truncate("kısa", 100) != "kısa" {
		t.Fatal("short input must be returned unchanged")
	}
}
