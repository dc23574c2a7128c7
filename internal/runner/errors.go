package runner

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// maxBodySnippet bounds how much of a failed response body is kept.
const maxBodySnippet = 512

// RequestError is a failed prediction request: either a non-2xx response
// (StatusCode and Body set) or a transport failure (Err set).
type RequestError struct {
	StatusCode int
	Body       string
	Err        error
}

// NewStatusError builds a RequestError from a non-2xx response body.
func NewStatusError(status int, body []byte) *RequestError {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxBodySnippet {
		cut := maxBodySnippet
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut] + "..."
	}
	return &RequestError{StatusCode: status, Body: snippet}
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Message returns the backend's error message when the body carries the
// usual {"error": {"message": ...}} or {"error": "..."} envelope, and the
// raw body snippet otherwise.
func (e *RequestError) Message() string {
	if e.Body == "" {
		return ""
	}
	if gjson.Valid(e.Body) {
		if msg := gjson.Get(e.Body, "error.message"); msg.Type == gjson.String {
			return msg.String()
		}
		if msg := gjson.Get(e.Body, "error"); msg.Type == gjson.String {
			return msg.String()
		}
	}
	return e.Body
}
