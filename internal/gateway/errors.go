package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind tags an Error so callers can branch without string matching.
type Kind string

const (
	// KindTransport is a 4xx/5xx response (validation, not found, forbidden, server error).
	KindTransport Kind = "transport"
	// KindAuth is a 401 or a response whose message says the session is no longer valid.
	KindAuth Kind = "auth"
	// KindNetwork covers unreachable servers and malformed or missing bodies.
	KindNetwork Kind = "network"
	// KindPrecondition is raised locally before any request is issued.
	KindPrecondition Kind = "precondition"
)

const (
	msgGeneric   = "Something went wrong. Please try again."
	msgNetwork   = "Could not reach the server."
	msgMalformed = "The server returned a malformed response."
)

// Error is the single failure shape every gateway call returns.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// IsAuth reports whether err means the session is expired or invalid.
func IsAuth(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == KindAuth
	}
	return false
}

// KindOf returns the tagged kind of err, or "" when err is not a gateway error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Status
	}
	return 0
}

// Message returns the human-readable text for any error, falling back to a
// generic message when err carries none.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if s := strings.TrimSpace(err.Error()); s != "" {
		return s
	}
	return msgGeneric
}

// Precondition builds a local precondition failure.
func Precondition(msg string, cause error) *Error {
	return &Error{Kind: KindPrecondition, Message: msg, Err: cause}
}

var authPatterns = []string{
	"could not validate credentials",
	"not authenticated",
	"token has expired",
	"signature has expired",
	"session expired",
	"session may have expired",
}

func looksLikeAuth(msg string) bool {
	m := strings.ToLower(msg)
	for _, p := range authPatterns {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

// errorFromResponse normalizes a non-2xx response body into an *Error.
func errorFromResponse(status int, body []byte) *Error {
	msg := detailMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("Request failed with status %d.", status)
	}
	kind := KindTransport
	if status == http.StatusUnauthorized || looksLikeAuth(msg) {
		kind = KindAuth
	}
	return &Error{Kind: kind, Status: status, Message: msg}
}

// detailMessage extracts the backend's "detail" field. FastAPI sends either a
// string or a list of validation entries with "msg" fields.
func detailMessage(body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return ""
	}
	var env struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		// Non-JSON body: plain text is still more useful than a status code.
		txt := strings.TrimSpace(string(body))
		if strings.HasPrefix(txt, "<") {
			return ""
		}
		if len(txt) > 200 {
			txt = txt[:200]
		}
		return txt
	}
	if len(env.Detail) > 0 {
		var s string
		if err := json.Unmarshal(env.Detail, &s); err == nil {
			return strings.TrimSpace(s)
		}
		var entries []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(env.Detail, &entries); err == nil {
			parts := make([]string, 0, len(entries))
			for _, e := range entries {
				if m := strings.TrimSpace(e.Msg); m != "" {
					parts = append(parts, m)
				}
			}
			return strings.Join(parts, "; ")
		}
	}
	return strings.TrimSpace(env.Message)
}
