package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Kind classifies AI failures so callers can word them differently.
type Kind int

const (
	// KindRequest is any failure not covered below, such as a network error.
	KindRequest Kind = iota
	// KindConfiguration means no usable credential is configured.
	KindConfiguration
	// KindBackendRejection means the backend refused the credential.
	KindBackendRejection
	// KindMalformedResponse means the reply could not be parsed.
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindBackendRejection:
		return "backend rejection"
	case KindMalformedResponse:
		return "malformed response"
	default:
		return "request"
	}
}

// Error is a classified AI failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ai %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("ai %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoCredential is wrapped by configuration errors.
var ErrNoCredential = errors.New("no API key configured")

// KindOf returns the kind of err, KindRequest for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRequest
}

// UserMessage maps an AI failure to the single line shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindConfiguration:
		return "No Gemini API key is configured. Set one with --set-key or the GEMINI_API_KEY environment variable."
	case KindBackendRejection:
		return "The Gemini API rejected the configured API key. Check that it is valid and has access to the selected model."
	case KindMalformedResponse:
		return "The AI returned a response that could not be understood. Try rephrasing your request."
	default:
		cause := err
		var e *Error
		if errors.As(err, &e) && e.Err != nil {
			cause = e.Err
		}
		return fmt.Sprintf("The AI request failed: %v", cause)
	}
}

// classify wraps a backend error into *Error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	if rejectedCredential(err) {
		return &Error{Kind: KindBackendRejection, Op: op, Err: err}
	}
	return &Error{Kind: KindRequest, Op: op, Err: err}
}

func rejectedCredential(err error) bool {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return false
	}
	if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return apiErr.Code == http.StatusBadRequest &&
		(strings.Contains(msg, "api key") || strings.Contains(msg, "api_key"))
}
