package core

import "net/http"

// APIError is the error body returned by the HTTP API:
// {"error": "...", "details": "..."}.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.UserMessage()
}

// UserMessage prefers details, then the error field, then a generic text
// for the status code.
func (e *APIError) UserMessage() string {
	switch {
	case e.Details != "":
		return e.Details
	case e.Message != "":
		return e.Message
	case e.Status != 0:
		return "request failed: " + http.StatusText(e.Status)
	default:
		return "request failed"
	}
}
