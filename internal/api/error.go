package api

import (
	"encoding/json"
	"fmt"
)

// Error is a non-success response from the backend, carrying the
// server-supplied detail text when one was given.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// newError extracts the detail text from an error body. FastAPI uses
// "detail" for HTTPException; the app's own handlers use "error".
func newError(status int, body []byte) *Error {
	var payload struct {
		Detail string `json:"detail"`
		Err    string `json:"error"`
	}
	detail := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Detail != "":
			detail = payload.Detail
		case payload.Err != "":
			detail = payload.Err
		}
	}
	if detail == "" {
		detail = "request failed"
	}
	return &Error{Status: status, Detail: detail}
}
