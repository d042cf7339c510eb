package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx backend response decoded into its error payload.
type StatusError struct {
	StatusCode int
	Message    string
	// IsNewUser marks the conflict-class response from the federated
	// exchange endpoint: the identity is valid but has no role yet.
	IsNewUser bool
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// AsStatusError unwraps err to a StatusError, if it is one.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsStatus reports whether err is a StatusError with the given status code.
func IsStatus(err error, code int) bool {
	se, ok := AsStatusError(err)
	return ok && se.StatusCode == code
}

// IsNewUserConflict reports whether err is the federated-exchange response
// signalling a new identity that must pick a role before a session exists.
func IsNewUserConflict(err error) bool {
	se, ok := AsStatusError(err)
	return ok && se.StatusCode == http.StatusConflict && se.IsNewUser
}

// errorBody is the backend's error payload shape.
type errorBody struct {
	Message   string `json:"message"`
	Error     string `json:"error"`
	IsNewUser bool   `json:"isNewUser"`
}
