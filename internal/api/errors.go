package api

import (
	"errors"
	"fmt"
	"net/http"

	"layanan/internal/models"
)

// NetworkError is a transport failure: timeout, refused connection, cancelled wait.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerRejection is a response the backend refused, either success:false in a 2xx
// body or a non-2xx status.
type ServerRejection struct {
	StatusCode int
	Message    string
}

func (e *ServerRejection) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected request (http %d)", e.StatusCode)
	}
	return fmt.Sprintf("server rejected request (http %d): %s", e.StatusCode, e.Message)
}

// Unwrap maps 404 to models.ErrNotFound.
func (e *ServerRejection) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	return nil
}

func IsNetwork(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

// RejectionMessage returns the server-provided message, if any.
func RejectionMessage(err error) (string, bool) {
	var r *ServerRejection
	if errors.As(err, &r) && r.Message != "" {
		return r.Message, true
	}
	return "", false
}
