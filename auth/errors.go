package auth

import (
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Error is a non-2xx response from the auth endpoints. Transport
// failures are returned as-is and are never wrapped in an Error, so
// callers can tell a rejection from a transient network problem.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth: %s (status %d)", e.Message, e.Status)
}

// Unauthorized reports whether the call was rejected with a 401.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// apiError extracts the human-readable message the auth service puts in
// error_description, msg, or message depending on the endpoint.
func apiError(resp *resty.Response) *Error {
	body := resp.Body()
	msg := gjson.GetBytes(body, "error_description").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "msg").String()
	}
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	if msg == "" {
		msg = resp.Status()
	}
	return &Error{Status: resp.StatusCode(), Message: msg}
}
