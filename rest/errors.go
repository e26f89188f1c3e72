package rest

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Error is a non-2xx response from the row endpoints.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rest: %s (status %d)", e.Message, e.Status)
}

func apiError(resp *resty.Response) *Error {
	body := resp.Body()
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "error").String()
	}
	if msg == "" {
		msg = resp.Status()
	}
	return &Error{Status: resp.StatusCode(), Message: msg}
}
