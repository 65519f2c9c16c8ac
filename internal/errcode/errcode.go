// Package errcode is the operational error vocabulary mutation callers
// attach to error responses. The tracker and builder never raise these
// codes themselves; they are constructed by the caller's mutation logic
// and carried on the response envelope as gqlerror extensions.
package errcode

import (
	"errors"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Code is a machine-readable operational error kind.
type Code string

const (
	Timeout            Code = "TIMEOUT"
	RateLimited        Code = "RATE_LIMITED"
	ServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	ValidationError    Code = "VALIDATION_ERROR"
	NotFound           Code = "NOT_FOUND"
	Unauthorized       Code = "UNAUTHORIZED"
	Forbidden          Code = "FORBIDDEN"
	Conflict           Code = "CONFLICT"
	Internal           Code = "INTERNAL_ERROR"
)

// New returns a wire error carrying code in its extensions.
func New(code Code, message string) *gqlerror.Error {
	return &gqlerror.Error{
		Message:    message,
		Extensions: map[string]any{"code": string(code)},
	}
}

// Wrap attaches code to err's message.
func Wrap(code Code, err error) *gqlerror.Error {
	return New(code, err.Error())
}

// FromError reports the code attached to err, if any.
func FromError(err error) (Code, bool) {
	var ge *gqlerror.Error
	if errors.As(err, &ge) && ge.Extensions != nil {
		if s, ok := ge.Extensions["code"].(string); ok {
			return Code(s), true
		}
	}
	return "", false
}
