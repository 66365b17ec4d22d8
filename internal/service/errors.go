package service

import "errors"

// Error kinds surfaced to handlers. Wrap with fmt.Errorf("%w: ...") and
// match with errors.Is.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUpstream       = errors.New("upstream error")
	ErrNotFound       = errors.New("not found")
)
