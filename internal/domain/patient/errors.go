package patient

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrDuplicateEmail = errors.New("email is already registered")
	ErrAuthFailure    = errors.New("invalid email or password")
	ErrNotFound       = errors.New("record not found")
	ErrStorage        = errors.New("storage error")
	ErrForbidden      = errors.New("operation not permitted for this role")
	ErrNoSession      = errors.New("not logged in")
)
