package domain

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInvalidTarget marks a delivery target that can never succeed.
	ErrInvalidTarget = errors.New("invalid delivery target")
)
