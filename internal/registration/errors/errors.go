package errors

import "errors"

var (
	ErrSessionNotFound = errors.New("registration session not found")

	ErrRegistryClosed = errors.New("registration registry closed")
)
