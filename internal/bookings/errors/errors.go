package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrDuplicateID = errors.New("booking id already exists")

	ErrFeedClosed = errors.New("booking feed closed")
)
