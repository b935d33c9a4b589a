package errors

import "errors"

var (
	ErrCalendarNotFound = errors.New("availability calendar not found")

	ErrCapacityNotFound = errors.New("capacity not found")

	ErrUnknownCollector = errors.New("unknown collector")
)
