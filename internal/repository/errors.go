package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicateDelivery means a sent record already exists for the user and day.
	ErrDuplicateDelivery = errors.New("delivery already recorded for user and day")
)
