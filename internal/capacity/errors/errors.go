package errors

import "errors"

var (
	ErrNotFound = errors.New("capacity record not found")

	ErrInvalidDate = errors.New("date must be a valid calendar date in YYYY-MM-DD format")

	ErrInsufficientCapacity = errors.New("not enough seats left")

	ErrCapacityBelowBookings = errors.New("max capacity cannot be lower than current bookings")

	ErrReleaseExceedsBookings = errors.New("release exceeds current bookings")

	ErrReleaseAlreadyApplied = errors.New("release already applied")
)
