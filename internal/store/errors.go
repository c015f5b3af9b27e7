package store

import "errors"

var (
	// ErrNotFound is returned when a queue item or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownEntityType is returned for entity types outside the closed
	// domain set.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrNotDeadLettered is returned when a requeue targets a row that is
	// not dead-lettered.
	ErrNotDeadLettered = errors.New("queue item is not dead-lettered")
)
