package domain

import "errors"

var (
	// ErrNotFound is returned when a lookup by id finds nothing.
	ErrNotFound = errors.New("domain: not found")

	// ErrAlreadyExists is returned on a duplicate insert.
	ErrAlreadyExists = errors.New("domain: already exists")

	// ErrOwnershipLost is returned when a worker attempts to mutate a
	// work item it no longer holds (lost a heartbeat race, was killed,
	// or the item was reassigned).
	ErrOwnershipLost = errors.New("domain: work item ownership lost")

	// ErrInvalidTransition is returned when a status change would
	// violate the work item or worker lifecycle.
	ErrInvalidTransition = errors.New("domain: invalid status transition")

	// ErrFileLocked is returned when one or more paths in a lock
	// request are already held by another worker.
	ErrFileLocked = errors.New("domain: file already locked")

	// ErrQueueEmpty is returned when no claimable work item exists.
	ErrQueueEmpty = errors.New("domain: queue empty")
)
