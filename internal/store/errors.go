package store

import "errors"

var (
	// ErrNotFound is returned by point lookups that match nothing.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateSource means a MessageRecord with the same source message id
	// already exists: another replica won the allocation race.
	ErrDuplicateSource = errors.New("store: duplicate source message id")

	// ErrDuplicateCCID means the generated CC-ID collided with an existing row;
	// the caller should regenerate and retry.
	ErrDuplicateCCID = errors.New("store: duplicate cc-id")

	// ErrDuplicateDelivery means a delivery for (cc-id, target) is already
	// recorded.
	ErrDuplicateDelivery = errors.New("store: duplicate delivery")
)
