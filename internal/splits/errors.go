package splits

import "errors"

var (
	// ErrConfigMismatch is returned when a persisted record's sections differ
	// from the configured sequence. Such a record must not be compared index-wise.
	ErrConfigMismatch = errors.New("section sequence mismatch")

	// ErrMalformedRecord is returned when a persisted record cannot be parsed.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrIncompleteRun is returned when a run handed to the merge engine is
	// missing a time or has decreasing times.
	ErrIncompleteRun = errors.New("run is incomplete")

	// ErrInvalidSequence is returned for an empty or ambiguous section sequence.
	ErrInvalidSequence = errors.New("invalid section sequence")

	// ErrUnknownGame is returned when no section sequence is stored for a game.
	ErrUnknownGame = errors.New("unknown game")

	// ErrNotFinished is returned by Retry and Discard when there is no finished
	// run awaiting persistence.
	ErrNotFinished = errors.New("no finished run pending")

	// ErrFinalizing is returned by Retry while persistence is already in flight.
	ErrFinalizing = errors.New("finished run is being persisted")
)
