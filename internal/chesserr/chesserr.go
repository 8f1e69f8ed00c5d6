// Package chesserr defines the typed error kinds shared across chessmate's
// components so CLI exit codes and HTTP status codes can be table-driven
// rather than derived from ad-hoc string matching.
package chesserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry policy and surfacing.
type Kind string

const (
	// BadInput covers malformed PGN, empty questions, and other caller
	// mistakes. Surfaced to the caller; never retried.
	BadInput Kind = "bad_input"
	// NoMoves marks a game with zero parsed moves. Per-game; the ingest
	// run continues with the next game.
	NoMoves Kind = "no_moves"
	// IllegalMove marks a game that failed SAN replay at a given ply.
	// Per-game; the ingest run continues.
	IllegalMove Kind = "illegal_move"
	// QueueSaturated means the pending embedding queue exceeded its
	// admission threshold. Aborts the ingest run.
	QueueSaturated Kind = "queue_saturated"
	// Transient covers network errors, 5xx, and 429s from external
	// collaborators. Retried by the component that owns retry policy.
	Transient Kind = "transient"
	// Unavailable means a dependency is down or timed out. Vector store
	// unavailability degrades a query; metadata store unavailability
	// fails it.
	Unavailable Kind = "unavailable"
	// DuplicateGame means the same (white, black, date, event, round)
	// tuple with identical PGN text already exists.
	DuplicateGame Kind = "duplicate_game"
	// BadEncoding means the input stream was not valid UTF-8.
	BadEncoding Kind = "bad_encoding"
	// Fatal marks an invariant violation the process reclaims and logs
	// rather than crashing on.
	Fatal Kind = "fatal"
)

// Error is a typed, wrapped error carrying a Kind alongside the
// underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Ply     int // populated for IllegalMove; zero otherwise
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, chesserr.New(kind, "")) by comparing Kind
// alone, ignoring Message and Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithPly attaches a ply number to an IllegalMove error.
func WithPly(kind Kind, message string, ply int) *Error {
	return &Error{Kind: kind, Message: message, Ply: ply}
}

// KindOf extracts the Kind of err, walking the unwrap chain. It returns
// ("", false) if err does not carry a chesserr.Error anywhere in its chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err's Kind matches kind, walking the unwrap chain
// the same way KindOf does.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
