package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrSchema             = errors.New("schema violation")
	ErrParse              = errors.New("metadata parse failed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrIndeterminate      = errors.New("metric unavailable")
	ErrUnauthorized       = errors.New("adjudicator identity mismatch")
	ErrChainSubmission    = errors.New("chain transaction failed")
	ErrForbiddenOperation = errors.New("operation rejected by policy")
	ErrRateLimited        = errors.New("rate limited")
	ErrLockHeld           = errors.New("lock already held")
)

// SchemaError reports a missing or invalid required field. It is rejected at
// the boundary before any write.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation: field %q: %s", e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ParseError reports malformed question metadata naming the offending field.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("metadata parse failed: %s: %s", e.Field, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// InvalidTransitionError reports a disallowed status transition. The market
// is left unchanged.
type InvalidTransitionError struct {
	MarketID string
	From     MarketStatus
	To       MarketStatus
	Reason   string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid status transition for %s: %s -> %s", e.MarketID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
