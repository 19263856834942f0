package domain

import "errors"

var (
	// ErrNoQuoteAvailable means matching was attempted before any usable quote existed.
	ErrNoQuoteAvailable = errors.New("no quote available")
	// ErrInvalidOrder rejects an order before it reaches the matching engine.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidFill rejects a fill before it reaches ledger state.
	ErrInvalidFill = errors.New("invalid fill")
	// ErrUnknownInstrument is returned for a fill without an instrument identifier.
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrInconsistentPositionSide signals a bypassed ledger split; it is raised as a panic.
	ErrInconsistentPositionSide = errors.New("inconsistent position side")
	// ErrStaleMark is reported when a position could not be marked with a fresh quote.
	ErrStaleMark = errors.New("stale mark")
	// ErrInvalidQuote covers crossed or non-positive quotes.
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrRunNotFound is returned by run repositories for an unknown run ID.
	ErrRunNotFound = errors.New("run not found")
)
