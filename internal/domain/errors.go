package domain

import "errors"

// Error taxonomy for the evaluation pipeline. Callers match with errors.Is;
// wrap with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrBadQuote marks a malformed quote (non-positive price, missing key
	// fields). The leg is skipped; the cycle continues.
	ErrBadQuote = errors.New("malformed quote")

	// ErrStaleQuote marks a quote older than the staleness threshold.
	// The leg is dropped; the cycle continues.
	ErrStaleQuote = errors.New("stale quote")

	// ErrNoEdge is the valid zero-recommendation outcome: Kelly fraction at
	// or below zero, or EV below the configured minimum.
	ErrNoEdge = errors.New("no edge")

	// ErrDuplicate means the identity key was already issued within the
	// dedup lookback window.
	ErrDuplicate = errors.New("duplicate recommendation")

	// ErrInsufficientCandidates means a grouping could not fill its minimum
	// leg count band. Only that grouping is affected.
	ErrInsufficientCandidates = errors.New("insufficient candidates")

	// ErrExternalUnavailable means a data or model provider stayed
	// unreachable after bounded retries. Aborts the affected cycle scope.
	ErrExternalUnavailable = errors.New("external provider unavailable")

	// ErrConcurrencyConflict means the accept-and-record race was lost to a
	// concurrent cycle. Treated as ErrDuplicate by callers.
	ErrConcurrencyConflict = errors.New("concurrent issuance conflict")

	// ErrBankrollDepleted halts further staking in a backtest run once the
	// simulated bankroll reaches zero.
	ErrBankrollDepleted = errors.New("bankroll depleted")
)
