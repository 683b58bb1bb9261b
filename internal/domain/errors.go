package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure. No infrastructure dependency.

var (
	// Lookup errors
	ErrNotFound     = errors.New("not found")
	ErrUnknownRepo  = errors.New("tracked repository not found")
	ErrInvalidInput = errors.New("invalid input")

	// State machine errors
	ErrInvalidState    = errors.New("challenge not completed")
	ErrAlreadyClaimed  = errors.New("reward already claimed")
	ErrAlreadyUnlocked = errors.New("achievement already unlocked")

	// XP errors
	ErrInvalidAmount = errors.New("xp amount must be positive")

	// Store errors. Wrapped around the driver error so callers can match both.
	ErrPersistence = errors.New("persistence failure")
)
