package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidPolicy = errors.New("invalid security policy")

	// Authentication outcomes. Wrong password and unknown email both map to
	// ErrInvalidCredentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa code required")
	ErrInvalidMFACode     = errors.New("invalid mfa code")
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")

	// Lockout outcomes.
	ErrAccountLocked      = errors.New("account is locked")
	ErrTooManyAttempts    = errors.New("account temporarily locked due to repeated failures")
	ErrLockedAfterAttempt = errors.New("account locked after repeated failed attempts")
	ErrAccountNotActive   = errors.New("account is not active")
)
