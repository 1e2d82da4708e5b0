package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrUserNotFound is returned when no profile exists for a user ID or email.
	ErrUserNotFound = errors.New("user not found")
	// ErrAdminNotFound is returned when the user holds no admin membership.
	ErrAdminNotFound = errors.New("admin membership not found")
	// ErrCredentialNotFound is returned when no password is enrolled for an email.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrEmailTaken is returned when enrolling an email that already has a credential.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvestmentNotFound is returned when an investment ID does not exist.
	ErrInvestmentNotFound = errors.New("investment not found")
)
