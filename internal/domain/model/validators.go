//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	// MaxDepositAmount caps a single investment deposit.
	MaxDepositAmount = 10_000_000
	// MinPasswordLen is the minimum accepted password length.
	MinPasswordLen = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	ErrEmailRequired          = errors.New("email is required")
	ErrEmailInvalid           = errors.New("please enter a valid email address")
	ErrPasswordRequired       = errors.New("password is required")
	ErrPasswordTooShort       = errors.New("password must be at least 6 characters long")
	ErrAmountNotPositive      = errors.New("investment amount must be greater than 0")
	ErrAmountTooLarge         = errors.New("investment amount cannot exceed $10,000,000")
	ErrWithdrawalDateRequired = errors.New("withdrawal date is required")
	ErrWithdrawalDatePast     = errors.New("withdrawal date must be in the future")
)

// ValidateEmail checks the address has a local part, a domain and a dot in the domain.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	if !emailPattern.MatchString(email) {
		return ErrEmailInvalid
	}
	return nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) < MinPasswordLen {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidateDepositAmount accepts amounts in (0, MaxDepositAmount].
func ValidateDepositAmount(amount float64) error {
	if amount <= 0 {
		return ErrAmountNotPositive
	}
	if amount > MaxDepositAmount {
		return ErrAmountTooLarge
	}
	return nil
}

// ValidateWithdrawalDate requires a date strictly after the start of today in now's location.
func ValidateWithdrawalDate(date, now time.Time) error {
	if date.IsZero() {
		return ErrWithdrawalDateRequired
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if !date.After(today) {
		return ErrWithdrawalDatePast
	}
	return nil
}
