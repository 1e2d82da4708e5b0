//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
)

// projectedReturnMultiplier is a flat placeholder; there is no return model.
const projectedReturnMultiplier = 1.12

// InvestmentStatus tracks where a deposit is in its lifecycle.
type InvestmentStatus string

const (
	InvestmentStatusActive    InvestmentStatus = "active"
	InvestmentStatusPending   InvestmentStatus = "pending"
	InvestmentStatusWithdrawn InvestmentStatus = "withdrawn"
)

// Valid reports whether the status is supported.
func (s InvestmentStatus) Valid() bool {
	switch s {
	case InvestmentStatusActive, InvestmentStatusPending, InvestmentStatusWithdrawn:
		return true
	default:
		return false
	}
}

// ParseInvestmentStatus normalizes a status string, defaulting to active when empty.
func ParseInvestmentStatus(value string) (InvestmentStatus, bool) {
	status := InvestmentStatus(strings.ToLower(strings.TrimSpace(value)))
	if status == "" {
		return InvestmentStatusActive, true
	}
	if status.Valid() {
		return status, true
	}
	return "", false
}

// ProjectedReturnFor returns the projected value of a deposit.
func ProjectedReturnFor(deposit float64) float64 {
	return deposit * projectedReturnMultiplier
}

// Investment is a single deposit recorded by a user.
type Investment struct {
	ID              string           `json:"id"               db:"id"`
	UserID          string           `json:"user_id"          db:"user_id"`
	UserEmail       string           `json:"user_email"       db:"user_email"`
	DepositAmount   float64          `json:"deposit_amount"   db:"deposit_amount"`
	WithdrawalDate  time.Time        `json:"withdrawal_date"  db:"withdrawal_date"`
	Status          InvestmentStatus `json:"status"           db:"status"`
	ProjectedReturn float64          `json:"projected_return" db:"projected_return"`
	CreatedAt       time.Time        `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"       db:"updated_at"`
}

// CreateInvestmentRequest represents parameters to record a new investment.
// UserID and UserEmail are taken from the signed-in principal, never from the form.
type CreateInvestmentRequest struct {
	UserID         string           `json:"-"`
	UserEmail      string           `json:"-"`
	DepositAmount  float64          `json:"deposit_amount"`
	WithdrawalDate time.Time        `json:"withdrawal_date"`
	Status         InvestmentStatus `json:"status,omitempty"`
}

// Validate validates CreateInvestmentRequest against now.
func (r *CreateInvestmentRequest) Validate(now time.Time) error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if err := ValidateDepositAmount(r.DepositAmount); err != nil {
		return err
	}
	if err := ValidateWithdrawalDate(r.WithdrawalDate, now); err != nil {
		return err
	}
	status, ok := ParseInvestmentStatus(string(r.Status))
	if !ok {
		return errors.New("status must be one of: active, pending, withdrawn")
	}
	r.Status = status
	return nil
}

// UpdateInvestmentRequest carries the fields an admin may edit.
type UpdateInvestmentRequest struct {
	DepositAmount  *float64          `json:"deposit_amount,omitempty"`
	WithdrawalDate *time.Time        `json:"withdrawal_date,omitempty"`
	Status         *InvestmentStatus `json:"status,omitempty"`
}

// HasUpdates reports whether any field is set.
func (r UpdateInvestmentRequest) HasUpdates() bool {
	return r.DepositAmount != nil || r.WithdrawalDate != nil || r.Status != nil
}

// Validate validates UpdateInvestmentRequest. Admin edits may move a withdrawal date into the
// past, so only the amount and status are range checked.
func (r *UpdateInvestmentRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.DepositAmount != nil {
		if err := ValidateDepositAmount(*r.DepositAmount); err != nil {
			return err
		}
	}
	if r.WithdrawalDate != nil && r.WithdrawalDate.IsZero() {
		return ErrWithdrawalDateRequired
	}
	if r.Status != nil {
		status, ok := ParseInvestmentStatus(string(*r.Status))
		if !ok || strings.TrimSpace(string(*r.Status)) == "" {
			return errors.New("status must be one of: active, pending, withdrawn")
		}
		r.Status = &status
	}
	return nil
}

// InvestmentStats aggregates a set of investments for the dashboard cards.
type InvestmentStats struct {
	Count          int     `json:"count"`
	TotalInvested  float64 `json:"total_invested"`
	TotalProjected float64 `json:"total_projected"`
	ActiveCount    int     `json:"active_count"`
	PendingCount   int     `json:"pending_count"`
	WithdrawnCount int     `json:"withdrawn_count"`
}

// ComputeInvestmentStats sums deposits and counts statuses.
func ComputeInvestmentStats(items []*Investment) InvestmentStats {
	var st InvestmentStats
	for _, inv := range items {
		if inv == nil {
			continue
		}
		st.Count++
		st.TotalInvested += inv.DepositAmount
		st.TotalProjected += inv.ProjectedReturn
		switch inv.Status {
		case InvestmentStatusActive:
			st.ActiveCount++
		case InvestmentStatusPending:
			st.PendingCount++
		case InvestmentStatusWithdrawn:
			st.WithdrawnCount++
		}
	}
	return st
}
