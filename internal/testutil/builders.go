// Package testutil provides testing utilities and helpers for the dhanmatrix services.
package testutil

import (
	"time"

	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
)

// InvestmentRequestBuilder provides a fluent interface for building CreateInvestmentRequest objects for testing.
type InvestmentRequestBuilder struct {
	req *model.CreateInvestmentRequest
}

// NewInvestmentRequest creates a new InvestmentRequestBuilder with sensible defaults:
// a 5000 deposit withdrawn thirty days after TestTime.
func NewInvestmentRequest(userID string) *InvestmentRequestBuilder {
	return &InvestmentRequestBuilder{
		req: &model.CreateInvestmentRequest{
			UserID:         userID,
			UserEmail:      userID + "@example.com",
			DepositAmount:  5000,
			WithdrawalDate: TestTime().AddDate(0, 0, 30),
			Status:         model.InvestmentStatusActive,
		},
	}
}

// WithEmail sets the owner's email.
func (b *InvestmentRequestBuilder) WithEmail(email string) *InvestmentRequestBuilder {
	b.req.UserEmail = email
	return b
}

// WithAmount sets the deposit amount.
func (b *InvestmentRequestBuilder) WithAmount(amount float64) *InvestmentRequestBuilder {
	b.req.DepositAmount = amount
	return b
}

// WithWithdrawalDate sets the withdrawal date.
func (b *InvestmentRequestBuilder) WithWithdrawalDate(date time.Time) *InvestmentRequestBuilder {
	b.req.WithdrawalDate = date
	return b
}

// WithStatus sets the status.
func (b *InvestmentRequestBuilder) WithStatus(status model.InvestmentStatus) *InvestmentRequestBuilder {
	b.req.Status = status
	return b
}

// Build returns the constructed CreateInvestmentRequest.
func (b *InvestmentRequestBuilder) Build() *model.CreateInvestmentRequest {
	return b.req
}

// NewUserProfile returns a profile keyed by userID with a derived email.
func NewUserProfile(userID string) *model.UserProfile {
	return &model.UserProfile{
		UserID:      userID,
		Email:       userID + "@example.com",
		DisplayName: userID,
		CreatedAt:   TestTime(),
	}
}
