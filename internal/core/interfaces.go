package core

import (
	"context"

	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// AdminRepository defines data operations for admin memberships.
type AdminRepository interface {
	Get(ctx context.Context, userID string) (*model.AdminMembership, error)
	Upsert(ctx context.Context, m *model.AdminMembership) (*model.AdminMembership, error)
	Delete(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context) ([]*model.AdminMembership, error)
}

// UserRepository defines data operations for user profiles.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*model.UserProfile, error)
	GetByEmail(ctx context.Context, email string) (*model.UserProfile, error)
	// Upsert writes the profile, keeping created_at from the first write.
	Upsert(ctx context.Context, p *model.UserProfile) (*model.UserProfile, error)
}

// CredentialRecord is a stored password hash for an email sign-in.
type CredentialRecord struct {
	UserID       string `db:"user_id"`
	Email        string `db:"email"`
	PasswordHash []byte `db:"password_hash"`
}

// CredentialRepository stores password hashes keyed by normalized email.
type CredentialRepository interface {
	GetByEmail(ctx context.Context, email string) (*CredentialRecord, error)
	Create(ctx context.Context, rec CredentialRecord) error
	UpdateHash(ctx context.Context, userID string, hash []byte) error
}

// InvestmentListOptions controls filtering for listing investments.
// An empty UserID lists every user's investments.
type InvestmentListOptions struct {
	UserID string
	Status *model.InvestmentStatus
	Limit  int
	Offset int
}

// InvestmentRepository defines data operations for investments.
type InvestmentRepository interface {
	Create(ctx context.Context, req *model.CreateInvestmentRequest) (*model.Investment, error)
	GetByID(ctx context.Context, id string) (*model.Investment, error)
	List(ctx context.Context, opts InvestmentListOptions) ([]*model.Investment, error)
	Update(ctx context.Context, id string, req model.UpdateInvestmentRequest) (*model.Investment, error)
	Delete(ctx context.Context, id string) (bool, error)
}
