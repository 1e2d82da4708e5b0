// Package devseed loads demo accounts and investments into a development database.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhanmatrix/dhanmatrix/internal/adapters/passwordauth"
	"github.com/dhanmatrix/dhanmatrix/internal/data"
	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
	"github.com/dhanmatrix/dhanmatrix/internal/service"
)

// DefaultPassword is shared by every seeded account.
const DefaultPassword = "dhanmatrix-dev"

// PromotedByDevSeed marks memberships created by the seeder.
const PromotedByDevSeed = "dev-seed"

// UserLookup finds an existing profile by email.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*model.UserProfile, error)
}

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Passwords   ports.PasswordAuthenticator
	Users       UserLookup
	Investments *service.InvestmentService
	Admin       *service.AdminService
	Now         func() time.Time
}

// NewServices constructs all required services for seeding using the provided DB.
// Writes bypass the document cache; seeded admins are visible once cached entries expire.
func NewServices(db *sql.DB) Services {
	users := data.NewUserRepo(db)
	admins := data.NewAdminRepo(db)
	docs := data.NewDocumentStore(data.DocumentStoreOptions{Admins: admins, Users: users})
	investments := service.NewInvestmentService(service.InvestmentServiceOptions{Repo: data.NewInvestmentRepo(db)})
	return Services{
		Passwords:   passwordauth.NewAuthenticator(data.NewCredentialRepo(db), users, passwordauth.Config{}),
		Users:       users,
		Investments: investments,
		Admin: service.NewAdminService(service.AdminServiceOptions{
			Admins:      admins,
			Users:       users,
			Documents:   docs,
			Investments: investments,
		}),
		Now: time.Now,
	}
}

type seedAccount struct {
	Email       string
	DisplayName string
	Admin       bool
	Deposits    []seedDeposit
}

type seedDeposit struct {
	Amount float64
	Months int
	Status model.InvestmentStatus
}

func defaultAccounts() []seedAccount {
	return []seedAccount{
		{
			Email:       "admin@dhanmatrix.local",
			DisplayName: "Dev Admin",
			Admin:       true,
		},
		{
			Email:       "priya@dhanmatrix.local",
			DisplayName: "Priya Sharma",
			Deposits: []seedDeposit{
				{Amount: 125000, Months: 12, Status: model.InvestmentStatusActive},
				{Amount: 50000, Months: 6, Status: model.InvestmentStatusPending},
			},
		},
		{
			Email:       "arjun@dhanmatrix.local",
			DisplayName: "Arjun Mehta",
			Deposits: []seedDeposit{
				{Amount: 250000, Months: 24, Status: model.InvestmentStatusActive},
				{Amount: 75000, Months: 3, Status: model.InvestmentStatusWithdrawn},
			},
		},
	}
}

// Run seeds every demo account. Accounts that already exist are left alone, so the
// command can be rerun safely.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if svcs.Now != nil {
		now = svcs.Now
	}

	failures := 0
	for _, acct := range defaultAccounts() {
		created, err := seedAccountOnce(ctx, svcs, acct, now())
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed account", "email", acct.Email, "error", err)
			failures++
			continue
		}
		msg := "account already exists"
		if created {
			msg = "seeded account"
		}
		logger.InfoContext(ctx, msg, "email", acct.Email, "admin", acct.Admin, "investments", len(acct.Deposits))
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func seedAccountOnce(ctx context.Context, svcs Services, acct seedAccount, now time.Time) (bool, error) {
	if _, err := svcs.Users.GetByEmail(ctx, acct.Email); err == nil {
		return false, nil
	} else if !errors.Is(err, data.ErrUserNotFound) {
		return false, fmt.Errorf("look up user: %w", err)
	}

	identity, err := svcs.Passwords.Enroll(ctx, ports.CredentialInput{
		Email:       acct.Email,
		Password:    DefaultPassword,
		DisplayName: acct.DisplayName,
	})
	if err != nil {
		return false, fmt.Errorf("enroll: %w", err)
	}

	if acct.Admin {
		if _, err := svcs.Admin.PromoteByEmail(ctx, acct.Email, PromotedByDevSeed); err != nil {
			return true, fmt.Errorf("promote: %w", err)
		}
	}

	p := domainauth.Principal{ID: identity.UserID, Email: identity.Email, DisplayName: identity.DisplayName}
	for _, d := range acct.Deposits {
		if _, err := svcs.Investments.Create(ctx, p, &model.CreateInvestmentRequest{
			DepositAmount:  d.Amount,
			WithdrawalDate: now.AddDate(0, d.Months, 0),
			Status:         d.Status,
		}); err != nil {
			return true, fmt.Errorf("create investment: %w", err)
		}
	}
	return true, nil
}
