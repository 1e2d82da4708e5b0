package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	"github.com/dhanmatrix/dhanmatrix/internal/data"
	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

const (
	setupLockPrefix = "dhanmatrix:admin-setup:"
	setupLockTTL    = 30 * time.Second
)

// AdminServiceOptions groups dependencies for AdminService.
type AdminServiceOptions struct {
	Admins      core.AdminRepository
	Users       core.UserRepository
	Documents   ports.DocumentWriter
	Investments *InvestmentService
	// Locks guards concurrent setup submissions per user; optional.
	Locks core.CacheRepository
	// SetupKey enables self-service promotion at /admin/setup. Empty disables it.
	SetupKey string
	Logger   *slog.Logger
}

// AdminService manages admin memberships and loads the admin console.
type AdminService struct {
	admins      core.AdminRepository
	users       core.UserRepository
	documents   ports.DocumentWriter
	investments *InvestmentService
	locks       core.CacheRepository
	setupKey    string
	logger      *slog.Logger
	now         func() time.Time
}

// NewAdminService constructs a new AdminService.
func NewAdminService(opts AdminServiceOptions) *AdminService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{
		admins:      opts.Admins,
		users:       opts.Users,
		documents:   opts.Documents,
		investments: opts.Investments,
		locks:       opts.Locks,
		setupKey:    opts.SetupKey,
		logger:      logger.With("component", "admin_service"),
		now:         time.Now,
	}
}

// SetupEnabled reports whether self-service promotion is available.
func (s *AdminService) SetupEnabled() bool { return s.setupKey != "" }

// ClaimWithSetupKey promotes p when key matches the configured setup key.
func (s *AdminService) ClaimWithSetupKey(ctx context.Context, p domainauth.Principal, key string) (*model.AdminMembership, error) {
	if !s.SetupEnabled() {
		return nil, apperrors.PermissionDenied("admin setup is disabled")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.setupKey)) != 1 {
		s.logger.Warn("admin setup rejected", "user_id", p.ID)
		return nil, apperrors.PermissionDenied("Invalid Secret Key")
	}

	release, err := s.acquireSetupLock(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	m, err := s.promote(ctx, p.ID, p.Email, model.PromotedBySelfSetup)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin promoted through setup", "user_id", p.ID)
	return m, nil
}

func (s *AdminService) acquireSetupLock(ctx context.Context, userID string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	key := setupLockPrefix + userID
	ok, err := s.locks.SetIfNotExists(ctx, key, []byte("1"), setupLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Conflict("admin setup is already in progress for this account")
	}
	return func() {
		if _, delErr := s.locks.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("release admin setup lock", "user_id", userID, "error", delErr)
		}
	}, nil
}

// PromoteByEmail grants admin to the user registered with email.
func (s *AdminService) PromoteByEmail(ctx context.Context, email, promotedBy string) (*model.AdminMembership, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := model.ValidateEmail(email); err != nil {
		return nil, apperrors.ValidationField("email", err.Error())
	}
	profile, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return nil, apperrors.NotFoundf("no user registered with %s", email)
		}
		return nil, err
	}
	return s.promote(ctx, profile.UserID, profile.Email, promotedBy)
}

func (s *AdminService) promote(ctx context.Context, userID, email, promotedBy string) (*model.AdminMembership, error) {
	m := &model.AdminMembership{
		UserID:     userID,
		Email:      email,
		PromotedAt: s.now().UTC(),
		PromotedBy: promotedBy,
	}
	if err := s.documents.Set(ctx, model.CollectionAdmins, userID, m); err != nil {
		return nil, fmt.Errorf("write admin membership: %w", err)
	}
	return m, nil
}

// Demote removes userID's admin membership. It reports false when there was none.
func (s *AdminService) Demote(ctx context.Context, userID string) (bool, error) {
	if _, err := s.admins.Get(ctx, userID); err != nil {
		if errors.Is(err, data.ErrAdminNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.documents.Delete(ctx, model.CollectionAdmins, userID); err != nil {
		return false, fmt.Errorf("delete admin membership: %w", err)
	}
	return true, nil
}

// ListAdmins returns every admin membership.
func (s *AdminService) ListAdmins(ctx context.Context) ([]*model.AdminMembership, error) {
	return s.admins.List(ctx)
}

// Overview is everything the admin console renders.
type Overview struct {
	Investments []*model.Investment
	Stats       model.InvestmentStats
	Admins      []*model.AdminMembership
}

// LoadOverview fetches investments and memberships concurrently.
func (s *AdminService) LoadOverview(ctx context.Context, filter string) (*Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.investments.ListAll(gctx, core.InvestmentListOptions{Limit: 500}, filter)
		if err != nil {
			return err
		}
		out.Investments = items
		return nil
	})
	g.Go(func() error {
		admins, err := s.admins.List(gctx)
		if err != nil {
			return fmt.Errorf("list admins: %w", err)
		}
		out.Admins = admins
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.Stats = model.ComputeInvestmentStats(out.Investments)
	return &out, nil
}
