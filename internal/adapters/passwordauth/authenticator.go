// Package passwordauth verifies and enrolls email/password credentials with bcrypt hashes.
package passwordauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	"github.com/dhanmatrix/dhanmatrix/internal/data"
	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

const defaultSessionDuration = 8 * time.Hour

// invalidPairMessage never says which half of the pair was wrong.
const invalidPairMessage = "invalid email or password"

// Config controls hashing cost and issued session length.
type Config struct {
	Cost            int           // bcrypt cost; bcrypt.DefaultCost when zero
	SessionDuration time.Duration // default 8h when zero
}

// Authenticator implements ports.PasswordAuthenticator.
type Authenticator struct {
	creds   core.CredentialRepository
	users   core.UserRepository
	cost    int
	session time.Duration
	now     func() time.Time
	newID   func() string
}

var _ ports.PasswordAuthenticator = (*Authenticator)(nil)

// NewAuthenticator wires the credential and profile repositories.
func NewAuthenticator(creds core.CredentialRepository, users core.UserRepository, cfg Config) *Authenticator {
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	session := cfg.SessionDuration
	if session == 0 {
		session = defaultSessionDuration
	}
	return &Authenticator{
		creds:   creds,
		users:   users,
		cost:    cost,
		session: session,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Authenticate checks the pair and returns the enrolled identity.
func (a *Authenticator) Authenticate(ctx context.Context, in ports.CredentialInput) (domainauth.Identity, error) {
	if err := model.ValidateEmail(in.Email); err != nil {
		return domainauth.Identity{}, apperrors.ValidationField("email", err.Error())
	}
	if in.Password == "" {
		return domainauth.Identity{}, apperrors.ValidationField("password", model.ErrPasswordRequired.Error())
	}

	rec, err := a.creds.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, data.ErrCredentialNotFound) {
			return domainauth.Identity{}, apperrors.InvalidCredentials(invalidPairMessage)
		}
		return domainauth.Identity{}, apperrors.Network(err, "credential lookup failed")
	}
	if err := bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(in.Password)); err != nil {
		return domainauth.Identity{}, apperrors.InvalidCredentials(invalidPairMessage)
	}

	displayName := ""
	if profile, perr := a.users.Get(ctx, rec.UserID); perr == nil {
		displayName = profile.DisplayName
	}
	return a.identity(rec.UserID, rec.Email, displayName), nil
}

// Enroll creates a credential and profile for a new email.
func (a *Authenticator) Enroll(ctx context.Context, in ports.CredentialInput) (domainauth.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := model.ValidateEmail(email); err != nil {
		return domainauth.Identity{}, apperrors.ValidationField("email", err.Error())
	}
	if err := model.ValidatePassword(in.Password); err != nil {
		return domainauth.Identity{}, apperrors.ValidationField("password", err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "password cannot be hashed")
	}

	userID := a.newID()
	if err := a.creds.Create(ctx, core.CredentialRecord{UserID: userID, Email: email, PasswordHash: hash}); err != nil {
		if errors.Is(err, data.ErrEmailTaken) {
			return domainauth.Identity{}, apperrors.Conflict("an account with this email already exists")
		}
		return domainauth.Identity{}, apperrors.Network(err, "credential enrollment failed")
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if _, err := a.users.Upsert(ctx, &model.UserProfile{UserID: userID, Email: email, DisplayName: displayName}); err != nil {
		return domainauth.Identity{}, apperrors.Network(err, "profile write failed")
	}
	return a.identity(userID, email, displayName), nil
}

// SetPassword replaces the hash for an enrolled email.
func (a *Authenticator) SetPassword(ctx context.Context, email, password string) error {
	if err := model.ValidatePassword(password); err != nil {
		return apperrors.ValidationField("password", err.Error())
	}
	rec, err := a.creds.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, data.ErrCredentialNotFound) {
			return apperrors.NotFoundf("no password sign-in for %s", email)
		}
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "password cannot be hashed")
	}
	return a.creds.UpdateHash(ctx, rec.UserID, hash)
}

func (a *Authenticator) identity(userID, email, displayName string) domainauth.Identity {
	return domainauth.Identity{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		ExpiresAt:   a.now().Add(a.session),
	}
}
