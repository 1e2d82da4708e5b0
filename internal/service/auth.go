package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

const (
	defaultInitialLoadTimeout = 5 * time.Second
	initialLoadRetryBase      = 250 * time.Millisecond
	initialLoadRetryMax       = 10 * time.Second
	maxDisplayNameLen         = 80
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider  ports.AuthProvider          // federated sign-in; optional
	Password  ports.PasswordAuthenticator // email/password sign-in; optional
	Sessions  ports.SessionStore
	Documents ports.DocumentWriter // users and admins collections
	// Bus fans events across instances. When nil, events are dispatched in-process only.
	Bus    ports.SessionEventBus
	Hub    *SessionEventHub
	Logger *slog.Logger
	// AdminKey promotes a registering user to admin when supplied with the registration.
	// Empty disables promotion on registration.
	AdminKey string
}

// AuthService is the identity provider: it signs principals in and out of browser sessions
// and emits the session-changed signal the auth contexts subscribe to.
type AuthService struct {
	provider  ports.AuthProvider
	password  ports.PasswordAuthenticator
	sessions  ports.SessionStore
	documents ports.DocumentWriter
	bus       ports.SessionEventBus
	hub       *SessionEventHub
	logger    *slog.Logger
	adminKey  string

	now         func() time.Time
	newID       func() string
	loadTimeout time.Duration
	loadRetry   loadRetry
}

var _ ports.SessionSource = (*AuthService)(nil)

var (
	// ErrNoSession is returned when a session id has no live session.
	ErrNoSession = errors.New("no session")
	// ErrSessionExpired is returned when the session existed but its expiry has passed.
	ErrSessionExpired = errors.New("session expired")
)

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewSessionEventHub()
	}
	return &AuthService{
		provider:    opts.Provider,
		password:    opts.Password,
		sessions:    opts.Sessions,
		documents:   opts.Documents,
		bus:         opts.Bus,
		hub:         hub,
		logger:      logger.With("component", "auth_service"),
		adminKey:    opts.AdminKey,
		now:         time.Now,
		newID:       uuid.NewString,
		loadTimeout: defaultInitialLoadTimeout,
		loadRetry:   loadRetry{base: initialLoadRetryBase, max: initialLoadRetryMax},
	}
}

// Run relays events from the cross-instance bus into the local hub until ctx is canceled.
// Without a bus it blocks until ctx is done.
func (s *AuthService) Run(ctx context.Context) error {
	if s.bus == nil {
		<-ctx.Done()
		return nil
	}
	if err := s.bus.Listen(ctx, s.hub.Dispatch); err != nil {
		return fmt.Errorf("listen for session events: %w", err)
	}
	<-ctx.Done()
	return nil
}

// OnSessionChanged implements ports.SessionSource. The current principal is read from the
// session store and delivered asynchronously, followed by every later event for the session.
// While the store is unreachable nothing is delivered and the read is retried, so the
// subscriber stays in its loading state instead of seeing a sign-out.
func (s *AuthService) OnSessionChanged(sessionID string, fn func(*domainauth.Principal)) func() {
	sub := newSessionSubscription(sessionID, func(evt domainauth.SessionEvent) {
		fn(evt.Principal)
	})
	id := s.hub.add(sub)
	go sub.run(func() (domainauth.SessionEvent, bool) { return s.currentEvent(sessionID) }, s.loadRetry)

	return func() {
		s.hub.remove(sessionID, id)
		sub.close()
	}
}

func (s *AuthService) currentEvent(sessionID string) (domainauth.SessionEvent, bool) {
	evt := domainauth.SessionEvent{SessionID: sessionID}
	if sessionID == "" {
		return evt, true
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.loadTimeout)
	defer cancel()

	sess, err := s.GetSession(ctx, sessionID)
	switch {
	case apperrors.IsNetwork(err) || errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("session store unreachable; retrying initial load", "session_id", sessionID, "error", err)
		return evt, false
	case err != nil:
		return evt, true
	}
	p := sess.Principal()
	evt.Principal = &p
	evt.ExpiresAt = sess.ExpiresAt
	return evt, true
}

// SignIn verifies an email/password pair and starts a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domainauth.Session, error) {
	if s.password == nil {
		return nil, apperrors.Internal("password sign-in is not configured")
	}
	identity, err := s.password.Authenticate(ctx, ports.CredentialInput{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, identity)
}

// BeginLoginResult contains the result of beginning a federated login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginFederatedLogin initiates a provider flow and returns its auth URL with state and nonce.
func (s *AuthService) BeginFederatedLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.provider == nil {
		return nil, apperrors.Internal("federated sign-in is not configured")
	}
	if redirectURL == "" {
		return nil, apperrors.Validation("redirect URL is required")
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a federated login flow.
type CompleteLoginInput struct {
	Code          string
	State         string
	Nonce         string
	ProviderError string
}

// CompleteFederatedLogin exchanges the callback for an identity, records the user profile,
// and starts a session.
func (s *AuthService) CompleteFederatedLogin(ctx context.Context, in CompleteLoginInput) (*domainauth.Session, error) {
	if s.provider == nil {
		return nil, apperrors.Internal("federated sign-in is not configured")
	}
	if in.ProviderError == "" {
		switch {
		case in.Code == "":
			return nil, apperrors.Validation("authorization code is required")
		case in.State == "":
			return nil, apperrors.Validation("state parameter is required")
		case in.Nonce == "":
			return nil, apperrors.Validation("nonce parameter is required")
		}
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:          in.Code,
		State:         in.State,
		Nonce:         in.Nonce,
		ProviderError: in.ProviderError,
	})
	if err != nil {
		return nil, err
	}

	s.recordProfile(ctx, identity)
	return s.startSession(ctx, identity)
}

// RegisterResult reports the session created by a registration and whether it was promoted.
type RegisterResult struct {
	Session  *domainauth.Session
	Promoted bool
	// PromotionErr is set when the admin key matched but the membership write failed. The
	// account exists and is signed in as a plain user.
	PromotionErr error
}

// Register enrolls an email/password account and signs it in. A matching admin key also
// writes an admin membership; a wrong key fails before anything is created. Once the
// credential exists a failed membership write no longer fails the registration.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*RegisterResult, error) {
	if s.password == nil {
		return nil, apperrors.Internal("password sign-in is not configured")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	promote := false
	if req.AdminKey != "" {
		if !s.adminKeyMatches(req.AdminKey) {
			return nil, apperrors.PermissionDenied("Invalid Admin Secret Key")
		}
		promote = true
	}

	identity, err := s.password.Enroll(ctx, ports.CredentialInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return nil, err
	}

	res := &RegisterResult{}
	if promote {
		if err := s.promoteRegistered(ctx, identity); err != nil {
			s.logger.ErrorContext(ctx, "admin promotion on registration failed",
				"user_id", identity.UserID, "error", err)
			res.PromotionErr = err
		} else {
			res.Promoted = true
			s.logger.Info("admin promoted on registration", "user_id", identity.UserID)
		}
	}

	sess, err := s.startSession(ctx, identity)
	if err != nil {
		return nil, err
	}
	res.Session = sess
	return res, nil
}

func (s *AuthService) promoteRegistered(ctx context.Context, identity domainauth.Identity) error {
	if s.documents == nil {
		return errors.New("admin memberships are not configured")
	}
	membership := &model.AdminMembership{
		UserID:     identity.UserID,
		Email:      identity.Email,
		PromotedAt: s.now().UTC(),
		PromotedBy: model.PromotedByDirectRegistration,
	}
	if err := s.documents.Set(ctx, model.CollectionAdmins, identity.UserID, membership); err != nil {
		return fmt.Errorf("promote registered user: %w", err)
	}
	return nil
}

func (s *AuthService) adminKeyMatches(key string) bool {
	if s.adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) == 1
}

// GetSession retrieves a live session by ID. An expired session is removed and reported
// to subscribers as a sign-out.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	session, err := s.sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, ports.ErrSessionNotFound):
		return nil, ErrNoSession
	case apperrors.IsNetwork(err) || errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case err != nil:
		s.logger.WarnContext(ctx, "unreadable session treated as signed out", "error", err)
		return nil, ErrNoSession
	}

	if session.IsExpired(s.now()) {
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(ErrSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		s.publish(ctx, domainauth.SessionEvent{SessionID: sessionID})
		return nil, ErrSessionExpired
	}

	return &session, nil
}

// SignOut removes a session and emits the sign-out.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.publish(ctx, domainauth.SessionEvent{SessionID: sessionID})
	return nil
}

// UpdateProfile renames the session's principal. The users document is written first, then
// the session record, and the refreshed principal is emitted under the same user id so
// subscribers keep their resolved role.
func (s *AuthService) UpdateProfile(ctx context.Context, sessionID, displayName string) (*domainauth.Session, error) {
	displayName = strings.TrimSpace(displayName)
	switch {
	case displayName == "":
		return nil, apperrors.ValidationField("display_name", "Please enter a display name")
	case utf8.RuneCountInString(displayName) > maxDisplayNameLen:
		return nil, apperrors.ValidationField("display_name",
			fmt.Sprintf("Display name must be at most %d characters", maxDisplayNameLen))
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.documents != nil {
		profile := &model.UserProfile{UserID: session.UserID, Email: session.Email, DisplayName: displayName}
		if err := s.documents.Set(ctx, model.CollectionUsers, session.UserID, profile); err != nil {
			return nil, fmt.Errorf("write user profile: %w", err)
		}
	}

	session.DisplayName = displayName
	if err := s.sessions.Save(ctx, *session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	p := session.Principal()
	s.publish(ctx, domainauth.SessionEvent{SessionID: session.ID, Principal: &p, ExpiresAt: session.ExpiresAt})
	s.logger.InfoContext(ctx, "profile updated", "user_id", session.UserID)
	return session, nil
}

func (s *AuthService) startSession(ctx context.Context, identity domainauth.Identity) (*domainauth.Session, error) {
	session := domainauth.Session{
		ID:          s.newID(),
		UserID:      identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		ExpiresAt:   identity.ExpiresAt,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	p := session.Principal()
	s.publish(ctx, domainauth.SessionEvent{SessionID: session.ID, Principal: &p, ExpiresAt: session.ExpiresAt})
	return &session, nil
}

// recordProfile writes the users document on federated sign-in. Failures are logged only.
func (s *AuthService) recordProfile(ctx context.Context, identity domainauth.Identity) {
	if s.documents == nil {
		return
	}
	profile := &model.UserProfile{
		UserID:      identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
	}
	if err := s.documents.Set(ctx, model.CollectionUsers, identity.UserID, profile); err != nil {
		s.logger.Warn("user profile write failed", "user_id", identity.UserID, "error", err)
	}
}

// publish sends evt over the bus, falling back to local dispatch when the bus is missing
// or unavailable.
func (s *AuthService) publish(ctx context.Context, evt domainauth.SessionEvent) {
	if s.bus != nil {
		err := s.bus.Publish(ctx, evt)
		if err == nil {
			return
		}
		s.logger.Warn("session event publish failed; dispatching locally",
			"session_id", evt.SessionID, "error", err)
	}
	s.hub.Dispatch(evt)
}
