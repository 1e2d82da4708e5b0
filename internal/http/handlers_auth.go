package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/service"
)

// AuthServiceInterface is the identity provider surface the handlers drive.
type AuthServiceInterface interface {
	SignIn(ctx context.Context, email, password string) (*domainauth.Session, error)
	BeginFederatedLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteFederatedLogin(ctx context.Context, in service.CompleteLoginInput) (*domainauth.Session, error)
	Register(ctx context.Context, req model.RegisterRequest) (*service.RegisterResult, error)
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	UpdateProfile(ctx context.Context, sessionID, displayName string) (*domainauth.Session, error)
}

// AuthHandlers serves sign-in, registration and sign-out.
type AuthHandlers struct {
	Svc AuthServiceInterface
	// Contexts backs /api/session; optional.
	Contexts     AuthContexts
	T            *TemplateRenderer
	CookieDomain string
	// Federated shows the single sign-on button when a provider is configured.
	Federated bool
	Logger    *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) cookies() cookieWriter { return cookieWriter{domain: h.CookieDomain} }

// LoginPage renders the sign-in form. A visitor who is already signed in is sent on.
// GET /login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	if h.currentSession(r) != nil {
		redirect(w, r, postLoginTarget(redirectURI))
		return
	}
	h.renderLogin(w, r, http.StatusOK, redirectURI, r.URL.Query().Get("error"))
}

// Login signs in with email and password.
// POST /login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.PostFormValue("redirect_uri"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		h.renderLogin(w, r, http.StatusBadRequest, redirectURI, "All fields are required.")
		return
	}

	sess, err := h.Svc.SignIn(r.Context(), email, password)
	if err != nil {
		h.logger().InfoContext(r.Context(), "sign-in failed", "error", err)
		h.renderLogin(w, r, StatusForError(err), redirectURI, signInMessage(err))
		return
	}
	h.startBrowserSession(w, r, sess)
	redirect(w, r, postLoginTarget(redirectURI))
}

// BeginFederated starts the provider flow.
// GET /auth/federated?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) BeginFederated(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	result, err := h.Svc.BeginFederatedLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin federated login", "error", err)
		h.renderLogin(w, r, StatusForError(err), redirectURI, signInMessage(err))
		return
	}

	c := h.cookies()
	c.shortLived(w, r, oauthStateCookie, result.State)
	c.shortLived(w, r, oauthNonceCookie, result.Nonce)
	c.shortLived(w, r, postLoginCookieName, redirectURI)
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes the provider flow.
// GET /auth/callback?code=<code>&state=<state>[&error=<provider_error>].
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := service.CompleteLoginInput{
		Code:          q.Get("code"),
		State:         q.Get("state"),
		Nonce:         cookieValue(r, oauthNonceCookie),
		ProviderError: q.Get("error"),
	}
	if in.ProviderError == "" {
		if expected := cookieValue(r, oauthStateCookie); expected == "" || expected != in.State {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_state",
				Err:     errors.New("invalid or missing state parameter"),
			})
			return
		}
	}

	c := h.cookies()
	c.clear(w, r, oauthStateCookie)
	c.clear(w, r, oauthNonceCookie)
	redirectURI := safeRedirectPath(cookieValue(r, postLoginCookieName))
	c.clear(w, r, postLoginCookieName)

	sess, err := h.Svc.CompleteFederatedLogin(r.Context(), in)
	if err != nil {
		h.logger().WarnContext(r.Context(), "federated login failed", "error", err)
		h.renderLogin(w, r, StatusForError(err), redirectURI, signInMessage(err))
		return
	}
	h.startBrowserSession(w, r, sess)
	http.Redirect(w, r, postLoginTarget(redirectURI), http.StatusFound)
}

// RegisterPage renders the registration form.
// GET /register.
func (h *AuthHandlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderRegister(w, r, http.StatusOK, registerForm{}, nil)
}

type registerForm struct {
	Email       string
	DisplayName string
}

// Register creates an email/password account and signs it in.
// POST /register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	form := registerForm{
		Email:       strings.TrimSpace(r.PostFormValue("email")),
		DisplayName: strings.TrimSpace(r.PostFormValue("display_name")),
	}
	password := r.PostFormValue("password")
	if confirm := r.PostFormValue("confirm_password"); confirm != password {
		h.renderRegister(w, r, http.StatusBadRequest, form, formError("Passwords do not match."))
		return
	}

	res, err := h.Svc.Register(r.Context(), model.RegisterRequest{
		Email:       form.Email,
		Password:    password,
		DisplayName: form.DisplayName,
		AdminKey:    strings.TrimSpace(r.PostFormValue("admin_key")),
	})
	if err != nil {
		h.logger().InfoContext(r.Context(), "registration failed", "error", err)
		h.renderRegister(w, r, StatusForError(err), form, err)
		return
	}

	h.startBrowserSession(w, r, res.Session)
	switch {
	case res.Promoted:
		redirect(w, r, PathAdmin)
	case res.PromotionErr != nil:
		redirect(w, r, PathDashboard+"?"+noticeParam+"="+noticePromotionFailed)
	default:
		redirect(w, r, PathDashboard)
	}
}

// Logout ends the browser session.
// POST /logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := cookieValue(r, SessionCookieName); sessionID != "" {
		if err := h.Svc.SignOut(r.Context(), sessionID); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	c := h.cookies()
	c.clear(w, r, SessionCookieName)
	c.hint(w, r, false)

	target := PathLogin
	if isAJAX(r) && !IsHTMX(r) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "redirect_to": target})
		return
	}
	redirect(w, r, target)
}

// Status reports the auth state of the caller's browser session.
// GET /api/session.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := cookieValue(r, SessionCookieName)
	if sessionID == "" || h.Contexts == nil {
		WriteJSON(w, http.StatusOK, sessionStatus(domainauth.SignedOutState()))
		return
	}
	WriteJSON(w, http.StatusOK, sessionStatus(h.Contexts.Acquire(sessionID).State()))
}

func sessionStatus(s domainauth.SessionState) map[string]any {
	body := map[string]any{
		"authenticated":   s.Principal != nil,
		"phase":           s.Phase(),
		"role":            s.Role,
		"session_loading": s.SessionLoading,
		"role_loading":    s.RoleLoading,
	}
	if s.Principal != nil {
		body["user"] = s.Principal
	}
	return body
}

func (h *AuthHandlers) currentSession(r *http.Request) *domainauth.Session {
	sessionID := cookieValue(r, SessionCookieName)
	if sessionID == "" {
		return nil
	}
	sess, err := h.Svc.GetSession(r.Context(), sessionID)
	if err != nil {
		return nil
	}
	return sess
}

func (h *AuthHandlers) startBrowserSession(w http.ResponseWriter, r *http.Request, sess *domainauth.Session) {
	c := h.cookies()
	c.session(w, r, sess)
	c.hint(w, r, true)
}

func (h *AuthHandlers) renderLogin(w http.ResponseWriter, r *http.Request, status int, redirectURI, errMsg string) {
	b := NewTemplateData(r, PageMeta{Title: "Sign in", CurrentPage: PageLogin}).
		With("RedirectURI", redirectURI).
		With("Federated", h.Federated).
		With("FederatedURL", federatedURL(redirectURI))
	if errMsg != "" {
		b.WithError(errMsg)
	}
	h.render(w, r, status, b.Build())
}

func (h *AuthHandlers) renderRegister(w http.ResponseWriter, r *http.Request, status int, form registerForm, err error) {
	b := NewTemplateData(r, PageMeta{Title: "Create account", CurrentPage: PageRegister}).With("Form", form)
	if err != nil {
		if field := apperrors.GetField(err); field != "" {
			b.WithFieldErrors(map[string]string{field: userMessage(err)})
		}
		b.WithError(userMessage(err))
	}
	h.render(w, r, status, b.Build())
}

func (h *AuthHandlers) render(w http.ResponseWriter, r *http.Request, status int, data map[string]any) {
	if h.T == nil {
		WriteJSON(w, status, data)
		return
	}
	if err := h.T.Render(w, r, status, data); err != nil {
		h.logger().ErrorContext(r.Context(), "render auth page", "error", err)
	}
}

func federatedURL(redirectURI string) string {
	q := url.Values{}
	q.Set("redirect_uri", redirectURI)
	return "/auth/federated?" + q.Encode()
}

// postLoginTarget sends visitors who came from the landing or sign-in pages to the dashboard.
func postLoginTarget(redirectURI string) string {
	switch redirectURI {
	case "", PathHome, PathLogin, PathRegister:
		return PathDashboard
	}
	return redirectURI
}

func isAJAX(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		IsHTMX(r) ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

// signInMessage maps identity provider failures to what the sign-in form shows.
func signInMessage(err error) string {
	switch {
	case apperrors.IsInvalidCredentials(err):
		return "Failed to sign in. Please check your credentials."
	case apperrors.IsProviderCancelled(err):
		return "Sign-in was cancelled."
	case apperrors.IsNetwork(err):
		return "Network error. Please try again."
	default:
		return userMessage(err)
	}
}

// formError is a message raised by the handlers themselves, safe to show as-is.
type formError string

func (e formError) Error() string { return string(e) }

// userMessage exposes AppError and form messages and hides anything else.
func userMessage(err error) string {
	var fe formError
	if errors.As(err, &fe) {
		return string(fe)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.ErrCodeInternal {
		return appErr.Message
	}
	return "Something went wrong. Please try again."
}
