package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/service"
)

// AdminConsole is the admin surface the console pages use.
type AdminConsole interface {
	SetupEnabled() bool
	ClaimWithSetupKey(ctx context.Context, p domainauth.Principal, key string) (*model.AdminMembership, error)
	LoadOverview(ctx context.Context, filter string) (*service.Overview, error)
}

// InvestmentAdmin edits any user's investments.
type InvestmentAdmin interface {
	ListAll(ctx context.Context, opts core.InvestmentListOptions, filter string) ([]*model.Investment, error)
	Update(ctx context.Context, id string, req model.UpdateInvestmentRequest) (*model.Investment, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// RoleChecker resolves a principal's role to completion.
type RoleChecker interface {
	ResolveRole(ctx context.Context, p domainauth.Principal) domainauth.Role
}

// AdminHandlers serves the admin console, admin sign-in and self-service setup.
type AdminHandlers struct {
	Auth         AuthServiceInterface
	Roles        RoleChecker
	Admin        AdminConsole
	Investments  InvestmentAdmin
	T            *TemplateRenderer
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AdminHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Console renders every investment and the admin list.
// GET /admin?filter=<jmespath>.
func (h *AdminHandlers) Console(w http.ResponseWriter, r *http.Request) {
	h.renderConsole(w, r, http.StatusOK, "")
}

func (h *AdminHandlers) renderConsole(w http.ResponseWriter, r *http.Request, status int, actionErr string) {
	filter := strings.TrimSpace(r.URL.Query().Get("filter"))
	b := NewTemplateData(r, PageMeta{Title: "Admin", CurrentPage: PageAdmin}).With("Filter", filter)

	ov, err := h.Admin.LoadOverview(r.Context(), filter)
	switch {
	case apperrors.IsValidation(err):
		status = http.StatusBadRequest
		b.WithFieldErrors(map[string]string{"filter": userMessage(err)})
	case err != nil:
		h.logger().ErrorContext(r.Context(), "load admin overview", "error", err)
		status = http.StatusInternalServerError
		b.WithError("Failed to load the admin console. Please try again.")
	default:
		b.With("Investments", ov.Investments).With("Stats", ov.Stats).With("Admins", ov.Admins)
	}
	if actionErr != "" {
		b.WithError(actionErr)
	}
	if err := h.T.Render(w, r, status, b.Build()); err != nil {
		h.logger().ErrorContext(r.Context(), "render admin console", "error", err)
	}
}

// UpdateInvestment applies an edit from the console.
// POST /admin/investments/{id}.
func (h *AdminHandlers) UpdateInvestment(w http.ResponseWriter, r *http.Request) {
	req, err := parseInvestmentEdit(r)
	if err == nil {
		_, err = h.Investments.Update(r.Context(), r.PathValue("id"), req)
	}
	if err != nil {
		h.renderConsole(w, r, formStatus(err), userMessage(err))
		return
	}
	redirect(w, r, PathAdmin)
}

// DeleteInvestment removes an investment from the console.
// POST /admin/investments/{id}/delete.
func (h *AdminHandlers) DeleteInvestment(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Investments.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.logger().ErrorContext(r.Context(), "delete investment", "id", r.PathValue("id"), "error", err)
		h.renderConsole(w, r, http.StatusInternalServerError, "Failed to delete the investment.")
		return
	}
	redirect(w, r, PathAdmin)
}

// ListInvestmentsAPI returns every investment, optionally filtered.
// GET /api/admin/investments?filter=<jmespath>.
func (h *AdminHandlers) ListInvestmentsAPI(w http.ResponseWriter, r *http.Request) {
	opts := core.InvestmentListOptions{Limit: 500}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := model.ParseInvestmentStatus(raw)
		if !ok {
			WriteAppError(w, apperrors.ValidationField("status", "status must be one of: active, pending, withdrawn"))
			return
		}
		opts.Status = &status
	}
	items, err := h.Investments.ListAll(r.Context(), opts, r.URL.Query().Get("filter"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"investments": items, "stats": model.ComputeInvestmentStats(items)})
}

// UpdateInvestmentAPI applies a JSON edit.
// PATCH /api/admin/investments/{id}.
func (h *AdminHandlers) UpdateInvestmentAPI(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateInvestmentRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	inv, err := h.Investments.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, inv)
}

// DeleteInvestmentAPI removes an investment.
// DELETE /api/admin/investments/{id}.
func (h *AdminHandlers) DeleteInvestmentAPI(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Investments.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if !ok {
		WriteAppError(w, apperrors.NotFound("investment not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoginPage renders the admin sign-in form.
// GET /admin/login.
func (h *AdminHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminLogin(w, r, http.StatusOK, "")
}

// Login signs in with email and password, then resolves the role to completion. A
// principal who is not an admin is signed straight back out.
// POST /admin/login.
func (h *AdminHandlers) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		h.renderAdminLogin(w, r, http.StatusBadRequest, "All fields are required.")
		return
	}

	sess, err := h.Auth.SignIn(r.Context(), email, password)
	if err != nil {
		h.renderAdminLogin(w, r, StatusForError(err), signInMessage(err))
		return
	}

	if role := h.Roles.ResolveRole(r.Context(), sess.Principal()); role != domainauth.RoleAdmin {
		h.logger().WarnContext(r.Context(), "non-admin rejected at admin sign-in", "user_id", sess.UserID, "role", role)
		if err := h.Auth.SignOut(r.Context(), sess.ID); err != nil {
			h.logger().WarnContext(r.Context(), "sign out rejected admin", "error", err)
		}
		h.renderAdminLogin(w, r, http.StatusForbidden, "Access Denied: You do not have admin privileges.")
		return
	}

	c := cookieWriter{domain: h.CookieDomain}
	c.session(w, r, sess)
	c.hint(w, r, true)
	redirect(w, r, PathAdmin)
}

// SetupPage renders the setup-key form. Behind RouteGuard: the visitor must be signed in.
// GET /admin/setup.
func (h *AdminHandlers) SetupPage(w http.ResponseWriter, r *http.Request) {
	h.renderSetup(w, r, http.StatusOK, "", false)
}

// Setup promotes the signed-in principal when the key matches. The new role applies from
// the next admin sign-in.
// POST /admin/setup.
func (h *AdminHandlers) Setup(w http.ResponseWriter, r *http.Request) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		renderLoading(w, r, h.T, h.logger())
		return
	}
	if _, err := h.Admin.ClaimWithSetupKey(r.Context(), p, r.PostFormValue("setup_key")); err != nil {
		h.renderSetup(w, r, StatusForError(err), userMessage(err), false)
		return
	}
	w.Header().Set("Refresh", "2; url="+PathAdminLogin)
	h.renderSetup(w, r, http.StatusOK, "", true)
}

func (h *AdminHandlers) renderAdminLogin(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	b := NewTemplateData(r, PageMeta{Title: "Admin sign in", CurrentPage: PageAdminLogin})
	if errMsg != "" {
		b.WithError(errMsg)
	}
	if err := h.T.Render(w, r, status, b.Build()); err != nil {
		h.logger().ErrorContext(r.Context(), "render admin login", "error", err)
	}
}

func (h *AdminHandlers) renderSetup(w http.ResponseWriter, r *http.Request, status int, errMsg string, done bool) {
	b := NewTemplateData(r, PageMeta{Title: "Admin setup", CurrentPage: PageAdminSetup}).
		With("SetupEnabled", h.Admin.SetupEnabled()).
		With("Done", done)
	if errMsg != "" {
		b.WithError(errMsg)
	}
	if err := h.T.Render(w, r, status, b.Build()); err != nil {
		h.logger().ErrorContext(r.Context(), "render admin setup", "error", err)
	}
}

func parseInvestmentEdit(r *http.Request) (model.UpdateInvestmentRequest, error) {
	var req model.UpdateInvestmentRequest
	if raw := r.PostFormValue("status"); raw != "" {
		status, ok := model.ParseInvestmentStatus(raw)
		if !ok {
			return req, formError("Unknown investment status")
		}
		req.Status = &status
	}
	if raw := r.PostFormValue("deposit_amount"); strings.TrimSpace(raw) != "" {
		amount, err := parseAmount(raw)
		if err != nil {
			return req, err
		}
		req.DepositAmount = &amount
	}
	if raw := r.PostFormValue("withdrawal_date"); strings.TrimSpace(raw) != "" {
		date, err := parseDate(raw)
		if err != nil {
			return req, err
		}
		req.WithdrawalDate = &date
	}
	return req, nil
}
