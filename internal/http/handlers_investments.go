package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	"github.com/dhanmatrix/dhanmatrix/internal/service"
)

// InvestmentsService is the investment surface the dashboard uses.
type InvestmentsService interface {
	Create(ctx context.Context, p domainauth.Principal, req *model.CreateInvestmentRequest) (*model.Investment, error)
	ListForUser(ctx context.Context, userID string) (*service.UserPortfolio, error)
}

// DashboardHandlers serves a signed-in user's portfolio. Every route is behind RouteGuard.
type DashboardHandlers struct {
	Svc    InvestmentsService
	T      *TemplateRenderer
	Logger *slog.Logger
}

func (h *DashboardHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Dashboard renders the portfolio page.
// GET /dashboard.
func (h *DashboardHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, http.StatusOK, nil)
}

// Create records an investment from the dashboard form.
// POST /dashboard/investments.
func (h *DashboardHandlers) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		renderLoading(w, r, h.T, h.logger())
		return
	}
	req, err := parseInvestmentForm(r)
	if err == nil {
		_, err = h.Svc.Create(r.Context(), p, req)
	}
	if err != nil {
		h.renderDashboard(w, r, formStatus(err), err)
		return
	}
	HTMX(w).Trigger("investment-created", nil)
	redirect(w, r, PathDashboard)
}

// ListAPI returns the caller's portfolio as JSON.
// GET /api/investments.
func (h *DashboardHandlers) ListAPI(w http.ResponseWriter, r *http.Request) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		writePending(w)
		return
	}
	portfolio, err := h.Svc.ListForUser(r.Context(), p.ID)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "list investments", "error", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"investments": portfolio.Investments, "stats": portfolio.Stats})
}

// CreateAPI records an investment from a JSON body.
// POST /api/investments.
func (h *DashboardHandlers) CreateAPI(w http.ResponseWriter, r *http.Request) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		writePending(w)
		return
	}
	var req model.CreateInvestmentRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	inv, err := h.Svc.Create(r.Context(), p, &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, inv)
}

func (h *DashboardHandlers) renderDashboard(w http.ResponseWriter, r *http.Request, status int, formErr error) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		// Rendered optimistically before the session loaded.
		renderLoading(w, r, h.T, h.logger())
		return
	}
	b := NewTemplateData(r, PageMeta{Title: "Dashboard", CurrentPage: PageDashboard}).
		With("MinWithdrawalDate", time.Now().AddDate(0, 0, 1).Format(time.DateOnly))
	if notice, ok := notices[r.URL.Query().Get(noticeParam)]; ok {
		b.With("Notice", notice)
	}

	portfolio, err := h.Svc.ListForUser(r.Context(), p.ID)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "list investments", "user_id", p.ID, "error", err)
		b.WithError("Failed to load your investments. Please try again.")
	} else {
		b.With("Investments", portfolio.Investments).With("Stats", portfolio.Stats)
	}
	if formErr != nil {
		b.With("FormError", userMessage(formErr))
	}
	if err := h.T.Render(w, r, status, b.Build()); err != nil {
		h.logger().ErrorContext(r.Context(), "render dashboard", "error", err)
	}
}

func parseInvestmentForm(r *http.Request) (*model.CreateInvestmentRequest, error) {
	amount, err := parseAmount(r.PostFormValue("deposit_amount"))
	if err != nil {
		return nil, err
	}
	date, err := parseDate(r.PostFormValue("withdrawal_date"))
	if err != nil {
		return nil, err
	}
	return &model.CreateInvestmentRequest{DepositAmount: amount, WithdrawalDate: date}, nil
}

func parseAmount(raw string) (float64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0, formError("Please enter an investment amount")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, formError("Please enter a valid amount")
	}
	return v, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, formError("Please select a withdrawal date")
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, formError("Please select a valid withdrawal date")
	}
	return t, nil
}

func formStatus(err error) int {
	var fe formError
	if errors.As(err, &fe) {
		return http.StatusBadRequest
	}
	return StatusForError(err)
}

// renderLoading writes the self-refreshing placeholder for handlers reached before the
// session loaded. Render failures are logged; the status may already be on the wire.
func renderLoading(w http.ResponseWriter, r *http.Request, t *TemplateRenderer, logger *slog.Logger) {
	w.Header().Set("Cache-Control", "no-store")
	if !IsHTMX(r) {
		w.Header().Set("Refresh", strconv.Itoa(pendingRetryAfter))
	}
	if t == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Loading…"))
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Loading", CurrentPage: PagePending}).
		With("RetryURL", r.URL.RequestURI()).
		Build()
	if err := t.Render(w, r, http.StatusOK, data); err != nil {
		logger.ErrorContext(r.Context(), "render loading page", "error", err)
	}
}

func writePending(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(pendingRetryAfter))
	WriteError(w, ErrorParams{
		Code:    http.StatusServiceUnavailable,
		ErrCode: string(domainauth.DecisionAwaitSession),
		Err:     errors.New("session is still loading; retry shortly"),
	})
}
