package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/service"
)

// fakeInvestments implements InvestmentOperations over an in-memory slice.
type fakeInvestments struct {
	items     []*model.Investment
	listErr   error
	createErr error

	created  []*model.CreateInvestmentRequest
	creators []domainauth.Principal
	updates  map[string]model.UpdateInvestmentRequest
	deleted  []string
	lastOpts core.InvestmentListOptions
	filter   string
}

func (f *fakeInvestments) Create(_ context.Context, p domainauth.Principal, req *model.CreateInvestmentRequest) (*model.Investment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	f.creators = append(f.creators, p)
	inv := &model.Investment{
		ID:              "inv-new",
		UserID:          p.ID,
		UserEmail:       p.Email,
		DepositAmount:   req.DepositAmount,
		WithdrawalDate:  req.WithdrawalDate,
		Status:          model.InvestmentStatusActive,
		ProjectedReturn: model.ProjectedReturnFor(req.DepositAmount),
	}
	f.items = append(f.items, inv)
	return inv, nil
}

func (f *fakeInvestments) ListForUser(_ context.Context, userID string) (*service.UserPortfolio, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var mine []*model.Investment
	for _, inv := range f.items {
		if inv.UserID == userID {
			mine = append(mine, inv)
		}
	}
	return &service.UserPortfolio{Investments: mine, Stats: model.ComputeInvestmentStats(mine)}, nil
}

func (f *fakeInvestments) ListAll(_ context.Context, opts core.InvestmentListOptions, filter string) ([]*model.Investment, error) {
	f.lastOpts, f.filter = opts, filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeInvestments) Update(_ context.Context, id string, req model.UpdateInvestmentRequest) (*model.Investment, error) {
	if f.updates == nil {
		f.updates = map[string]model.UpdateInvestmentRequest{}
	}
	for _, inv := range f.items {
		if inv.ID == id {
			f.updates[id] = req
			return inv, nil
		}
	}
	return nil, apperrors.NotFound("investment not found")
}

func (f *fakeInvestments) Delete(_ context.Context, id string) (bool, error) {
	for i, inv := range f.items {
		if inv.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			f.deleted = append(f.deleted, id)
			return true, nil
		}
	}
	return false, nil
}

func seedInvestments() *fakeInvestments {
	return &fakeInvestments{items: []*model.Investment{
		{
			ID:              "inv-1",
			UserID:          alice.ID,
			UserEmail:       alice.Email,
			DepositAmount:   125000,
			WithdrawalDate:  time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC),
			Status:          model.InvestmentStatusActive,
			ProjectedReturn: 140000,
		},
		{
			ID:              "inv-2",
			UserID:          "u-bob",
			UserEmail:       "bob@example.com",
			DepositAmount:   5000,
			WithdrawalDate:  time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC),
			Status:          model.InvestmentStatusPending,
			ProjectedReturn: 5600,
		},
	}}
}

// withState attaches a resolved state as RouteGuard would.
func withState(r *http.Request, p *domainauth.Principal, role domainauth.Role) *http.Request {
	state := domainauth.SessionState{Principal: p, Role: role}
	return r.WithContext(SetAuthStateInContext(r.Context(), "s1", state))
}

func newDashboardHandlers(t *testing.T, svc *fakeInvestments) *DashboardHandlers {
	t.Helper()
	tr, err := NewTemplateRenderer(TemplateRendererConfig{})
	require.NoError(t, err)
	return &DashboardHandlers{Svc: svc, T: tr}
}

func TestDashboardHandlers_Dashboard(t *testing.T) {
	h := newDashboardHandlers(t, seedInvestments())
	rec := httptest.NewRecorder()
	h.Dashboard(rec, withState(browserGet(PathDashboard), &alice, domainauth.RoleUser))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "₹125,000.00")
	assert.NotContains(t, body, "bob@example.com", "only the caller's investments")
	assert.Contains(t, body, "Alice", "navigation shows the signed-in user")
	assert.NotContains(t, body, `href="/admin"`)
}

func TestDashboardHandlers_DashboardNotice(t *testing.T) {
	h := newDashboardHandlers(t, seedInvestments())

	rec := httptest.NewRecorder()
	h.Dashboard(rec, withState(browserGet(PathDashboard+"?notice=promotion_failed"), &alice, domainauth.RoleUser))
	assert.Contains(t, rec.Body.String(), "admin access could not be granted")

	rec = httptest.NewRecorder()
	h.Dashboard(rec, withState(browserGet(PathDashboard+"?notice=%3Cscript%3E"), &alice, domainauth.RoleUser))
	assert.NotContains(t, rec.Body.String(), "alert-warning", "unknown notices are ignored")
}

func TestDashboardHandlers_DashboardBeforeSessionLoaded(t *testing.T) {
	h := newDashboardHandlers(t, seedInvestments())
	req := browserGet(PathDashboard)
	req = req.WithContext(SetAuthStateInContext(req.Context(), "s1", domainauth.InitialSessionState()))
	rec := httptest.NewRecorder()
	h.Dashboard(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Refresh"))
	assert.Contains(t, rec.Body.String(), "Loading")
}

// failingWriter accepts the status line but fails every body write.
type failingWriter struct {
	*httptest.ResponseRecorder
	statuses []int
}

func (f *failingWriter) WriteHeader(code int) {
	f.statuses = append(f.statuses, code)
	f.ResponseRecorder.WriteHeader(code)
}

func (f *failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRenderLoading_FailedWriteIsLoggedOnly(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	tr, err := NewTemplateRenderer(TemplateRendererConfig{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	w := &failingWriter{ResponseRecorder: httptest.NewRecorder()}
	renderLoading(w, browserGet(PathDashboard), tr, logger)

	assert.Equal(t, []int{http.StatusOK}, w.statuses, "no second status after a failed render")
	assert.Contains(t, logs.String(), "render loading page")
	assert.Contains(t, logs.String(), "broken pipe")
}

func TestRenderLoading_WithoutRenderer(t *testing.T) {
	rec := httptest.NewRecorder()
	renderLoading(rec, browserGet(PathDashboard), nil, slog.New(slog.DiscardHandler))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Refresh"))
	assert.Equal(t, "Loading…", rec.Body.String())
}

func TestDashboardHandlers_Create(t *testing.T) {
	tomorrow := time.Now().AddDate(0, 0, 2).Format(time.DateOnly)

	t.Run("records the investment for the caller", func(t *testing.T) {
		svc := seedInvestments()
		rec := httptest.NewRecorder()
		req := postForm("/dashboard/investments", url.Values{"deposit_amount": {"10,000"}, "withdrawal_date": {tomorrow}})
		newDashboardHandlers(t, svc).Create(rec, withState(req, &alice, domainauth.RoleUser))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, PathDashboard, rec.Header().Get("Location"))
		assert.Contains(t, rec.Header().Get("Hx-Trigger"), "investment-created")
		require.Len(t, svc.created, 1)
		assert.InDelta(t, 10000, svc.created[0].DepositAmount, 0.001)
		assert.Equal(t, alice.ID, svc.creators[0].ID)
	})

	t.Run("form errors re-render the dashboard", func(t *testing.T) {
		tests := []struct {
			form    url.Values
			message string
		}{
			{url.Values{"withdrawal_date": {tomorrow}}, "Please enter an investment amount"},
			{url.Values{"deposit_amount": {"lots"}, "withdrawal_date": {tomorrow}}, "Please enter a valid amount"},
			{url.Values{"deposit_amount": {"100"}}, "Please select a withdrawal date"},
			{url.Values{"deposit_amount": {"100"}, "withdrawal_date": {"03/01/2030"}}, "Please select a valid withdrawal date"},
		}
		for _, tt := range tests {
			svc := seedInvestments()
			rec := httptest.NewRecorder()
			newDashboardHandlers(t, svc).Create(rec, withState(postForm("/dashboard/investments", tt.form), &alice, domainauth.RoleUser))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
			assert.Empty(t, svc.created)
		}
	})

	t.Run("service validation is shown", func(t *testing.T) {
		svc := seedInvestments()
		svc.createErr = apperrors.ValidationField("withdrawal_date", "withdrawal date must be in the future")
		rec := httptest.NewRecorder()
		req := postForm("/dashboard/investments", url.Values{"deposit_amount": {"100"}, "withdrawal_date": {"2001-01-01"}})
		newDashboardHandlers(t, svc).Create(rec, withState(req, &alice, domainauth.RoleUser))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "withdrawal date must be in the future")
	})
}

func TestDashboardHandlers_API(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		h := newDashboardHandlers(t, seedInvestments())
		rec := httptest.NewRecorder()
		h.ListAPI(rec, withState(apiGet("/api/investments"), &alice, domainauth.RoleUser))

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Investments []model.Investment    `json:"investments"`
			Stats       model.InvestmentStats `json:"stats"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Investments, 1)
		assert.Equal(t, "inv-1", body.Investments[0].ID)
		assert.Equal(t, 1, body.Stats.ActiveCount)
	})

	t.Run("list failure", func(t *testing.T) {
		svc := seedInvestments()
		svc.listErr = errors.New("connection reset")
		rec := httptest.NewRecorder()
		newDashboardHandlers(t, svc).ListAPI(rec, withState(apiGet("/api/investments"), &alice, domainauth.RoleUser))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})

	t.Run("create", func(t *testing.T) {
		svc := seedInvestments()
		body := `{"deposit_amount":2500,"withdrawal_date":"2030-06-01T00:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/api/investments", strings.NewReader(body))
		rec := httptest.NewRecorder()
		newDashboardHandlers(t, svc).CreateAPI(rec, withState(req, &alice, domainauth.RoleUser))

		assert.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, svc.created, 1)
		assert.InDelta(t, 2500, svc.created[0].DepositAmount, 0.001)
	})

	t.Run("pending session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newDashboardHandlers(t, seedInvestments()).ListAPI(rec, apiGet("/api/investments"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})
}
