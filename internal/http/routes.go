package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InvestmentOperations covers both the dashboard and the admin console.
type InvestmentOperations interface {
	InvestmentsService
	InvestmentAdmin
}

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth        AuthServiceInterface
	Contexts    AuthContexts
	Roles       RoleChecker
	Investments InvestmentOperations
	Admin       AdminConsole
	// Federated enables the single sign-on button and routes.
	Federated       bool
	CookieDomain    string
	GuardWaitBudget time.Duration
	Metrics         *GuardMetrics
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil.
	Gatherer  prometheus.Gatherer
	Readiness map[string]ReadinessCheck
	// Renderer defaults to the embedded templates.
	Renderer *TemplateRenderer
	Logger   *slog.Logger
}

// NewRouter creates and configures a new HTTP router with browser middleware.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tr := services.Renderer
	if tr == nil {
		var err error
		if tr, err = NewTemplateRenderer(TemplateRendererConfig{Logger: logger}); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.Readiness, logger))
	gatherer := services.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	cfg := routeConfig{
		csrf: CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain}),
		guard: GuardConfig{
			Contexts:     services.Contexts,
			WaitBudget:   services.GuardWaitBudget,
			CookieDomain: services.CookieDomain,
			Renderer:     tr,
			Metrics:      services.Metrics,
			Logger:       logger,
		},
	}

	registerPublicRoutes(mux, tr, cfg)
	registerAuthRoutes(mux, &AuthHandlers{
		Svc:          services.Auth,
		Contexts:     services.Contexts,
		T:            tr,
		CookieDomain: services.CookieDomain,
		Federated:    services.Federated,
		Logger:       logger,
	}, cfg)
	registerDashboardRoutes(mux, &DashboardHandlers{Svc: services.Investments, T: tr, Logger: logger}, cfg)
	registerProfileRoutes(mux, &ProfileHandlers{Auth: services.Auth, T: tr, Logger: logger}, cfg)
	registerAdminRoutes(mux, &AdminHandlers{
		Auth:         services.Auth,
		Roles:        services.Roles,
		Admin:        services.Admin,
		Investments:  services.Investments,
		T:            tr,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}, cfg)

	return Recover(logger)(Logging(logger)(BrowserDetection()(mux))), nil
}

type routeConfig struct {
	csrf  func(http.Handler) http.Handler
	guard GuardConfig
}

// page wraps a public UI route.
func (c routeConfig) page(h http.HandlerFunc) http.Handler { return c.csrf(h) }

// signedIn wraps a UI route that needs a principal.
func (c routeConfig) signedIn(h http.HandlerFunc) http.Handler {
	return RouteGuard(c.guard)(c.csrf(h))
}

// adminOnly wraps a UI route that needs a settled admin role.
func (c routeConfig) adminOnly(h http.HandlerFunc) http.Handler {
	g := c.guard
	g.AdminOnly = true
	return RouteGuard(g)(c.csrf(h))
}

func (c routeConfig) api(h http.HandlerFunc, adminOnly bool) http.Handler {
	g := c.guard
	g.AdminOnly = adminOnly
	return RouteGuard(g)(h)
}

// The sign-in and home routes are never guarded so the guard cannot loop.
func registerPublicRoutes(mux *http.ServeMux, tr *TemplateRenderer, cfg routeConfig) {
	mux.Handle("GET /{$}", cfg.page(func(w http.ResponseWriter, r *http.Request) {
		data := NewTemplateData(r, PageMeta{Title: "DhanMatrix", CurrentPage: PageHome}).Build()
		if err := tr.Render(w, r, http.StatusOK, data); err != nil {
			cfg.guard.Logger.ErrorContext(r.Context(), "render home", "error", err)
		}
	}))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, cfg routeConfig) {
	mux.Handle("GET "+PathLogin, cfg.page(h.LoginPage))
	mux.Handle("POST "+PathLogin, cfg.page(h.Login))
	mux.Handle("GET "+PathRegister, cfg.page(h.RegisterPage))
	mux.Handle("POST "+PathRegister, cfg.page(h.Register))
	mux.Handle("POST /logout", cfg.page(h.Logout))
	if h.Federated {
		mux.HandleFunc("GET /auth/federated", h.BeginFederated)
		mux.HandleFunc("GET /auth/callback", h.Callback)
	}
	mux.HandleFunc("GET /api/session", h.Status)
}

func registerDashboardRoutes(mux *http.ServeMux, h *DashboardHandlers, cfg routeConfig) {
	mux.Handle("GET "+PathDashboard, cfg.signedIn(h.Dashboard))
	mux.Handle("POST /dashboard/investments", cfg.signedIn(h.Create))
	mux.Handle("GET /api/investments", cfg.api(h.ListAPI, false))
	mux.Handle("POST /api/investments", cfg.api(h.CreateAPI, false))
}

func registerProfileRoutes(mux *http.ServeMux, h *ProfileHandlers, cfg routeConfig) {
	mux.Handle("GET "+PathProfile, cfg.signedIn(h.Profile))
	mux.Handle("POST "+PathProfile, cfg.signedIn(h.Update))
}

func registerAdminRoutes(mux *http.ServeMux, h *AdminHandlers, cfg routeConfig) {
	mux.Handle("GET "+PathAdminLogin, cfg.page(h.LoginPage))
	mux.Handle("POST "+PathAdminLogin, cfg.page(h.Login))
	mux.Handle("GET "+PathAdminSetup, cfg.signedIn(h.SetupPage))
	mux.Handle("POST "+PathAdminSetup, cfg.signedIn(h.Setup))

	mux.Handle("GET "+PathAdmin, cfg.adminOnly(h.Console))
	mux.Handle("POST /admin/investments/{id}", cfg.adminOnly(h.UpdateInvestment))
	mux.Handle("POST /admin/investments/{id}/delete", cfg.adminOnly(h.DeleteInvestment))

	mux.Handle("GET /api/admin/investments", cfg.api(h.ListInvestmentsAPI, true))
	mux.Handle("PATCH /api/admin/investments/{id}", cfg.api(h.UpdateInvestmentAPI, true))
	mux.Handle("DELETE /api/admin/investments/{id}", cfg.api(h.DeleteInvestmentAPI, true))
}
