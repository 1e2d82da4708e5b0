package httpx

import "time"

// Cookie names shared by handlers and middleware.
const (
	// SessionCookieName carries the opaque browser session id.
	SessionCookieName = "session_id"
	// HintCookieName records whether this browser has seen a signed-in session ("1"/"0").
	// It is readable by scripts and outlives the session cookie.
	HintCookieName = "dm_session_hint"

	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	postLoginCookieName = "post_login_redirect"
)

const (
	hintCookieMaxAge  = 365 * 24 * 60 * 60
	oauthCookieMaxAge = 600 // 10 minutes
)

// Route paths the guard and handlers redirect between.
const (
	PathHome       = "/"
	PathLogin      = "/login"
	PathRegister   = "/register"
	PathDashboard  = "/dashboard"
	PathAdmin      = "/admin"
	PathAdminLogin = "/admin/login"
	PathAdminSetup = "/admin/setup"
	PathProfile    = "/profile"
)

// CurrentPage identifiers used by templates for navigation state.
const (
	PageHome       = "home"
	PageLogin      = "login"
	PageRegister   = "register"
	PageDashboard  = "dashboard"
	PageAdmin      = "admin"
	PageAdminLogin = "admin-login"
	PageAdminSetup = "admin-setup"
	PagePending    = "pending"
	PageProfile    = "profile"
)

// noticeParam carries a one-off banner across a redirect.
const (
	noticeParam           = "notice"
	noticePromotionFailed = "promotion_failed"
)

//nolint:gochecknoglobals // static read-only lookup for templates
var notices = map[string]string{
	noticePromotionFailed: "Your account was created, but admin access could not be granted. " +
		"Ask an administrator to promote you.",
}

// DefaultGuardWaitBudget bounds how long a guarded request waits for a pending decision.
const DefaultGuardWaitBudget = 1500 * time.Millisecond

// pendingRetryAfter is the Retry-After (seconds) and refresh delay for placeholder responses.
const pendingRetryAfter = 1

//nolint:gochecknoglobals // static read-only lookup for templates
var contentTemplates = map[string]string{
	PageHome:       "home-content",
	PageLogin:      "login-content",
	PageRegister:   "register-content",
	PageDashboard:  "dashboard-content",
	PageAdmin:      "admin-content",
	PageAdminLogin: "admin-login-content",
	PageAdminSetup: "admin-setup-content",
	PagePending:    "pending-content",
	PageProfile:    "profile-content",
}

// ContentTemplateFor returns the content template for the given CurrentPage.
// Falls back to home-content for unknown pages.
func ContentTemplateFor(currentPage string) string {
	if name, ok := contentTemplates[currentPage]; ok {
		return name
	}
	return "home-content"
}
