package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"mime"
	"net/http"
	"time"
)

const (
	// DefaultCSRFCookieName names both the cookie and the form field.
	DefaultCSRFCookieName = "csrf_token"
	// DefaultCSRFHeaderName is where htmx requests send the token.
	DefaultCSRFHeaderName = "X-Csrf-Token"
	csrfLifetime          = 12 * time.Hour
)

type CSRFConfig struct {
	CookieDomain string
}

type csrfTokenKey struct{}

// CSRFProtection is a double-submit cookie check. Safe methods only get a token issued;
// anything else must echo the cookie in the header or in a form field.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	cookies := cookieWriter{domain: cfg.CookieDomain}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookieValue(r, DefaultCSRFCookieName)
			if token == "" {
				token = rand.Text()
				cookies.set(w, r, &http.Cookie{
					Name:     DefaultCSRFCookieName,
					Value:    token,
					SameSite: http.SameSiteStrictMode,
					MaxAge:   int(csrfLifetime.Seconds()),
				})
			}
			r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token))

			if !isSafeMethod(r.Method) && !tokensMatch(submittedCSRFToken(r), token) {
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// submittedCSRFToken prefers the header. Only form encodings are parsed for the field.
func submittedCSRFToken(r *http.Request) string {
	if v := r.Header.Get(DefaultCSRFHeaderName); v != "" {
		return v
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/x-www-form-urlencoded" && mt != "multipart/form-data" {
		return ""
	}
	if r.ParseForm() != nil {
		return ""
	}
	return r.PostFormValue(DefaultCSRFCookieName)
}

func tokensMatch(got, want string) bool {
	return got != "" && want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// GetCSRFToken returns the request's token for embedding in forms.
func GetCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}
