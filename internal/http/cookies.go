package httpx

import (
	"net/http"
	"strings"
	"time"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
)

// cookieWriter sets the app's cookies with consistent attributes.
type cookieWriter struct {
	domain string
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || isForwardedHTTPS(r)
}

// isForwardedHTTPS handles comma-separated X-Forwarded-Proto values.
func isForwardedHTTPS(r *http.Request) bool {
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

func (c cookieWriter) set(w http.ResponseWriter, r *http.Request, ck *http.Cookie) {
	ck.Path = "/"
	ck.Domain = c.domain
	ck.Secure = isSecureRequest(r)
	if ck.SameSite == 0 {
		ck.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, ck)
}

// session writes the session cookie so it lives as long as the session.
func (c cookieWriter) session(w http.ResponseWriter, r *http.Request, s *domainauth.Session) {
	c.set(w, r, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		HttpOnly: true,
		MaxAge:   max(int(time.Until(s.ExpiresAt).Seconds()), 1),
	})
}

// hint writes the persisted "seen a session" flag. It is deliberately not HttpOnly.
func (c cookieWriter) hint(w http.ResponseWriter, r *http.Request, seen bool) {
	v := "0"
	if seen {
		v = "1"
	}
	c.set(w, r, &http.Cookie{Name: HintCookieName, Value: v, MaxAge: hintCookieMaxAge})
}

func (c cookieWriter) shortLived(w http.ResponseWriter, r *http.Request, name, value string) {
	c.set(w, r, &http.Cookie{Name: name, Value: value, HttpOnly: true, MaxAge: oauthCookieMaxAge})
}

// clear expires a cookie, mirroring the attributes used when it was set.
func (c cookieWriter) clear(w http.ResponseWriter, r *http.Request, name string) {
	c.set(w, r, &http.Cookie{
		Name:     name,
		HttpOnly: name != HintCookieName,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// readHint parses the hint cookie. ok is false when the browser sent none.
func readHint(r *http.Request) (seen, ok bool) {
	switch cookieValue(r, HintCookieName) {
	case "1":
		return true, true
	case "0":
		return false, true
	default:
		return false, false
	}
}
