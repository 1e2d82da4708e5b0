package httpx

import (
	"net/http"
	"net/url"
	"strings"
)

// redirectPathForRequest is where to send someone after they sign in. An htmx fragment
// request returns to the page that issued it, taken from Hx-Current-Url or Referer.
func redirectPathForRequest(r *http.Request) string {
	if IsHTMX(r) {
		for _, h := range []string{"Hx-Current-Url", "Referer"} {
			if p := localPathOf(r.Header.Get(h)); p != "" {
				return p
			}
		}
	}
	return safeRedirectPath(r.URL.RequestURI())
}

// localPathOf strips an absolute URL down to its path and query. Scheme-relative
// references yield "".
func localPathOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return ""
	case u.IsAbs():
		return safeRedirectPath(u.RequestURI())
	case u.Host != "":
		return ""
	}
	return safeRedirectPath(raw)
}

// safeRedirectPath returns candidate only if it is a same-origin absolute path, else PathHome.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return PathHome
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" {
		return PathHome
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return PathHome
	}
	return candidate
}
