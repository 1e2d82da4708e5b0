package httpx

import (
	"context"
	"net/http"
	"strings"
)

type browserRequestKey struct{}

// BrowserDetection classifies the request once so guards and error paths agree on whether
// to answer with a page or with JSON.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))))
		})
	}
}

// IsBrowserRequest reports the classification made by BrowserDetection, computing it if
// the middleware did not run.
func IsBrowserRequest(r *http.Request) bool {
	if v, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return v
	}
	return isBrowserRequest(r)
}

// isBrowserRequest: /api/ is never a browser, htmx always is, otherwise the Accept header
// must be missing or mention text/html.
func isBrowserRequest(r *http.Request) bool {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		return false
	case IsHTMX(r):
		return true
	}
	accept := r.Header.Get("Accept")
	return accept == "" || acceptsHTML(accept)
}

func acceptsHTML(accept string) bool {
	for part := range strings.SplitSeq(accept, ",") {
		mediaType, _, _ := strings.Cut(part, ";")
		if strings.EqualFold(strings.TrimSpace(mediaType), "text/html") {
			return true
		}
	}
	return false
}
