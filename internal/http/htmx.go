package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	hxRequest  = "Hx-Request"
	hxBoosted  = "Hx-Boosted"
	hxTrigger  = "Hx-Trigger"
	hxRedirect = "Hx-Redirect"
)

// IsHTMX reports whether htmx issued the request.
func IsHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(hxRequest), "true")
}

// WantsPartial reports whether only the page fragment should be rendered. Boosted
// navigations swap the whole body and get the full layout.
func WantsPartial(r *http.Request) bool {
	return IsHTMX(r) && !strings.EqualFold(r.Header.Get(hxBoosted), "true")
}

// HTMXResponse sets htmx response headers. Triggers accumulate into one Hx-Trigger object.
type HTMXResponse struct {
	w        http.ResponseWriter
	triggers map[string]any
}

// HTMX starts an htmx response on w.
func HTMX(w http.ResponseWriter) *HTMXResponse {
	return &HTMXResponse{w: w}
}

// Trigger fires event on the client after the swap. A nil payload sends true.
func (h *HTMXResponse) Trigger(event string, payload any) *HTMXResponse {
	if h.triggers == nil {
		h.triggers = map[string]any{}
	}
	if payload == nil {
		payload = true
	}
	h.triggers[event] = payload
	if b, err := json.Marshal(h.triggers); err == nil {
		h.w.Header().Set(hxTrigger, string(b))
	}
	return h
}

// Redirect sets Hx-Redirect and writes 204. Write nothing after calling it.
func (h *HTMXResponse) Redirect(url string) {
	h.w.Header().Set(hxRedirect, url)
	h.w.WriteHeader(http.StatusNoContent)
}

// redirect sends a browser to url: Hx-Redirect for htmx requests, 303 otherwise.
func redirect(w http.ResponseWriter, r *http.Request, url string) {
	if IsHTMX(r) {
		HTMX(w).Redirect(url)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}
