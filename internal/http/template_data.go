package httpx

import (
	"maps"
	"net/http"
)

// PageMeta names the page for the layout's title and navigation highlight.
type PageMeta struct {
	Title       string
	CurrentPage string
}

// TemplateData is the value handed to the renderer. Its zero value is not usable; start
// from NewTemplateData so the layout keys are always present.
type TemplateData map[string]any

// NewTemplateData seeds the layout keys: page meta, CSRF token and, once the session has
// resolved, who is signed in and whether they may see admin links.
func NewTemplateData(r *http.Request, meta PageMeta) TemplateData {
	td := TemplateData{
		"Title":       meta.Title,
		"CurrentPage": meta.CurrentPage,
		"CSRFToken":   GetCSRFToken(r),
	}
	state, ok := GetAuthStateFromContext(r.Context())
	if !ok {
		return td
	}
	td["IsAuthenticated"] = state.Principal != nil
	td["IsAdmin"] = state.IsAdmin()
	if state.Principal != nil {
		td["User"] = state.Principal
	}
	return td
}

// WithError flags the page with a banner message.
func (td TemplateData) WithError(msg string) TemplateData {
	td["Error"], td["ErrorMessage"] = true, msg
	return td
}

// WithFieldErrors attaches per-field messages. Empty input leaves the page untouched.
func (td TemplateData) WithFieldErrors(errs map[string]string) TemplateData {
	if len(errs) == 0 {
		return td
	}
	merged, _ := td["Errors"].(map[string]string)
	if merged == nil {
		merged = make(map[string]string, len(errs))
	}
	maps.Copy(merged, errs)
	td["Errors"] = merged
	return td
}

func (td TemplateData) With(key string, value any) TemplateData {
	td[key] = value
	return td
}

// Build returns the plain map for html/template.
func (td TemplateData) Build() map[string]any { return td }
