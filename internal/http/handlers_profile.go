package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
)

// ProfileHandlers lets a signed-in user rename themselves. Both routes are behind RouteGuard.
type ProfileHandlers struct {
	Auth   AuthServiceInterface
	T      *TemplateRenderer
	Logger *slog.Logger
}

func (h *ProfileHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Profile renders the profile form.
// GET /profile.
func (h *ProfileHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		renderLoading(w, r, h.T, h.logger())
		return
	}
	h.renderProfile(w, r, http.StatusOK, p, nil, false)
}

// Update saves a new display name. The page is rendered from the updated session rather
// than the guard's state, which catches up when the session event arrives.
// POST /profile.
func (h *ProfileHandlers) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		renderLoading(w, r, h.T, h.logger())
		return
	}
	sess, err := h.Auth.UpdateProfile(r.Context(), GetSessionIDFromContext(r.Context()), r.PostFormValue("display_name"))
	if err != nil {
		if StatusForError(err) >= http.StatusInternalServerError {
			h.logger().ErrorContext(r.Context(), "update profile", "user_id", p.ID, "error", err)
		}
		p.DisplayName = r.PostFormValue("display_name")
		h.renderProfile(w, r, StatusForError(err), p, err, false)
		return
	}
	h.renderProfile(w, r, http.StatusOK, sess.Principal(), nil, true)
}

func (h *ProfileHandlers) renderProfile(w http.ResponseWriter, r *http.Request, status int, p domainauth.Principal, formErr error, saved bool) {
	b := NewTemplateData(r, PageMeta{Title: "Profile", CurrentPage: PageProfile}).
		With("User", &p).
		With("Saved", saved)
	if formErr != nil {
		if field := apperrors.GetField(formErr); field != "" {
			b.WithFieldErrors(map[string]string{field: userMessage(formErr)})
		} else {
			b.WithError(userMessage(formErr))
		}
	}
	if err := h.T.Render(w, r, status, b.Build()); err != nil {
		h.logger().ErrorContext(r.Context(), "render profile", "error", err)
	}
}
