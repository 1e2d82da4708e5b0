package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHTMX(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	assert.False(t, IsHTMX(r))
	assert.False(t, WantsPartial(r))

	r.Header.Set("Hx-Request", "TRUE")
	assert.True(t, IsHTMX(r))
	assert.True(t, WantsPartial(r))

	r.Header.Set("Hx-Boosted", "true")
	assert.True(t, IsHTMX(r))
	assert.False(t, WantsPartial(r), "boosted navigation renders the full layout")
}

func TestHTMXResponse_Trigger(t *testing.T) {
	rec := httptest.NewRecorder()
	HTMX(rec).Trigger("investment-created", map[string]any{"id": "inv-1"}).Trigger("saved", nil)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get("Hx-Trigger")), &payload))
	assert.Equal(t, map[string]any{"id": "inv-1"}, payload["investment-created"])
	assert.Equal(t, true, payload["saved"])
}

func TestHTMXResponse_Redirect(t *testing.T) {
	rec := httptest.NewRecorder()
	HTMX(rec).Trigger("saved", nil).Redirect("/admin")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Hx-Redirect"))
}

func TestRedirect(t *testing.T) {
	page := httptest.NewRequest(http.MethodPost, "/login", nil)
	rec := httptest.NewRecorder()
	redirect(rec, page, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	frag := httptest.NewRequest(http.MethodPost, "/login", nil)
	frag.Header.Set("Hx-Request", "true")
	rec = httptest.NewRecorder()
	redirect(rec, frag, "/dashboard")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Hx-Redirect"))
}
