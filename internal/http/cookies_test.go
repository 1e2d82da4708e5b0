package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
)

func TestCookieWriter_Session(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("X-Forwarded-Proto", "http, https")
	rec := httptest.NewRecorder()

	cookieWriter{domain: "app.example"}.session(rec, req, &domainauth.Session{
		ID:        "sess-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	ck := findCookie(rec.Result().Cookies(), SessionCookieName)
	require.NotNil(t, ck)
	assert.Equal(t, "sess-1", ck.Value)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure, "forwarded https marks the cookie secure")
	assert.Equal(t, "app.example", ck.Domain)
	assert.InDelta(t, 3600, ck.MaxAge, 5)
}

func TestCookieWriter_SessionAlreadyExpired(t *testing.T) {
	rec := httptest.NewRecorder()
	cookieWriter{}.session(rec, httptest.NewRequest(http.MethodPost, "/login", nil), &domainauth.Session{
		ID:        "sess-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	ck := findCookie(rec.Result().Cookies(), SessionCookieName)
	require.NotNil(t, ck)
	assert.Equal(t, 1, ck.MaxAge)
}

func TestCookieWriter_HintRoundTrip(t *testing.T) {
	for _, seen := range []bool{true, false} {
		rec := httptest.NewRecorder()
		cookieWriter{}.hint(rec, httptest.NewRequest(http.MethodGet, "/", nil), seen)
		ck := findCookie(rec.Result().Cookies(), HintCookieName)
		require.NotNil(t, ck)
		assert.False(t, ck.HttpOnly, "scripts read the hint")
		assert.Equal(t, hintCookieMaxAge, ck.MaxAge)

		req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
		req.AddCookie(ck)
		got, ok := readHint(req)
		assert.True(t, ok)
		assert.Equal(t, seen, got)
	}
}

func TestReadHint_MissingOrGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := readHint(req)
	assert.False(t, ok)

	req.AddCookie(&http.Cookie{Name: HintCookieName, Value: "yes"})
	_, ok = readHint(req)
	assert.False(t, ok)
}

func TestCookieWriter_Clear(t *testing.T) {
	rec := httptest.NewRecorder()
	cookieWriter{}.clear(rec, httptest.NewRequest(http.MethodPost, "/logout", nil), SessionCookieName)
	ck := findCookie(rec.Result().Cookies(), SessionCookieName)
	require.NotNil(t, ck)
	assert.Negative(t, ck.MaxAge)
	assert.Empty(t, ck.Value)
}
