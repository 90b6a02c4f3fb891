package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, res *Resolver, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	h := res.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = tok
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddleware_IssuesCookieOnFirstContact(t *testing.T) {
	res := NewResolver(Options{})
	rec, tok := serve(t, res, httptest.NewRequest(http.MethodPost, "/variant", nil))

	_, err := uuid.Parse(tok)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "userId", c.Name)
	assert.Equal(t, tok, c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int((365 * 24 * time.Hour).Seconds()), c.MaxAge)
}

func TestMiddleware_KeepsExistingToken(t *testing.T) {
	res := NewResolver(Options{})
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.AddCookie(&http.Cookie{Name: "userId", Value: "tok-1"})

	rec, tok := serve(t, res, req)

	assert.Equal(t, "tok-1", tok)
	assert.Empty(t, rec.Result().Cookies())
}

func TestMiddleware_BlankCookieIsReplaced(t *testing.T) {
	res := NewResolver(Options{CookieName: "vid", Secure: true, MaxAge: time.Hour})
	res.newToken = func() string { return "fixed" }
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "vid", Value: " "})

	rec, tok := serve(t, res, req)

	assert.Equal(t, "fixed", tok)
	require.Len(t, rec.Result().Cookies(), 1)
	c := rec.Result().Cookies()[0]
	assert.Equal(t, "vid", c.Name)
	assert.True(t, c.Secure)
	assert.Equal(t, 3600, c.MaxAge)
}

func TestMiddleware_TokensAreUnique(t *testing.T) {
	res := NewResolver(Options{})
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		_, tok := serve(t, res, httptest.NewRequest(http.MethodGet, "/", nil))
		_, dup := seen[tok]
		require.False(t, dup)
		seen[tok] = struct{}{}
	}
}

func TestFromContext_Missing(t *testing.T) {
	_, ok := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
