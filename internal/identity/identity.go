// Package identity issues and resolves the durable visitor token carried in
// an HttpOnly cookie.
package identity

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey struct{}

const DefaultCookieName = "userId"

type Options struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// Resolver returns the visitor token for a request, issuing one when the
// request carries none. A token is never renewed once issued.
type Resolver struct {
	opts     Options
	newToken func() string
}

func NewResolver(opts Options) *Resolver {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 365 * 24 * time.Hour
	}
	return &Resolver{opts: opts, newToken: uuid.NewString}
}

// Resolve reads the token cookie or sets a fresh one on w.
func (res *Resolver) Resolve(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(res.opts.CookieName); err == nil {
		if tok := strings.TrimSpace(c.Value); tok != "" {
			return tok
		}
	}
	tok := res.newToken()
	http.SetCookie(w, &http.Cookie{
		Name:     res.opts.CookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(res.opts.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   res.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return tok
}

// Middleware resolves the token before every request and stores it on the
// request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := res.Resolve(w, r)
		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), tok)))
	})
}

func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKey{}, token)
}

func FromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(ctxKey{}).(string)
	return tok, ok && tok != ""
}
