package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mymapsapp/mymaps-server/internal/app"
	"github.com/mymapsapp/mymaps-server/internal/auth"
	"github.com/mymapsapp/mymaps-server/internal/errors"
)

// SessionCookie carries the sealed session token for web clients.
const SessionCookie = "mymaps_session"

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// sessionKey is the context key for the resolved session.
const sessionKey ctxKey = "session"

// SessionFrom returns the session resolved for the request, or nil.
func SessionFrom(ctx context.Context) *auth.Session {
	sess, _ := ctx.Value(sessionKey).(*auth.Session)
	return sess
}

func withSession(ctx context.Context, sess *auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// sealedToken reads the session token from the Authorization header or the cookie.
func sealedToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// sessionMiddleware resolves the caller's session and stores it in context. Requests
// without a valid session, or whose session did not resolve in time, continue
// anonymously; handlers that need one call requireSession.
func sessionMiddleware(manager *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := sealedToken(r)
			if tok == "" || manager == nil {
				next.ServeHTTP(w, r)
				return
			}
			sess := manager.Resolve(r.Context(), tok)
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
		})
	}
}

// requireSession returns the caller's session or an Unauthorized error.
func requireSession(ctx context.Context) (*auth.Session, error) {
	sess := SessionFrom(ctx)
	if sess == nil {
		return nil, errors.Unauthorized("Sign in required")
	}
	return sess, nil
}

// appFor returns the App of the caller's session, or the shared anonymous App.
func (s *Server) appFor(ctx context.Context) *app.App {
	return s.registry.For(SessionFrom(ctx))
}

// streamSession resolves the session of an event stream request.
func streamSession(r *http.Request) (string, bool) {
	sess := SessionFrom(r.Context())
	if sess == nil {
		return "", false
	}
	return sess.ID, true
}
