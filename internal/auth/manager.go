package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/gateway"
)

// DefaultInitTimeout bounds how long a request waits for its session to resolve.
const DefaultInitTimeout = 3 * time.Second

// Backend is the slice of the gateway the auth flow needs.
type Backend interface {
	SignInWithIDToken(ctx context.Context, provider, idToken, nonce string) (*gateway.AuthSession, error)
	RefreshSession(ctx context.Context, refreshToken string) (*gateway.AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
}

// SessionStore persists sessions.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Put(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// Manager signs users in and resolves sealed tokens to live sessions.
type Manager struct {
	store       SessionStore
	backend     Backend
	sealer      *Sealer
	initTimeout time.Duration
	refreshes   singleflight.Group
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager creates a Manager. A zero initTimeout means DefaultInitTimeout.
func NewManager(store SessionStore, backend Backend, sealer *Sealer, initTimeout time.Duration, logger *slog.Logger) *Manager {
	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}
	return &Manager{
		store:       store,
		backend:     backend,
		sealer:      sealer,
		initTimeout: initTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// SignIn exchanges a provider ID token and the raw nonce it was issued for. It returns
// the new session and the sealed token for the view client.
func (m *Manager) SignIn(ctx context.Context, idToken, rawNonce string) (*Session, string, error) {
	if !ValidIDTokenShape(idToken) {
		return nil, "", errors.Validation("id_token is not a JWT")
	}

	pair, err := m.backend.SignInWithIDToken(ctx, ProviderGoogle, idToken, rawNonce)
	if err != nil {
		return nil, "", err
	}

	sess, err := newSession(pair, m.now())
	if err != nil {
		return nil, "", err
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, "", errors.Wrap(err, errors.CodeInternal, "save session")
	}

	m.logger.Info("user signed in", "user_id", sess.UserID, "session_id", sess.ID)
	return sess, m.sealer.Seal(sess.ID), nil
}

// Resolve returns the live session behind a sealed token, refreshing its access token
// when needed. It gives up after the init timeout: a nil session means the request
// proceeds unauthenticated.
func (m *Manager) Resolve(ctx context.Context, sealed string) *Session {
	if sealed == "" {
		return nil
	}
	sessionID, err := m.sealer.Open(sealed)
	if err != nil {
		m.logger.Debug("rejected session token", "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.initTimeout)
	defer cancel()

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		m.logger.Debug("session lookup failed", "session_id", sessionID, "error", err)
		return nil
	}
	if !sess.NeedsRefresh(m.now()) {
		return sess
	}

	ch := m.refreshes.DoChan(sessionID, func() (any, error) {
		// The refresh outlives a caller that gives up so the rotated pair is not lost.
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), m.initTimeout)
		defer rcancel()
		return m.refresh(rctx, sess)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil
		}
		return res.Val.(*Session)
	case <-ctx.Done():
		m.logger.Warn("session resolution timed out", "session_id", sessionID, "timeout", m.initTimeout)
		return nil
	}
}

func (m *Manager) refresh(ctx context.Context, sess *Session) (*Session, error) {
	pair, err := m.backend.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		switch errors.CodeOf(err) {
		case errors.CodeUnauthorized, errors.CodeValidation:
			m.logger.Info("refresh token rejected, ending session", "session_id", sess.ID, "error", err)
			if derr := m.store.Delete(ctx, sess.ID); derr != nil {
				m.logger.Warn("delete session failed", "session_id", sess.ID, "error", derr)
			}
		default:
			m.logger.Warn("session refresh failed", "session_id", sess.ID, "error", err)
		}
		return nil, err
	}

	next := *sess
	if err := next.apply(pair, m.now()); err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, &next); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "save session")
	}
	m.logger.Debug("session refreshed", "session_id", next.ID, "expires_at", next.ExpiresAt)
	return &next, nil
}

// SignOut revokes the backend tokens of sess and forgets it. Backend failures are logged.
func (m *Manager) SignOut(ctx context.Context, sess *Session) error {
	if err := m.backend.SignOut(ctx, sess.AccessToken); err != nil {
		m.logger.Warn("backend sign out failed", "session_id", sess.ID, "error", err)
	}
	if err := m.store.Delete(ctx, sess.ID); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "delete session")
	}
	m.logger.Info("user signed out", "user_id", sess.UserID, "session_id", sess.ID)
	return nil
}

// InitTimeout returns the session resolution bound.
func (m *Manager) InitTimeout() time.Duration {
	return m.initTimeout
}
