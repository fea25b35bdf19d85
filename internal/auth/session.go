package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Credential is the secret presented at login. Exactly one field must be set.
type Credential struct {
	Password string
	TOTPCode string
}

// dummyHash is verified against when the username is unknown so the
// password path costs one argon2 computation either way.
var dummyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("usercenter-dummy-credential")
	if err != nil {
		return ""
	}
	return hash
})

// SessionOption customises a SessionManager.
type SessionOption func(*SessionManager)

// WithEventRecorder sets where session outcomes are reported.
func WithEventRecorder(r EventRecorder) SessionOption {
	return func(m *SessionManager) {
		if r != nil {
			m.events = r
		}
	}
}

// WithRefreshRotation makes Refresh replace the refresh token on every use.
func WithRefreshRotation(enabled bool) SessionOption {
	return func(m *SessionManager) {
		m.rotate = enabled
	}
}

// WithSessionLogger sets the logger used for session diagnostics.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// SessionManager runs the login, refresh and logout lifecycle on top of
// the identity and token stores. Time comes from the issuer's clock.
//
// Thread Safety: safe for concurrent use. Refresh rotation relies on the
// token store's atomic Rotate for double-spend protection.
type SessionManager struct {
	identities IdentityStore
	tokens     TokenStore
	issuer     *TokenIssuer
	events     EventRecorder
	logger     *slog.Logger
	rotate     bool
}

// NewSessionManager creates a session manager.
func NewSessionManager(identities IdentityStore, tokens TokenStore, issuer *TokenIssuer, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		identities: identities,
		tokens:     tokens,
		issuer:     issuer,
		events:     nopRecorder{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RotatesRefreshTokens reports whether Refresh issues a new refresh token.
func (m *SessionManager) RotatesRefreshTokens() bool {
	return m.rotate
}

// Login verifies a credential and opens a session.
//
// An unknown username and a wrong credential both return ErrInvalidCredentials.
func (m *SessionManager) Login(ctx context.Context, username string, cred Credential) (*TokenPair, error) {
	hasPassword := cred.Password != ""
	hasTOTP := cred.TOTPCode != ""
	if hasPassword == hasTOTP {
		return nil, ErrCredentialKind
	}

	identity, err := m.identities.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			m.emit(ctx, EventLoginFailed, username, "", err)
			return nil, err
		}
		if hasPassword {
			VerifyPassword(cred.Password, dummyHash())
		}
		m.emit(ctx, EventLoginFailed, username, "", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if !m.verifyCredential(identity, cred) {
		m.emit(ctx, EventLoginFailed, username, "", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	pair, record, err := m.issuer.IssueTokenPair(identity)
	if err != nil {
		m.emit(ctx, EventLoginFailed, username, "", err)
		return nil, fmt.Errorf("issuing tokens: %w", err)
	}
	if err := m.tokens.Create(ctx, record); err != nil {
		m.emit(ctx, EventLoginFailed, username, "", err)
		return nil, err
	}

	m.emit(ctx, EventLoginSucceeded, username, "", nil)
	m.logger.Debug("session opened", "username", username, "refresh_uuid", record.UUID)
	return pair, nil
}

func (m *SessionManager) verifyCredential(identity *Identity, cred Credential) bool {
	if cred.Password != "" {
		if identity.PasswordHash == "" {
			VerifyPassword(cred.Password, dummyHash())
			return false
		}
		return VerifyPassword(cred.Password, identity.PasswordHash)
	}
	return VerifyTOTP(identity.TOTPSecret, cred.TOTPCode, m.issuer.now())
}

// Refresh exchanges a refresh token for a new access token. With rotation
// enabled the refresh token is replaced too and the returned pair carries
// the new value.
func (m *SessionManager) Refresh(ctx context.Context, value string) (*TokenPair, error) {
	record, err := m.tokens.FindByValue(ctx, value)
	if err != nil {
		m.emit(ctx, EventRefreshFailed, "", "", err)
		return nil, err
	}

	if record.Expired(m.issuer.now()) {
		if err := m.tokens.Invalidate(ctx, value); err != nil {
			return nil, err
		}
		m.emit(ctx, EventRefreshFailed, record.Username, "", ErrTokenExpired)
		return nil, ErrTokenExpired
	}

	identity, err := m.identities.GetByUsername(ctx, record.Username)
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			m.emit(ctx, EventRefreshFailed, record.Username, "", err)
			return nil, err
		}
		if err := m.tokens.Invalidate(ctx, value); err != nil {
			return nil, err
		}
		m.emit(ctx, EventRefreshFailed, record.Username, "", ErrTokenNotFound)
		return nil, ErrTokenNotFound
	}

	if !m.rotate {
		pair, err := m.issuer.ReissueAccessToken(identity, record.UUID)
		if err != nil {
			return nil, fmt.Errorf("reissuing access token: %w", err)
		}
		m.emit(ctx, EventTokenRefreshed, identity.Username, "", nil)
		return pair, nil
	}

	pair, next, err := m.issuer.IssueTokenPair(identity)
	if err != nil {
		return nil, fmt.Errorf("issuing rotated tokens: %w", err)
	}
	if err := m.tokens.Rotate(ctx, value, next); err != nil {
		m.emit(ctx, EventRefreshFailed, identity.Username, "", err)
		return nil, err
	}

	m.emit(ctx, EventTokenRefreshed, identity.Username, "rotated", nil)
	return pair, nil
}

// Logout ends the session that owns value. Unknown values are not an error.
func (m *SessionManager) Logout(ctx context.Context, value string) error {
	username := ""
	if record, err := m.tokens.FindByValue(ctx, value); err == nil {
		username = record.Username
	}

	if err := m.tokens.Invalidate(ctx, value); err != nil {
		m.emit(ctx, EventLogout, username, "", err)
		return err
	}
	m.emit(ctx, EventLogout, username, "", nil)
	return nil
}

// Authenticate verifies an access token and re-reads its subject, so the
// returned identity reflects current role and capabilities.
func (m *SessionManager) Authenticate(ctx context.Context, accessToken string) (*Identity, *Claims, error) {
	claims, err := m.issuer.Verify(accessToken)
	if err != nil {
		return nil, nil, err
	}

	identity, err := m.identities.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, err
	}
	return identity, claims, nil
}

// PurgeExpired deletes refresh records that are past their expiry.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	count, err := m.tokens.DeleteExpired(ctx, m.issuer.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.events.Record(ctx, Event{
			Type:   EventTokensPurged,
			Detail: fmt.Sprintf("%d expired refresh tokens", count),
			Time:   m.issuer.now().UTC(),
		})
	}
	return count, nil
}

// RunJanitor calls PurgeExpired every interval until ctx is cancelled.
func (m *SessionManager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := m.PurgeExpired(ctx)
			if err != nil {
				m.logger.Warn("purging expired refresh tokens failed", "error", err)
				continue
			}
			if count > 0 {
				m.logger.Info("purged expired refresh tokens", "count", count)
			}
		}
	}
}

func (m *SessionManager) emit(ctx context.Context, typ EventType, username, detail string, err error) {
	m.events.Record(ctx, Event{
		Type:       typ,
		Username:   username,
		Detail:     detail,
		RemoteAddr: RemoteAddrFromContext(ctx),
		Err:        err,
		Time:       m.issuer.now().UTC(),
	})
}
