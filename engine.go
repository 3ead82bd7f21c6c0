// Package goCred implements a credential and token-lifecycle engine: password
// login, short-lived signed access tokens, long-lived opaque refresh tokens,
// and an explicit revocation blacklist consulted before any token is trusted.
//
// Construct an [Engine] through the [Builder]; every blocking operation takes
// a context and returns an explicit error from the package-level taxonomy.
package goCred

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/store"
)

// Engine is the lifecycle manager. It owns no state beyond its wired
// collaborators and is safe for concurrent use.
type Engine struct {
	config       Config
	jwtManager   *jwt.Manager
	passwordHash passwordHasher
	refreshStore store.RefreshTokenStore
	revocations  store.RevocationStore
	directory    UserDirectory
	audit        *auditDispatcher
	metrics      *Metrics
	logger       *log.Logger
	now          func() time.Time
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) bool
	NeedsUpgrade(encodedHash string) (bool, error)
}

func (e *Engine) ready() error {
	if e == nil || e.jwtManager == nil || e.refreshStore == nil ||
		e.revocations == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Login verifies the credential pair and mints a fresh token pair. Unknown
// usernames and wrong passwords are indistinguishable in the returned error.
func (e *Engine) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.directory.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user == nil || !e.passwordHash.Verify(password, user.PasswordHash) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"username": username}
		})
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, user, password)
	}

	pair, err := e.mintPair(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, nil, nil)
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new access token. The same
// refresh token is handed back: refresh tokens are not rotated on use and
// stay valid until their own expiry or revocation.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	rec, err := e.refreshStore.Validate(ctx, refreshToken)
	if err != nil {
		e.logger.Printf("goCred: refresh-store lookup failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if rec == nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", ErrUnauthenticated, func() map[string]string {
			return map[string]string{"reason": "unknown_or_expired"}
		})
		return nil, ErrUnauthenticated
	}

	user, err := e.directory.FindByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user == nil {
		// The account vanished after the refresh token was issued; the
		// token is dead weight from here on.
		_ = e.refreshStore.Revoke(ctx, rec.TokenID)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, rec.UserID, ErrUnauthenticated, func() map[string]string {
			return map[string]string{"reason": "user_gone"}
		})
		return nil, ErrUnauthenticated
	}

	access, err := e.jwtManager.CreateAccess(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, nil, nil)
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rec.TokenID,
		TokenType:    "bearer",
	}, nil
}

// Resolve authenticates one access token: the revocation blacklist is
// consulted first, then signature and expiry are verified. Any failure,
// including a blacklist lookup error, yields [ErrUnauthenticated]; the
// engine never trusts a token it cannot prove unrevoked.
func (e *Engine) Resolve(ctx context.Context, token string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := e.now()

	revoked, err := e.revocations.Contains(ctx, token)
	if err != nil {
		e.logger.Printf("goCred: revocation lookup failed, rejecting token: %v", err)
		e.metricInc(MetricResolveInvalid)
		e.emitAudit(ctx, auditEventResolveInvalid, false, "", err, func() map[string]string {
			return map[string]string{"reason": "store_unavailable"}
		})
		return nil, ErrUnauthenticated
	}
	if revoked {
		e.metricInc(MetricResolveRevoked)
		e.emitAudit(ctx, auditEventResolveRevoked, false, "", ErrUnauthenticated, nil)
		return nil, ErrUnauthenticated
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		e.metricInc(MetricResolveInvalid)
		e.emitAudit(ctx, auditEventResolveInvalid, false, "", err, func() map[string]string {
			return map[string]string{"reason": jwt.FailureReason(err)}
		})
		return nil, ErrUnauthenticated
	}
	if claims.UserID == "" {
		e.metricInc(MetricResolveInvalid)
		return nil, ErrUnauthenticated
	}

	e.metricInc(MetricResolveSuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricResolveLatency, e.now().Sub(start))
	}

	ident := &Identity{
		UserID: claims.UserID,
		Role:   claims.Role,
	}
	if claims.ExpiresAt != nil {
		ident.ExpiresAt = claims.ExpiresAt.Time
	}
	return ident, nil
}

// ResolveAllowExpired behaves like [Resolve] but accepts tokens past their
// expiry. Signature validity and an unrevoked blacklist state remain
// mandatory.
func (e *Engine) ResolveAllowExpired(ctx context.Context, token string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	revoked, err := e.revocations.Contains(ctx, token)
	if err != nil {
		e.logger.Printf("goCred: revocation lookup failed, rejecting token: %v", err)
		return nil, ErrUnauthenticated
	}
	if revoked {
		return nil, ErrUnauthenticated
	}

	claims, err := e.jwtManager.ParseAccessAllowExpired(token)
	if err != nil || claims.UserID == "" {
		return nil, ErrUnauthenticated
	}

	ident := &Identity{
		UserID: claims.UserID,
		Role:   claims.Role,
	}
	if claims.ExpiresAt != nil {
		ident.ExpiresAt = claims.ExpiresAt.Time
	}
	return ident, nil
}

// Logout revokes the presented access token. It never fails: the token is
// blacklisted on a best-effort basis even when it is expired, malformed, or
// carries a bad signature, and store errors are logged rather than returned.
// When the owner can be recovered from the token, every refresh token the
// owner holds is revoked as well.
func (e *Engine) Logout(ctx context.Context, token string) {
	if e.ready() != nil || token == "" {
		return
	}

	now := e.now()
	rec := store.RevocationRecord{
		Token:     token,
		UserID:    store.UnknownOwner,
		RevokedAt: now,
		Reason:    store.ReasonLogout,
		// Fallback horizon for tokens whose expiry cannot be read; no
		// legitimately minted token outlives now + access TTL.
		ExpiresAt: now.Add(e.config.JWT.AccessTTL),
	}

	claims, err := e.jwtManager.ParseAccessAllowExpired(token)
	if err != nil || claims.UserID == "" {
		rec.Reason = store.ReasonInvalidToken
		e.metricInc(MetricLogoutInvalidToken)
		e.emitAudit(ctx, auditEventLogoutInvalidToken, true, "", err, func() map[string]string {
			return map[string]string{"reason": jwt.FailureReason(err)}
		})
	} else {
		rec.UserID = claims.UserID
		if claims.ExpiresAt != nil {
			rec.ExpiresAt = claims.ExpiresAt.Time
		}
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, claims.UserID, nil, nil)
	}

	if err := e.revocations.Add(ctx, rec); err != nil {
		e.logger.Printf("goCred: blacklist write failed during logout: %v", err)
	}
	if rec.UserID != store.UnknownOwner {
		if err := e.refreshStore.RevokeAll(ctx, rec.UserID); err != nil {
			e.logger.Printf("goCred: refresh revocation failed during logout: %v", err)
		}
	}
}

// RevokeAllUserTokens invalidates every refresh token held by userID.
// Already-issued access tokens remain valid until expiry unless individually
// blacklisted.
func (e *Engine) RevokeAllUserTokens(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.refreshStore.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, auditEventRevokeAll, true, userID, nil, nil)
	return nil
}

// CurrentUser resolves the token and loads the matching account record.
func (e *Engine) CurrentUser(ctx context.Context, token string) (*UserRecord, error) {
	ident, err := e.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return e.lookupIdentity(ctx, ident)
}

// CurrentUserAllowExpired is [CurrentUser] on top of [ResolveAllowExpired].
func (e *Engine) CurrentUserAllowExpired(ctx context.Context, token string) (*UserRecord, error) {
	ident, err := e.ResolveAllowExpired(ctx, token)
	if err != nil {
		return nil, err
	}
	return e.lookupIdentity(ctx, ident)
}

func (e *Engine) lookupIdentity(ctx context.Context, ident *Identity) (*UserRecord, error) {
	user, err := e.directory.FindByID(ctx, ident.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}

func (e *Engine) mintPair(ctx context.Context, user *UserRecord) (*TokenPair, error) {
	access, err := e.jwtManager.CreateAccess(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := e.refreshStore.Issue(ctx, user.ID, e.config.Refresh.TTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

// maybeUpgradeHash transparently re-hashes the password with current
// parameters. Failures only log; login already succeeded.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user *UserRecord, password string) {
	upgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	newHash, err := e.passwordHash.Hash(password)
	if err != nil {
		return
	}
	if err := e.directory.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		e.logger.Printf("goCred: password upgrade failed for %s: %v", user.ID, err)
		return
	}
	user.PasswordHash = newHash
}

// IsAdmin reports whether the identity carries the configured admin role.
func (e *Engine) IsAdmin(ident *Identity) bool {
	return ident != nil && ident.Role == e.config.Account.AdminRole
}
