package goCred

import "errors"

var (
	// ErrInvalidCredentials is returned by [Engine.Login] when the username is
	// unknown or the password does not match. The two cases are deliberately
	// indistinguishable to callers.
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrUnauthenticated is returned whenever a presented token cannot be
	// trusted: missing, malformed, bad signature, expired, or revoked. The
	// internal reason is recorded in audit events and metrics only and must
	// never reach a response body.
	ErrUnauthenticated = errors.New("invalid or expired token")

	// ErrForbidden is returned by role-gated paths when the authenticated
	// user lacks the required role.
	ErrForbidden = errors.New("requires admin role")

	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned by [Engine.Register] on a duplicate username
	// or email.
	ErrUserExists = errors.New("user already exists")

	// ErrEngineNotReady is returned when an Engine method is called before
	// the builder wired all required dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrStoreUnavailable wraps persistence-layer failures. Resolution paths
	// fail closed on it: a token is never trusted while the revocation store
	// cannot be consulted.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
