package goCred_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/directory"
	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/store"
)

var testSecret = []byte("engine-test-secret-0123456789")

type testEnv struct {
	engine      *goCred.Engine
	directory   *directory.InMemory
	revocations store.RevocationStore
	refresh     store.RefreshTokenStore
}

func newTestEnv(t *testing.T, mutate func(*goCred.Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := goCred.DefaultConfig()
	cfg.JWT.Secret = testSecret
	// Low-cost hashing keeps the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	if mutate != nil {
		mutate(&cfg)
	}

	dir := directory.NewInMemory()
	refresh := store.NewRedisRefreshStore(client, cfg.Store.KeyPrefix)
	revocations := store.NewRedisRevocationStore(client, cfg.Store.KeyPrefix)

	engine, err := goCred.New().
		WithConfig(cfg).
		WithStores(refresh, revocations).
		WithUserDirectory(dir).
		WithLogger(log.New(io.Discard, "", 0)).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:      engine,
		directory:   dir,
		revocations: revocations,
		refresh:     refresh,
	}
}

func (env *testEnv) register(t *testing.T, username, password string) *goCred.UserRecord {
	t.Helper()
	user, err := env.engine.Register(context.Background(), username, username+"@example.com", password)
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return user
}

func TestLoginAndResolve(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "alice", "s3cret-pass")

	pair, err := env.engine.Login(ctx, "alice", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.TokenType != "bearer" {
		t.Errorf("TokenType = %q, want bearer", pair.TokenType)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty token in pair")
	}

	ident, err := env.engine.Resolve(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ident.UserID != user.ID {
		t.Errorf("UserID = %q, want %q", ident.UserID, user.ID)
	}
	if ident.Role != "user" {
		t.Errorf("Role = %q, want user", ident.Role)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice", "s3cret-pass")

	_, badPass := env.engine.Login(ctx, "alice", "wrong")
	_, noUser := env.engine.Login(ctx, "nobody", "whatever")

	if !errors.Is(badPass, goCred.ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", badPass)
	}
	if !errors.Is(noUser, goCred.ErrInvalidCredentials) {
		t.Errorf("unknown user: %v", noUser)
	}
	if badPass.Error() != noUser.Error() {
		t.Error("failure modes are distinguishable")
	}
}

func TestRefreshKeepsSameRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "alice", "s3cret-pass")

	pair, err := env.engine.Login(ctx, "alice", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}

	refreshed, err := env.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken != pair.RefreshToken {
		t.Error("refresh token was rotated")
	}

	ident, err := env.engine.Resolve(ctx, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("Resolve of refreshed access: %v", err)
	}
	if ident.UserID != user.ID {
		t.Errorf("UserID = %q, want %q", ident.UserID, user.ID)
	}

	// The original refresh token stays usable until expiry or revocation.
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Errorf("second Refresh: %v", err)
	}
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Refresh(context.Background(), "no-such-token")
	if !errors.Is(err, goCred.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestRefreshRejectsDeletedUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "alice", "s3cret-pass")

	pair, err := env.engine.Login(ctx, "alice", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}

	if err := env.directory.Delete(ctx, user.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, goCred.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice", "s3cret-pass")

	pair, err := env.engine.Login(ctx, "alice", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Resolve(ctx, pair.AccessToken); err != nil {
		t.Fatalf("pre-logout Resolve: %v", err)
	}

	env.engine.Logout(ctx, pair.AccessToken)

	// The token is still well before its expiry; rejection proves the
	// blacklist check, not the clock.
	if _, err := env.engine.Resolve(ctx, pair.AccessToken); !errors.Is(err, goCred.ErrUnauthenticated) {
		t.Errorf("post-logout Resolve: %v, want ErrUnauthenticated", err)
	}

	// Logout also severs the refresh path.
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, goCred.ErrUnauthenticated) {
		t.Errorf("post-logout Refresh: %v, want ErrUnauthenticated", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice", "s3cret-pass")

	pair, err := env.engine.Login(ctx, "alice", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}

	env.engine.Logout(ctx, pair.AccessToken)
	env.engine.Logout(ctx, pair.AccessToken)

	if _, err := env.engine.Resolve(ctx, pair.AccessToken); !errors.Is(err, goCred.ErrUnauthenticated) {
		t.Errorf("Resolve after double logout: %v", err)
	}
}

func TestLogoutBlacklistsUndecodableToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.engine.Logout(ctx, "garbage-token")

	revoked, err := env.revocations.Contains(ctx, "garbage-token")
	if err != nil {
		t.Fatal(err)
	}
	if !revoked {
		t.Error("undecodable token not blacklisted")
	}
}

func TestLogoutAcceptsExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "alice", "s3cret-pass")

	expired := signExpiredAccess(t, user.ID)
	env.engine.Logout(ctx, expired)

	revoked, err := env.revocations.Contains(ctx, expired)
	if err != nil {
		t.Fatal(err)
	}
	if !revoked {
		t.Error("expired token not blacklisted on logout")
	}
}

// signExpiredAccess mints a token past its expiry with the engine's secret.
func signExpiredAccess(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.AccessClaims{
		UserID: userID,
		Role:   "user",
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Issuer:    "gocred",
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestResolveRejectsExpiredButAllowExpiredAccepts(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "alice", "s3cret-pass")

	expired := signExpiredAccess(t, user.ID)

	if _, err := env.engine.Resolve(ctx, expired); !errors.Is(err, goCred.ErrUnauthenticated) {
		t.Errorf("Resolve: %v, want ErrUnauthenticated", err)
	}

	ident, err := env.engine.ResolveAllowExpired(ctx, expired)
	if err != nil {
		t.Fatalf("ResolveAllowExpired: %v", err)
	}
	if ident.UserID != user.ID {
		t.Errorf("UserID = %q, want %q", ident.UserID, user.ID)
	}
}

func TestResolveRejectsGarbage(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, input := range []string{"", "garbage", "a.b.c"} {
		if _, err := env.engine.Resolve(context.Background(), input); !errors.Is(err, goCred.ErrUnauthenticated) {
			t.Errorf("Resolve(%q) = %v, want ErrUnauthenticated", input, err)
		}
	}
}

type failingRevocations struct{}

func (failingRevocations) Add(context.Context, store.RevocationRecord) error {
	return store.ErrUnavailable
}

func (failingRevocations) Contains(context.Context, string) (bool, error) {
	return false, store.ErrUnavailable
}

type emptyRefresh struct{}

func (emptyRefresh) Issue(context.Context, string, time.Duration) (string, error) {
	return "id", nil
}
func (emptyRefresh) Validate(context.Context, string) (*store.RefreshToken, error) {
	return nil, nil
}
func (emptyRefresh) Revoke(context.Context, string) error    { return nil }
func (emptyRefresh) RevokeAll(context.Context, string) error { return nil }

// A revocation store outage must reject tokens, never admit them.
func TestResolveFailsClosedOnStoreError(t *testing.T) {
	dir := directory.NewInMemory()

	cfg := goCred.DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := goCred.New().
		WithConfig(cfg).
		WithStores(emptyRefresh{}, failingRevocations{}).
		WithUserDirectory(dir).
		WithLogger(log.New(io.Discard, "", 0)).
		Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	// A token that would otherwise be perfectly valid.
	if _, err := engine.Register(context.Background(), "alice", "alice@example.com", "s3cret-pass"); err != nil {
		t.Fatal(err)
	}
	pair, err := engine.Login(context.Background(), "alice", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Resolve(context.Background(), pair.AccessToken); !errors.Is(err, goCred.ErrUnauthenticated) {
		t.Errorf("Resolve during outage: %v, want ErrUnauthenticated", err)
	}
}

func TestRevokeAllUserTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "alice", "s3cret-pass")

	first, err := env.engine.Login(ctx, "alice", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.engine.Login(ctx, "alice", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}

	if err := env.engine.RevokeAllUserTokens(ctx, user.ID); err != nil {
		t.Fatalf("RevokeAllUserTokens: %v", err)
	}

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := env.engine.Refresh(ctx, token); !errors.Is(err, goCred.ErrUnauthenticated) {
			t.Errorf("Refresh(%s) = %v, want ErrUnauthenticated", token, err)
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "alice", "s3cret-pass")

	_, err := env.engine.Register(context.Background(), "alice", "other@example.com", "another-pass")
	if !errors.Is(err, goCred.ErrUserExists) {
		t.Errorf("err = %v, want ErrUserExists", err)
	}
}

func TestEnsureAdminUser(t *testing.T) {
	env := newTestEnv(t, func(cfg *goCred.Config) {
		cfg.Account.BootstrapAdmin = true
		cfg.Account.AdminPassword = "admin123"
	})
	ctx := context.Background()

	if err := env.engine.EnsureAdminUser(ctx); err != nil {
		t.Fatalf("EnsureAdminUser: %v", err)
	}
	// Idempotent across restarts.
	if err := env.engine.EnsureAdminUser(ctx); err != nil {
		t.Fatalf("second EnsureAdminUser: %v", err)
	}

	pair, err := env.engine.Login(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("admin Login: %v", err)
	}
	ident, err := env.engine.Resolve(ctx, pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if !env.engine.IsAdmin(ident) {
		t.Error("bootstrap account lacks the admin role")
	}
}

func TestMetricsCountLifecycleEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "alice", "s3cret-pass")

	pair, err := env.engine.Login(ctx, "alice", "s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = env.engine.Login(ctx, "alice", "wrong")
	_, _ = env.engine.Resolve(ctx, pair.AccessToken)
	env.engine.Logout(ctx, pair.AccessToken)
	_, _ = env.engine.Resolve(ctx, pair.AccessToken)

	snap := env.engine.MetricsSnapshot()
	checks := map[goCred.MetricID]uint64{
		goCred.MetricLoginSuccess:    1,
		goCred.MetricLoginFailure:    1,
		goCred.MetricResolveSuccess:  1,
		goCred.MetricResolveRevoked:  1,
		goCred.MetricLogout:          1,
		goCred.MetricRegisterSuccess: 1,
	}
	for id, want := range checks {
		if got := snap.Counters[id]; got != want {
			t.Errorf("counter %d = %d, want %d", id, got, want)
		}
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := goCred.DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.DropIfFull = false

	sink := goCred.NewChannelSink(16)
	engine, err := goCred.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserDirectory(directory.NewInMemory()).
		WithAuditSink(sink).
		WithLogger(log.New(io.Discard, "", 0)).
		Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	ctx := goCred.WithClientIP(context.Background(), "203.0.113.9")
	if _, err := engine.Register(ctx, "alice", "alice@example.com", "s3cret-pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Login(ctx, "alice", "s3cret-pass"); err != nil {
		t.Fatal(err)
	}

	var events []goCred.AuditEvent
	timeout := time.After(2 * time.Second)
	for len(events) < 2 {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("received %d events, want 2", len(events))
		}
	}

	if events[0].EventType != "register_success" {
		t.Errorf("first event %q, want register_success", events[0].EventType)
	}
	if events[1].EventType != "login_success" {
		t.Errorf("second event %q, want login_success", events[1].EventType)
	}
	for _, ev := range events {
		if ev.IP != "203.0.113.9" {
			t.Errorf("event %s IP = %q", ev.EventType, ev.IP)
		}
		if !ev.Success {
			t.Errorf("event %s not marked successful", ev.EventType)
		}
	}
}

func TestPasswordUpgradeOnLogin(t *testing.T) {
	env := newTestEnv(t, func(cfg *goCred.Config) {
		// Stronger than the digest planted below.
		cfg.Password.Memory = 16 * 1024
		cfg.Password.Time = 2
	})
	ctx := context.Background()

	// Plant a user hashed with weaker parameters than the engine's.
	weakEnv := newTestEnv(t, nil)
	weakUser := weakEnv.register(t, "alice", "s3cret-pass")
	if _, err := env.directory.Create(ctx, *weakUser); err != nil {
		t.Fatal(err)
	}

	if _, err := env.engine.Login(ctx, "alice", "s3cret-pass"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	stored, err := env.directory.FindByID(ctx, weakUser.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.PasswordHash == weakUser.PasswordHash {
		t.Error("digest not upgraded after login")
	}
	// The upgraded digest still verifies.
	if _, err := env.engine.Login(ctx, "alice", "s3cret-pass"); err != nil {
		t.Errorf("Login after upgrade: %v", err)
	}
}
