package goCred

import (
	"errors"
	"time"

	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/password"
)

// Config is the full engine configuration. Zero values are filled from
// [DefaultConfig] by the builder; validation happens once in [Builder.Build]
// and the resulting Engine treats its configuration as immutable.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Password PasswordConfig
	Account  AccountConfig
	Store    StoreConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// JWTConfig controls the access-token codec. The signing secret and method
// are process-wide: loaded once at startup, never rotated at runtime.
type JWTConfig struct {
	Method     jwt.SigningMethod
	Secret     []byte
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Leeway     time.Duration
	AccessTTL  time.Duration
}

// RefreshConfig controls opaque refresh tokens. TTL is intentionally much
// longer than the access TTL; refresh tokens are not rotated on use.
type RefreshConfig struct {
	TTL time.Duration
}

// PasswordConfig carries argon2id parameters plus the pre-hash byte bound.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// UpgradeOnLogin re-hashes a password with current parameters after a
	// successful login when the stored digest is weaker than configured.
	UpgradeOnLogin bool
}

// AccountConfig controls registration defaults and the optional bootstrap
// admin account created by [Engine.EnsureAdminUser].
type AccountConfig struct {
	DefaultRole    string
	AdminRole      string
	BootstrapAdmin bool
	AdminUsername  string
	AdminEmail     string
	AdminPassword  string
}

// StoreConfig namespaces Redis keys and names the Mongo database used by the
// built-in token store backends.
type StoreConfig struct {
	KeyPrefix     string
	MongoDatabase string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration: HS256, 24h access
// tokens, 30d refresh tokens, argon2id at 64MB/t=3/p=2.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Method:    jwt.MethodHS256,
			Issuer:    "gocred",
			Leeway:    30 * time.Second,
			AccessTTL: 24 * time.Hour,
		},
		Refresh: RefreshConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Account: AccountConfig{
			DefaultRole:   "user",
			AdminRole:     "admin",
			AdminUsername: "admin",
			AdminEmail:    "admin@example.com",
		},
		Store: StoreConfig{
			KeyPrefix:     "gc",
			MongoDatabase: "user_db",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	switch cfg.JWT.Method {
	case jwt.MethodHS256:
		if len(cfg.JWT.Secret) == 0 {
			return errors.New("hs256 requires a signing secret")
		}
	case jwt.MethodEd25519:
		if len(cfg.JWT.PrivateKey) == 0 || len(cfg.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires a key pair")
		}
	default:
		return errors.New("unsupported signing method")
	}
	if cfg.JWT.AccessTTL <= 0 {
		return errors.New("access TTL must be positive")
	}
	if cfg.Refresh.TTL <= 0 {
		return errors.New("refresh TTL must be positive")
	}
	if cfg.Refresh.TTL < cfg.JWT.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Store.KeyPrefix == "" {
		return errors.New("store key prefix must not be empty")
	}
	if cfg.Account.DefaultRole == "" || cfg.Account.AdminRole == "" {
		return errors.New("account roles must not be empty")
	}
	if cfg.Account.BootstrapAdmin && cfg.Account.AdminPassword == "" {
		return errors.New("bootstrap admin requires a password")
	}
	return nil
}

func passwordConfig(cfg PasswordConfig) password.Config {
	return password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	}
}

func jwtConfig(cfg JWTConfig) jwt.Config {
	return jwt.Config{
		Method:     cfg.Method,
		Secret:     cfg.Secret,
		PrivateKey: cfg.PrivateKey,
		PublicKey:  cfg.PublicKey,
		Issuer:     cfg.Issuer,
		Leeway:     cfg.Leeway,
		AccessTTL:  cfg.AccessTTL,
	}
}
