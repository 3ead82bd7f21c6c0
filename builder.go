package goCred

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/password"
	"github.com/MrEthical07/goCred/store"
)

// Builder assembles an [Engine] with fluent option methods. Token stores are
// chosen in priority order: explicitly supplied stores win, then a Redis
// client, then a Mongo database. A user directory is always required.
//
//	engine, err := goCred.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithUserDirectory(dir).
//		Build(ctx)
type Builder struct {
	config       Config
	redisClient  redis.UniversalClient
	mongoDB      *mongo.Database
	refreshStore store.RefreshTokenStore
	revocations  store.RevocationStore
	directory    UserDirectory
	sink         AuditSink
	logger       *log.Logger
	clock        func() time.Time
}

// New returns a builder pre-loaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSecret sets the HS256 signing secret on the current configuration.
func (b *Builder) WithSecret(secret []byte) *Builder {
	b.config.JWT.Secret = secret
	return b
}

// WithRedis supplies a Redis client used for both token stores unless
// explicit stores are set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redisClient = client
	return b
}

// WithMongo supplies a Mongo database used for both token stores unless a
// Redis client or explicit stores are set. Build creates the collection
// indexes.
func (b *Builder) WithMongo(db *mongo.Database) *Builder {
	b.mongoDB = db
	return b
}

// WithStores supplies explicit token store implementations, overriding any
// Redis or Mongo handle.
func (b *Builder) WithStores(refresh store.RefreshTokenStore, revocations store.RevocationStore) *Builder {
	b.refreshStore = refresh
	b.revocations = revocations
	return b
}

// WithUserDirectory supplies the account backend. Required.
func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithAuditSink supplies the audit destination. Defaults to [NoOpSink].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger replaces the engine's operational logger.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the engine's time source. Test hook.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration, wires every collaborator, and returns a
// ready engine. The context bounds backend setup work such as Mongo index
// creation.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("a user directory is required")
	}

	jwtManager, err := jwt.NewManager(jwtConfig(b.config.JWT))
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewArgon2(passwordConfig(b.config.Password))
	if err != nil {
		return nil, err
	}

	refreshStore, revocations, err := b.buildStores(ctx)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		config:       b.config,
		jwtManager:   jwtManager,
		passwordHash: hasher,
		refreshStore: refreshStore,
		revocations:  revocations,
		directory:    b.directory,
		audit:        newAuditDispatcher(b.config.Audit, b.sink),
		metrics:      NewMetrics(b.config.Metrics),
		logger:       logger,
		now:          clock,
	}, nil
}

func (b *Builder) buildStores(ctx context.Context) (store.RefreshTokenStore, store.RevocationStore, error) {
	if b.refreshStore != nil && b.revocations != nil {
		return b.refreshStore, b.revocations, nil
	}
	if b.refreshStore != nil || b.revocations != nil {
		return nil, nil, errors.New("explicit stores must be supplied together")
	}

	if b.redisClient != nil {
		prefix := b.config.Store.KeyPrefix
		return store.NewRedisRefreshStore(b.redisClient, prefix),
			store.NewRedisRevocationStore(b.redisClient, prefix), nil
	}

	if b.mongoDB != nil {
		refresh := store.NewMongoRefreshStore(b.mongoDB)
		revocations := store.NewMongoRevocationStore(b.mongoDB)
		if err := refresh.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		if err := revocations.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		return refresh, revocations, nil
	}

	return nil, nil, errors.New("no token store backend configured")
}
