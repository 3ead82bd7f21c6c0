// Command gocredd runs the credential service: Mongo for accounts, Redis
// (when configured) or Mongo for token state, HTTP on the configured
// address.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/directory"
	"github.com/MrEthical07/goCred/httpapi"
)

type flags struct {
	addr           string
	secret         string
	mongoURI       string
	mongoDB        string
	redisAddr      string
	accessTTL      time.Duration
	refreshTTL     time.Duration
	bootstrapAdmin bool
	adminPassword  string
	auditLog       bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.addr, "addr", envOr("GOCRED_ADDR", ":8080"), "listen address")
	flag.StringVar(&f.secret, "secret", os.Getenv("APP_SECRET_KEY"), "HS256 signing secret")
	flag.StringVar(&f.mongoURI, "mongo-uri", envOr("MONGO_URI", "mongodb://localhost:27017"), "Mongo connection string")
	flag.StringVar(&f.mongoDB, "mongo-db", envOr("MONGO_DB", "user_db"), "Mongo database name")
	flag.StringVar(&f.redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for token state (empty uses Mongo)")
	flag.DurationVar(&f.accessTTL, "access-ttl", 24*time.Hour, "access token lifetime")
	flag.DurationVar(&f.refreshTTL, "refresh-ttl", 30*24*time.Hour, "refresh token lifetime")
	flag.BoolVar(&f.bootstrapAdmin, "bootstrap-admin", false, "create the admin account on startup if absent")
	flag.StringVar(&f.adminPassword, "admin-password", os.Getenv("ADMIN_PASSWORD"), "bootstrap admin password")
	flag.BoolVar(&f.auditLog, "audit-log", true, "write audit events to stderr as JSON lines")
	flag.Parse()
	return f
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	f := parseFlags()
	logger := log.New(os.Stderr, "gocredd ", log.LstdFlags)

	if f.secret == "" {
		logger.Fatal("a signing secret is required (-secret or APP_SECRET_KEY)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(setupCtx, options.Client().ApplyURI(f.mongoURI))
	if err != nil {
		logger.Fatalf("mongo connect: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(shutdownCtx)
	}()
	if err := mongoClient.Ping(setupCtx, nil); err != nil {
		logger.Fatalf("mongo ping: %v", err)
	}
	db := mongoClient.Database(f.mongoDB)

	dir := directory.NewMongo(db)
	if err := dir.EnsureIndexes(setupCtx); err != nil {
		logger.Fatalf("user indexes: %v", err)
	}

	cfg := goCred.DefaultConfig()
	cfg.JWT.Secret = []byte(f.secret)
	cfg.JWT.AccessTTL = f.accessTTL
	cfg.Refresh.TTL = f.refreshTTL
	cfg.Store.MongoDatabase = f.mongoDB
	cfg.Account.BootstrapAdmin = f.bootstrapAdmin
	cfg.Account.AdminPassword = f.adminPassword
	cfg.Metrics.EnableLatencyHistograms = true

	builder := goCred.New().
		WithConfig(cfg).
		WithUserDirectory(dir).
		WithLogger(logger)

	if f.auditLog {
		builder = builder.WithAuditSink(goCred.NewJSONWriterSink(os.Stderr))
	}

	if f.redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: f.redisAddr})
		if err := client.Ping(setupCtx).Err(); err != nil {
			logger.Fatalf("redis ping: %v", err)
		}
		defer client.Close()
		builder = builder.WithRedis(client)
	} else {
		builder = builder.WithMongo(db)
	}

	engine, err := builder.Build(setupCtx)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	if err := engine.EnsureAdminUser(setupCtx); err != nil {
		logger.Fatalf("bootstrap admin: %v", err)
	}

	api := httpapi.New(engine, logger)
	server := &http.Server{
		Addr:              f.addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", f.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Print("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}
}
