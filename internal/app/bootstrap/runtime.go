package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/previmed/visit-assistant/internal/compliance"
	appconfig "github.com/previmed/visit-assistant/internal/config"
	"github.com/previmed/visit-assistant/internal/conversation"
	"github.com/previmed/visit-assistant/pkg/logging"
)

const pingTimeout = 5 * time.Second

// BuildRedisClient returns a configured Redis client or nil when no address
// is set.
func BuildRedisClient(cfg *appconfig.Config) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(redisOptions)
}

// BuildSessionStore picks the in-memory or Redis session store. A Redis
// store that cannot be reached is an error: sessions must not silently
// fall back to process memory in a multi-replica deployment.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.SessionStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if !cfg.UsesRedisSessions() {
		logger.Info("using in-memory session store")
		return conversation.NewMemorySessionStore(), nil
	}

	client := BuildRedisClient(cfg)
	if client == nil {
		return nil, fmt.Errorf("bootstrap: SESSION_STORE=redis requires REDIS_ADDR")
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bootstrap: redis not available: %w", err)
	}
	logger.Info("using redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL.String())
	return conversation.NewRedisSessionStore(client, cfg.SessionTTL), nil
}

// BuildAuditService opens the audit database. It returns nil service and
// nil db when DATABASE_URL is unset.
func BuildAuditService(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*compliance.AuditService, *sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open audit db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping audit db: %w", err)
	}
	logger.Info("visit audit trail enabled")
	return compliance.NewAuditService(db), db, nil
}
