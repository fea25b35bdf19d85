package tokencache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/config"
)

const (
	// DefaultPrefix namespaces cache keys when none is configured.
	DefaultPrefix = "usercenter:rt:"

	// DefaultTTL caps how long a record stays cached.
	DefaultTTL = time.Hour

	pingTimeout = 5 * time.Second
)

// Hash fields of a cached record.
const (
	fieldUUID     = "uuid"
	fieldUsername = "user"
	fieldExpires  = "exp"
	fieldCreated  = "crt"
)

// Store is a read-through Redis cache in front of another auth.TokenStore.
//
// The backing store stays authoritative. Reads that miss or fail in Redis
// fall through to it. Every removal deletes the cache entry both before
// and after touching the backing store, and a failed cache delete aborts
// the removal, so a revoked token is never served from Redis. Entries
// expire no later than the token itself.
type Store struct {
	rdb     *redis.Client
	backing auth.TokenStore
	prefix  string
	ttl     time.Duration
	logger  *slog.Logger
}

// Connect parses cfg.URL, pings the server and wraps backing.
func Connect(ctx context.Context, cfg config.RedisConfig, backing auth.TokenStore, logger *slog.Logger) (*Store, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // best effort on error path
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return New(rdb, backing, cfg.Prefix, time.Duration(cfg.TTL)*time.Second, logger), nil
}

// New wraps backing with an existing client. Empty prefix and non-positive
// ttl fall back to the defaults.
func New(rdb *redis.Client, backing auth.TokenStore, prefix string, ttl time.Duration, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{rdb: rdb, backing: backing, prefix: prefix, ttl: ttl, logger: logger}
}

// key never embeds the token value itself.
func (s *Store) key(value string) string {
	sum := sha256.Sum256([]byte(value))
	return s.prefix + hex.EncodeToString(sum[:])
}

// Create writes to the backing store, then primes the cache.
func (s *Store) Create(ctx context.Context, token *auth.RefreshToken) error {
	if err := s.backing.Create(ctx, token); err != nil {
		return err
	}
	s.put(ctx, token)
	return nil
}

// FindByValue serves from Redis when possible.
func (s *Store) FindByValue(ctx context.Context, value string) (*auth.RefreshToken, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(value)).Result()
	switch {
	case err != nil:
		s.logger.Warn("token cache read failed, using backing store", "error", err)
	case len(fields) > 0:
		token, decodeErr := decodeToken(value, fields)
		if decodeErr == nil {
			return token, nil
		}
		s.logger.Warn("discarding malformed token cache entry", "error", decodeErr)
	}

	token, err := s.backing.FindByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	s.put(ctx, token)
	return token, nil
}

// Invalidate removes value from cache and backing store.
func (s *Store) Invalidate(ctx context.Context, value string) error {
	if err := s.evict(ctx, value); err != nil {
		return err
	}
	if err := s.backing.Invalidate(ctx, value); err != nil {
		return err
	}
	return s.evict(ctx, value)
}

// Rotate evicts oldValue, rotates in the backing store and primes next.
func (s *Store) Rotate(ctx context.Context, oldValue string, next *auth.RefreshToken) error {
	if err := s.evict(ctx, oldValue); err != nil {
		return err
	}
	if err := s.backing.Rotate(ctx, oldValue, next); err != nil {
		return err
	}
	if err := s.evict(ctx, oldValue); err != nil {
		return err
	}
	s.put(ctx, next)
	return nil
}

// DeleteExpired delegates to the backing store. Cached entries carry a
// TTL no longer than the token's remaining life.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.backing.DeleteExpired(ctx, now)
}

// HealthCheck pings Redis.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis client. The backing store is left open.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) put(ctx context.Context, token *auth.RefreshToken) {
	ttl := s.ttl
	if remaining := time.Until(token.ExpiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	key := s.key(token.Value)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, encodeToken(token))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("token cache write failed", "error", err)
	}
}

func (s *Store) evict(ctx context.Context, value string) error {
	if err := s.rdb.Del(ctx, s.key(value)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: evicting cached token: %w", auth.ErrStorageFailure, err)
	}
	return nil
}

func encodeToken(t *auth.RefreshToken) map[string]string {
	return map[string]string{
		fieldUUID:     t.UUID,
		fieldUsername: t.Username,
		fieldExpires:  strconv.FormatInt(t.ExpiresAt.UnixNano(), 10),
		fieldCreated:  strconv.FormatInt(t.CreatedAt.UnixNano(), 10),
	}
}

func decodeToken(value string, fields map[string]string) (*auth.RefreshToken, error) {
	uuid, username := fields[fieldUUID], fields[fieldUsername]
	if uuid == "" || username == "" {
		return nil, fmt.Errorf("missing uuid or username")
	}
	expires, err := strconv.ParseInt(fields[fieldExpires], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing expiry: %w", err)
	}
	created, err := strconv.ParseInt(fields[fieldCreated], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing creation time: %w", err)
	}
	return &auth.RefreshToken{
		Value:     value,
		UUID:      uuid,
		Username:  username,
		ExpiresAt: time.Unix(0, expires).UTC(),
		CreatedAt: time.Unix(0, created).UTC(),
	}, nil
}
