package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"brokerage-sim-go/internal/config"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	refreshKeyPrefix = "session:refresh:"
	revokedKeyPrefix = "session:revoked:"
)

// ErrTokenNotFound is returned when a refresh token is unknown or expired.
var ErrTokenNotFound = errors.New("token not found")

// StoreInterface defines the interface for the session token store.
type StoreInterface interface {
	SaveRefreshToken(ctx context.Context, token string, userID uint, ttl time.Duration) error
	RefreshTokenUser(ctx context.Context, token string) (uint, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	RevokeAccessToken(ctx context.Context, token string, ttl time.Duration) error
	IsAccessTokenRevoked(ctx context.Context, token string) (bool, error)
}

// Store keeps refresh tokens and revoked access tokens in redis, each with a
// TTL matching the token's own lifetime.
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// ensure Store implements the interface
var _ StoreInterface = (*Store)(nil)

// NewStore creates a new Store and verifies the redis connection.
func NewStore(cfg *config.Redis, logger *zap.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Connected to redis", zap.String("addr", cfg.Addr))

	return &Store{rdb: rdb, logger: logger}, nil
}

// SaveRefreshToken stores a refresh token for a user.
func (s *Store) SaveRefreshToken(ctx context.Context, token string, userID uint, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, refreshKeyPrefix+token, userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// RefreshTokenUser resolves a refresh token to the user it was issued for.
func (s *Store) RefreshTokenUser(ctx context.Context, token string) (uint, error) {
	val, err := s.rdb.Get(ctx, refreshKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrTokenNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	userID, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("corrupt refresh token entry: %w", err)
	}
	return uint(userID), nil
}

// DeleteRefreshToken forgets a refresh token, if present.
func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, refreshKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// RevokeAccessToken blacklists an access token until it would have expired
// anyway.
func (s *Store) RevokeAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired
	}
	if err := s.rdb.Set(ctx, revokedKeyPrefix+token, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	s.logger.Debug("Access token revoked", zap.Duration("ttl", ttl))
	return nil
}

// IsAccessTokenRevoked reports whether an access token has been revoked.
func (s *Store) IsAccessTokenRevoked(ctx context.Context, token string) (bool, error) {
	err := s.rdb.Get(ctx, revokedKeyPrefix+token).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return true, nil
}
