// Package blacklist is a best-effort denylist of revoked access-token IDs.
// Entries carry a TTL equal to the token's own remaining validity, so the
// list self-prunes and never outlives the tokens it denies.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "blacklist:jti:"

type Store struct {
	redis redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{redis: client}
}

// Add denylists a token ID until its natural expiry. Tokens that have already
// expired need no entry.
func (s *Store) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("empty jti")
	}
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, keyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}

	return nil
}

// Contains reports whether the token ID is currently denylisted.
func (s *Store) Contains(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	_, err := s.redis.Get(ctx, keyPrefix+jti).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("check blacklist: %w", err)
	}

	return true, nil
}
