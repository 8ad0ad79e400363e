package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dropified/tracksync/internal/domain"

	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("another run holds the store lock")

// releaseScript deletes the lock only if it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type StateManager interface {
	// AcquireRunLock marks runID as the active run of a store for at most ttl.
	AcquireRunLock(ctx context.Context, storeID, runID string, ttl time.Duration) error
	ReleaseRunLock(ctx context.Context, storeID, runID string) error
	ActiveRun(ctx context.Context, storeID string) (string, error)
	GetLastSummary(ctx context.Context, storeID string) (*domain.Summary, error)
	SetLastSummary(ctx context.Context, summary domain.Summary) error
}

type redisStateManager struct {
	redisClient *redis.Client
	lockPrefix  string
	lastPrefix  string
}

func NewRedisStateManager(redisClient *redis.Client) StateManager {
	return &redisStateManager{
		redisClient: redisClient,
		lockPrefix:  "tracksync:lock:store:",
		lastPrefix:  "tracksync:last-run:store:",
	}
}

func (s *redisStateManager) AcquireRunLock(ctx context.Context, storeID, runID string, ttl time.Duration) error {
	key := s.lockPrefix + storeID
	ok, err := s.redisClient.SetNX(ctx, key, runID, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to lock store %s: %w", storeID, err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (s *redisStateManager) ReleaseRunLock(ctx context.Context, storeID, runID string) error {
	key := s.lockPrefix + storeID
	if err := releaseScript.Run(ctx, s.redisClient, []string{key}, runID).Err(); err != nil {
		return fmt.Errorf("failed to release lock for store %s: %w", storeID, err)
	}
	return nil
}

func (s *redisStateManager) ActiveRun(ctx context.Context, storeID string) (string, error) {
	key := s.lockPrefix + storeID
	val, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // No active run
		}
		return "", fmt.Errorf("failed to get active run for store %s: %w", storeID, err)
	}
	return val, nil
}

func (s *redisStateManager) GetLastSummary(ctx context.Context, storeID string) (*domain.Summary, error) {
	key := s.lastPrefix + storeID
	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // No run finished yet
		}
		return nil, fmt.Errorf("failed to get last run for store %s: %w", storeID, err)
	}

	var summary domain.Summary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse last run for store %s: %w", storeID, err)
	}
	return &summary, nil
}

func (s *redisStateManager) SetLastSummary(ctx context.Context, summary domain.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary of run %s: %w", summary.RunID, err)
	}

	key := s.lastPrefix + summary.StoreID
	if err := s.redisClient.Set(ctx, key, data, 0).Err(); err != nil { // No expiration
		return fmt.Errorf("failed to save last run for store %s: %w", summary.StoreID, err)
	}
	return nil
}
