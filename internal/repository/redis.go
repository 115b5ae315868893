package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	statusInProgress = "IN_PROGRESS"
	statusCompleted  = "COMPLETED"
)

// DepositGuard keeps one STK prompt per deposit request. A redelivered
// job must never fire a second prompt at the customer, so requests are
// marked in-progress atomically before the engine runs and completed
// once a terminal outcome is published.
type DepositGuard struct {
	client        *redis.Client
	inProgressTTL time.Duration
	completedTTL  time.Duration
}

func NewDepositGuard(client *redis.Client, inProgressTTL, completedTTL time.Duration) *DepositGuard {
	if inProgressTTL <= 0 {
		// Long enough to cover a full 30-attempt poll.
		inProgressTTL = 10 * time.Minute
	}
	if completedTTL <= 0 {
		completedTTL = 24 * time.Hour
	}
	return &DepositGuard{
		client:        client,
		inProgressTTL: inProgressTTL,
		completedTTL:  completedTTL,
	}
}

func (g *DepositGuard) Close() error {
	return g.client.Close()
}

func key(requestID string) string {
	return "deposit:confirm:" + requestID
}

// Acquire marks the request in-progress. It returns false when the
// request is already being confirmed or already finished, i.e. the
// delivery is a duplicate.
func (g *DepositGuard) Acquire(ctx context.Context, requestID string) (bool, error) {
	set, err := g.client.SetNX(ctx, key(requestID), statusInProgress, g.inProgressTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX: %w", err)
	}
	return set, nil
}

// Complete records that the request reached a terminal outcome.
func (g *DepositGuard) Complete(ctx context.Context, requestID string) error {
	return g.client.Set(ctx, key(requestID), statusCompleted, g.completedTTL).Err()
}

// Release drops the in-progress marker so a later redelivery may retry
// the confirmation, e.g. after an infrastructure failure.
func (g *DepositGuard) Release(ctx context.Context, requestID string) error {
	return g.client.Del(ctx, key(requestID)).Err()
}
