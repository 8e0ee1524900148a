// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"rentstack/platform/metering/ledger"
)

// WindowCounter tracks per-user request counts over sliding windows.
type WindowCounter interface {
	// Allow reports whether the user is under limit for the window ending
	// now, recording the request when it is. A denied request is not
	// recorded, so it cannot extend the window against the caller.
	Allow(ctx context.Context, userID, window string, size time.Duration, limit int) (bool, error)
}

// RedisCounter implements sliding-window counting with Redis sorted sets.
// One key per user per window; members are pruned as they age out, so the
// window slides continuously rather than resetting on a boundary.
type RedisCounter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisCounter creates a counter over an existing Redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, now: time.Now}
}

func (c *RedisCounter) Allow(ctx context.Context, userID, window string, size time.Duration, limit int) (bool, error) {
	now := c.now()
	key := fmt.Sprintf("airate:%s:%s", window, userID)

	pipe := c.client.Pipeline()
	minScore := now.Add(-size).UnixMilli()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate window count failed: %w", err)
	}

	if countCmd.Val() >= int64(limit) {
		return false, nil
	}

	pipe = c.client.Pipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, size+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate window record failed: %w", err)
	}
	return true, nil
}

// LedgerCounter counts completed invocations straight from the ledger. Used
// when Redis is not configured. It does not record anything itself; the
// orchestrator appends the ledger record after dispatch.
type LedgerCounter struct {
	repo ledger.Repository
	now  func() time.Time
}

// NewLedgerCounter creates a counter over the ledger repository.
func NewLedgerCounter(repo ledger.Repository) *LedgerCounter {
	return &LedgerCounter{repo: repo, now: time.Now}
}

func (c *LedgerCounter) Allow(ctx context.Context, userID, window string, size time.Duration, limit int) (bool, error) {
	now := c.now()
	count, err := c.repo.CountInWindow(ctx, userID, now.Add(-size), now)
	if err != nil {
		return false, fmt.Errorf("ledger window count failed: %w", err)
	}
	return count < limit, nil
}
