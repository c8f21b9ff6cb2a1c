package imaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrNoSlot means the caller gave up waiting for a slot; fn never ran.
var ErrNoSlot = errors.New("no analysis slot")

// Pool bounds how many CPU-heavy analyses run at once. Work runs on the caller's
// goroutine while holding a slot, under a per-stage deadline.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewPool(workers int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), timeout: timeout}
}

// Do waits for a slot and runs fn. fn must honour ctx between steps.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrNoSlot, err)
	}
	defer p.sem.Release(1)
	return fn(ctx)
}
