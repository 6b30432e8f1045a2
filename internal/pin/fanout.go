package pin

import (
	"context"
	"sync"
	"time"

	"pinbot/internal/storage"
	"pinbot/internal/transport"
	"pinbot/pkg/logx"
)

// FanoutConfig tunes one mass operation (broadcast or mass unpin).
type FanoutConfig struct {
	// Concurrency bounds the number of deliveries in flight at any time,
	// globally across the whole run (independent of chunk size).
	Concurrency int
	// ChunkSize groups recipients; the runner waits for a chunk to drain
	// and then pauses before the next one.
	ChunkSize  int
	ChunkPause time.Duration
	// RetryMax is the per-recipient attempt ceiling. Only rate-limited
	// attempts are repeated.
	RetryMax int
	// BackoffCap caps the per-attempt rate-limit wait.
	BackoffCap time.Duration
}

func (c FanoutConfig) withDefaults(def FanoutConfig) FanoutConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.ChunkPause <= 0 {
		c.ChunkPause = def.ChunkPause
	}
	if c.RetryMax <= 0 {
		c.RetryMax = def.RetryMax
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = def.BackoffCap
	}
	return c
}

// Reference parameters from the original deployment.
var (
	defaultBroadcastConfig = FanoutConfig{
		Concurrency: 3,
		ChunkSize:   30,
		ChunkPause:  50 * time.Millisecond,
		RetryMax:    3,
		BackoffCap:  30 * time.Second,
	}
	defaultUnpinConfig = FanoutConfig{
		Concurrency: 5,
		ChunkSize:   40,
		ChunkPause:  50 * time.Millisecond,
		RetryMax:    3,
		BackoffCap:  30 * time.Second,
	}
)

// attemptFunc performs one attempt for one recipient. A nil error counts
// the recipient as succeeded; an error carrying a rate-limit wait is
// retried within the attempt budget; anything else is a terminal failure.
type attemptFunc func(ctx context.Context, r storage.Recipient) error

// runFanout drives attempt over recipients in chunks, with a counting
// semaphore bounding global concurrency. Every recipient resolves to
// exactly one of succeeded/failed: the two counters always sum to
// len(recipients).
func (s *Service) runFanout(ctx context.Context, op string, recipients []storage.Recipient, cfg FanoutConfig, attempt attemptFunc) (succeeded, failed int) {
	sem := make(chan struct{}, cfg.Concurrency)
	var mu sync.Mutex

	for start := 0; start < len(recipients); start += cfg.ChunkSize {
		end := start + cfg.ChunkSize
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for _, r := range recipients[start:end] {
			r := r
			wg.Add(1)
			go func() {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					mu.Lock()
					failed++
					mu.Unlock()
					return
				}
				defer func() { <-sem }()

				ok := s.attemptWithRetry(ctx, op, r, cfg, attempt)
				mu.Lock()
				if ok {
					succeeded++
				} else {
					failed++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		// Keep the aggregate request rate under the API's ambient limit.
		if end < len(recipients) {
			if !s.sleep(ctx, cfg.ChunkPause) {
				mu.Lock()
				failed += len(recipients) - end
				mu.Unlock()
				return succeeded, failed
			}
		}
	}
	return succeeded, failed
}

func (s *Service) attemptWithRetry(ctx context.Context, op string, r storage.Recipient, cfg FanoutConfig, attempt attemptFunc) bool {
	for i := 1; i <= cfg.RetryMax; i++ {
		err := attempt(ctx, r)
		if err == nil {
			return true
		}
		ra, retryable := transport.RetryAfter(err)
		if !retryable || i == cfg.RetryMax {
			s.log.Debug("recipient failed",
				logx.String("op", op), logx.Int64("chat_id", r.ChatID),
				logx.Int("attempt", i), logx.Err(err))
			return false
		}
		wait := ra + time.Second
		if wait > cfg.BackoffCap {
			wait = cfg.BackoffCap
		}
		if !s.sleep(ctx, wait) {
			return false
		}
	}
	return false
}
