package pin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pinbot/internal/storage"
	"pinbot/pkg/logx"
)

// errRecipientForbidden is the terminal per-recipient failure the fan-out
// runner must never retry.
var errRecipientForbidden = errors.New("recipient blocked the bot")

// MassUnpin deactivates the active message and clears the pin for every
// recipient. With nothing active it reports (0, 0, false) without a
// single network call. The deactivation is the only state mutation and
// happens before delivery, so a failure there is a hard error with no
// partial side effects.
func (s *Service) MassUnpin(ctx context.Context) (UnpinReport, error) {
	if err := s.gate.CheckAndArm(); err != nil {
		return UnpinReport{}, err
	}

	msg, err := s.store.DeactivateActive(ctx)
	if err != nil {
		return UnpinReport{}, fmt.Errorf("deactivate active message: %w", err)
	}
	if msg == nil {
		return UnpinReport{}, nil
	}

	recipients, err := snapshotRecipients(ctx, s.store, s.snapshotPageSize())
	if err != nil {
		return UnpinReport{WasActive: true}, fmt.Errorf("recipient snapshot: %w", err)
	}

	cfg := s.unpinConfig()
	start := time.Now()
	s.log.Info("mass unpin started",
		logx.Int64("message_id", msg.ID), logx.Int("recipients", len(recipients)),
		logx.Int("concurrency", cfg.Concurrency), logx.Int("chunk", cfg.ChunkSize))

	unpinned, failed := s.runFanout(ctx, "unpin", recipients, cfg, func(ctx context.Context, r storage.Recipient) error {
		return s.engine.ClearPin(ctx, r.ChatID)
	})

	took := time.Since(start)
	fields := []logx.Field{
		logx.Int64("message_id", msg.ID), logx.Int("recipients", len(recipients)),
		logx.Int("unpinned", unpinned), logx.Int("failed", failed), logx.Duration("took", took),
	}
	if failed > 0 {
		s.log.Warn("mass unpin finished with failures", fields...)
	} else {
		s.log.Info("mass unpin finished", fields...)
	}
	s.publish(EventUnpinFinished, UnpinSummary{
		MessageID:  msg.ID,
		Recipients: len(recipients),
		Unpinned:   unpinned,
		Failed:     failed,
		Took:       took,
	})
	return UnpinReport{Unpinned: unpinned, Failed: failed, WasActive: true}, nil
}
