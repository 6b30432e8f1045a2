package pin

import (
	"context"
	"fmt"
	"time"

	"pinbot/internal/storage"
	"pinbot/pkg/logx"
)

// Broadcast fans the given message out to every deliverable recipient.
// This is the explicit-broadcast admin operation; it passes the cooldown
// gate first.
func (s *Service) Broadcast(ctx context.Context, id int64) (storage.PinnedMessage, Report, error) {
	msg, err := s.store.PinnedMessageByID(ctx, id)
	if err != nil {
		return storage.PinnedMessage{}, Report{}, err
	}
	if err := s.gate.CheckAndArm(); err != nil {
		return storage.PinnedMessage{}, Report{}, err
	}
	rep, err := s.broadcast(ctx, msg)
	return msg, rep, err
}

// BroadcastActive broadcasts the currently active message, if any. Used
// by the delivery sweep; a nil message means there was nothing to do.
func (s *Service) BroadcastActive(ctx context.Context) (*storage.PinnedMessage, Report, error) {
	msg, err := s.store.ActiveMessage(ctx)
	if err != nil || msg == nil {
		return nil, Report{}, err
	}
	if err := s.gate.CheckAndArm(); err != nil {
		return msg, Report{}, err
	}
	rep, err := s.broadcast(ctx, *msg)
	return msg, rep, err
}

// broadcast is the orchestrator core: snapshot the recipient base, then
// drive the delivery engine over it with bounded concurrency and chunked
// pacing. Individual recipient failures are counted, never raised; the
// only hard error is a snapshot failure, which happens before any
// network call.
func (s *Service) broadcast(ctx context.Context, msg storage.PinnedMessage) (Report, error) {
	recipients, err := snapshotRecipients(ctx, s.store, s.snapshotPageSize())
	if err != nil {
		return Report{}, fmt.Errorf("recipient snapshot: %w", err)
	}

	cfg := s.broadcastConfig()
	start := time.Now()
	s.log.Info("broadcast started",
		logx.Int64("message_id", msg.ID), logx.Int("recipients", len(recipients)),
		logx.Int("concurrency", cfg.Concurrency), logx.Int("chunk", cfg.ChunkSize))

	sent, failed := s.runFanout(ctx, "broadcast", recipients, cfg, func(ctx context.Context, r storage.Recipient) error {
		res, err := s.engine.DeliverOne(ctx, r, msg)
		if err != nil {
			return err
		}
		switch res {
		case ResultForbidden:
			return errRecipientForbidden
		case ResultDelivered:
			if err := s.store.MarkDelivered(ctx, r.UserID, msg.ID); err != nil {
				s.log.Warn("delivery marker write failed",
					logx.Int64("user_id", r.UserID), logx.Int64("message_id", msg.ID), logx.Err(err))
			}
		}
		return nil
	})

	took := time.Since(start)
	fields := []logx.Field{
		logx.Int64("message_id", msg.ID), logx.Int("recipients", len(recipients)),
		logx.Int("sent", sent), logx.Int("failed", failed), logx.Duration("took", took),
	}
	if failed > 0 {
		s.log.Warn("broadcast finished with failures", fields...)
	} else {
		s.log.Info("broadcast finished", fields...)
	}
	s.publish(EventBroadcastFinished, BroadcastSummary{
		MessageID:  msg.ID,
		Recipients: len(recipients),
		Sent:       sent,
		Failed:     failed,
		Took:       took,
	})
	return Report{Sent: sent, Failed: failed}, nil
}
