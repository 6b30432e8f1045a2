package pin

import (
	"context"
	"fmt"
	"time"

	"pinbot/internal/storage"
	"pinbot/internal/transport"
	"pinbot/pkg/logx"
)

// Result classifies the outcome of a single delivery attempt.
type Result int

const (
	// ResultDelivered: the message was sent and pinned.
	ResultDelivered Result = iota
	// ResultSkipped: the recipient already holds this message version.
	ResultSkipped
	// ResultForbidden: the recipient blocked the bot. Terminal, counted
	// as failed by the orchestrators, never retried.
	ResultForbidden
)

// Engine performs the unpin -> send -> pin sequence for one recipient.
//
// The engine carries exactly one hidden retry: a single local re-attempt
// of the best-effort unpin step when it hits a rate limit. The primary
// send is never retried here; a rate limit on it is surfaced to the
// caller, whose retry loop owns the attempt budget.
type Engine struct {
	msgr transport.Messenger
	log  logx.Logger

	unpinBackoffCap time.Duration
	sleep           func(ctx context.Context, d time.Duration) bool
}

func NewEngine(msgr transport.Messenger, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		msgr:            msgr,
		log:             log,
		unpinBackoffCap: 30 * time.Second,
		sleep:           ctxSleep,
	}
}

// DeliverOne delivers msg to one recipient. A nil error with
// ResultForbidden means the recipient is unreachable; a non-nil error is
// either retryable (transport.RetryAfter reports a wait) or a generic
// failure.
func (e *Engine) DeliverOne(ctx context.Context, r storage.Recipient, msg storage.PinnedMessage) (Result, error) {
	if !msg.SendOnEveryStart && r.LastDeliveredID == msg.ID {
		return ResultSkipped, nil
	}

	if forbidden := e.clearExistingPin(ctx, r.ChatID); forbidden {
		return ResultForbidden, nil
	}

	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true, Silent: true}
	var (
		ref transport.MessageRef
		err error
	)
	switch msg.MediaType {
	case storage.MediaPhoto:
		ref, err = e.msgr.SendPhoto(ctx, r.ChatID, msg.MediaFileID, msg.Content, opt)
	case storage.MediaVideo:
		ref, err = e.msgr.SendVideo(ctx, r.ChatID, msg.MediaFileID, msg.Content, opt)
	default:
		ref, err = e.msgr.SendText(ctx, r.ChatID, msg.Content, opt)
	}
	if err != nil {
		if transport.IsForbidden(err) {
			return ResultForbidden, nil
		}
		return 0, err
	}

	if err := e.msgr.Pin(ctx, ref, true); err != nil {
		e.log.Warn("message sent but pin failed",
			logx.Int64("chat_id", r.ChatID), logx.Int64("message_id", msg.ID), logx.Err(err))
		// %v on purpose: a rate limit here must not look retryable to the
		// caller, or the retry would re-send the content.
		return 0, fmt.Errorf("pin after send: %v", err)
	}
	return ResultDelivered, nil
}

// clearExistingPin is the best-effort first step of a delivery. Only a
// forbidden recipient aborts; a rate limit earns a single local retry
// after the server-specified wait (capped), and everything else is
// swallowed. Failing to clear a stale pin must not block delivering the
// new one.
func (e *Engine) clearExistingPin(ctx context.Context, chatID int64) (forbidden bool) {
	err := e.ClearPin(ctx, chatID)
	if err == nil {
		return false
	}
	if transport.IsForbidden(err) {
		return true
	}
	if ra, ok := transport.RetryAfter(err); ok {
		wait := ra
		if wait > e.unpinBackoffCap {
			wait = e.unpinBackoffCap
		}
		if e.sleep(ctx, wait) {
			_ = e.ClearPin(ctx, chatID)
		}
		return false
	}
	e.log.Debug("clearing previous pin failed", logx.Int64("chat_id", chatID), logx.Err(err))
	return false
}

// ClearPin unpins everything currently pinned for one recipient. A
// "nothing to unpin" rejection counts as success. This is the primitive
// the mass-unpin orchestrator drives directly, with its own retry policy.
func (e *Engine) ClearPin(ctx context.Context, chatID int64) error {
	err := e.msgr.UnpinAll(ctx, chatID)
	if err == nil || transport.IsBadRequest(err) {
		return nil
	}
	return err
}

// ctxSleep waits for d or until ctx is cancelled. Reports whether the
// full duration elapsed.
func ctxSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
