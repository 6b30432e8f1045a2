package pin

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"

	"pinbot/pkg/logx"
)

// Sweep periodically re-broadcasts the active pinned message. The
// idempotent delivery marker suppresses recipients who already hold the
// current version, so a sweep only reaches users the last run missed
// (joined later, or failed transiently).
type Sweep struct {
	cron *cron.Cron
	svc  *Service
	log  logx.Logger
}

// NewSweep builds a sweep on a standard cron schedule (e.g. "0 4 * * *").
func NewSweep(schedule string, svc *Service, log logx.Logger) (*Sweep, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sweep{cron: cron.New(), svc: svc, log: log}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweep) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweep) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweep) run() {
	ctx := context.Background()
	msg, rep, err := s.svc.BroadcastActive(ctx)
	if err != nil {
		var ce *CooldownError
		if errors.As(err, &ce) {
			// An admin-triggered mass operation ran recently; skip this
			// round rather than pile on.
			s.log.Info("delivery sweep skipped by cooldown", logx.Duration("remaining", ce.Remaining))
			return
		}
		s.log.Error("delivery sweep failed", logx.Err(err))
		return
	}
	if msg == nil {
		s.log.Debug("delivery sweep: no active message")
		return
	}
	s.log.Info("delivery sweep finished",
		logx.Int64("message_id", msg.ID), logx.Int("sent", rep.Sent), logx.Int("failed", rep.Failed))
}
