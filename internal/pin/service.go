package pin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pinbot/internal/eventbus"
	"pinbot/internal/storage"
	"pinbot/internal/transport"
	"pinbot/pkg/logx"
)

// Report carries the delivery counters of one broadcast run.
type Report struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// UnpinReport carries the result of one mass unpin run. WasActive is true
// whenever a message was found and deactivated, regardless of how many
// individual unpins then succeeded.
type UnpinReport struct {
	Unpinned  int  `json:"unpinned"`
	Failed    int  `json:"failed"`
	WasActive bool `json:"was_active"`
}

// Options configure the service. Zero fields fall back to the reference
// parameters.
type Options struct {
	Broadcast        FanoutConfig
	Unpin            FanoutConfig
	SnapshotPageSize int
	Cooldown         time.Duration

	// MenuText is the welcome text of the /start flow. Empty disables
	// it; the pinned message is then the only thing delivered.
	MenuText string
}

// Service owns the pinned-message lifecycle and the mass operations over
// it. All mass operations pass the cooldown Gate before mutating any
// state.
type Service struct {
	store  storage.Store
	msgr   transport.Messenger
	engine *Engine
	gate   *Gate
	bus    eventbus.Bus
	log    logx.Logger

	mu       sync.RWMutex
	bcCfg    FanoutConfig
	unpinCfg FanoutConfig
	pageSize int
	menuText string

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewService(store storage.Store, msgr transport.Messenger, bus eventbus.Bus, log logx.Logger, opts Options) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	pageSize := opts.SnapshotPageSize
	if pageSize <= 0 {
		pageSize = 5000
	}
	return &Service{
		store:    store,
		msgr:     msgr,
		engine:   NewEngine(msgr, log.With(logx.String("comp", "pin.engine"))),
		gate:     NewGate(opts.Cooldown),
		bus:      bus,
		log:      log,
		bcCfg:    opts.Broadcast.withDefaults(defaultBroadcastConfig),
		unpinCfg: opts.Unpin.withDefaults(defaultUnpinConfig),
		pageSize: pageSize,
		menuText: opts.MenuText,
		sleep:    ctxSleep,
	}
}

// Apply updates the tunables. Safe during hot-reload; an in-flight run
// keeps the parameters it started with.
func (s *Service) Apply(opts Options) {
	s.mu.Lock()
	s.bcCfg = opts.Broadcast.withDefaults(defaultBroadcastConfig)
	s.unpinCfg = opts.Unpin.withDefaults(defaultUnpinConfig)
	if opts.SnapshotPageSize > 0 {
		s.pageSize = opts.SnapshotPageSize
	}
	s.menuText = opts.MenuText
	s.mu.Unlock()
	s.gate.SetWindow(opts.Cooldown)
}

// CreateParams are the admin-supplied fields of a new pinned message.
type CreateParams struct {
	Content          string
	MediaType        storage.MediaType
	MediaFileID      string
	SendBeforeMenu   bool
	SendOnEveryStart bool
	CreatedBy        int64
	Broadcast        bool
}

// Create validates and stores a new pinned message, activating it in the
// same transaction (the new version supersedes whatever was active). With
// Broadcast set it then fans the message out; the cooldown gate is
// checked before the insert so a rejection leaves no partial effect.
func (s *Service) Create(ctx context.Context, p CreateParams) (storage.PinnedMessage, *Report, error) {
	if err := ValidateContent(p.Content, p.MediaType, p.MediaFileID); err != nil {
		return storage.PinnedMessage{}, nil, err
	}
	if p.Broadcast {
		if err := s.gate.CheckAndArm(); err != nil {
			return storage.PinnedMessage{}, nil, err
		}
	}

	msg, err := s.store.CreatePinnedMessage(ctx, storage.NewPinnedMessage{
		Content:          p.Content,
		MediaType:        p.MediaType,
		MediaFileID:      p.MediaFileID,
		SendBeforeMenu:   p.SendBeforeMenu,
		SendOnEveryStart: p.SendOnEveryStart,
		CreatedBy:        p.CreatedBy,
	}, true)
	if err != nil {
		return storage.PinnedMessage{}, nil, fmt.Errorf("create pinned message: %w", err)
	}

	if !p.Broadcast {
		return msg, nil, nil
	}
	rep, err := s.broadcast(ctx, msg)
	if err != nil {
		return msg, nil, err
	}
	return msg, &rep, nil
}

// Activate flips the given message to active (deactivating the previous
// one transactionally) and optionally broadcasts it.
func (s *Service) Activate(ctx context.Context, id int64, broadcast bool) (storage.PinnedMessage, *Report, error) {
	if _, err := s.store.PinnedMessageByID(ctx, id); err != nil {
		return storage.PinnedMessage{}, nil, err
	}
	if broadcast {
		if err := s.gate.CheckAndArm(); err != nil {
			return storage.PinnedMessage{}, nil, err
		}
	}

	msg, err := s.store.ActivatePinnedMessage(ctx, id)
	if err != nil {
		return storage.PinnedMessage{}, nil, fmt.Errorf("activate pinned message %d: %w", id, err)
	}
	if !broadcast {
		return msg, nil, nil
	}
	rep, err := s.broadcast(ctx, msg)
	if err != nil {
		return msg, nil, err
	}
	return msg, &rep, nil
}

// DeactivateActive clears the active message without any network calls.
// Returns (nil, nil) when nothing was active.
func (s *Service) DeactivateActive(ctx context.Context) (*storage.PinnedMessage, error) {
	return s.store.DeactivateActive(ctx)
}

// Active returns the active message, or (nil, nil).
func (s *Service) Active(ctx context.Context) (*storage.PinnedMessage, error) {
	return s.store.ActiveMessage(ctx)
}

// Delete removes an inactive message. The active one is refused with
// storage.ErrMessageActive; deactivate or supersede it first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeletePinnedMessage(ctx, id)
}

// DeliverOnStart handles the /start flow for one user: register them,
// send the menu text and hand the active pinned message to the delivery
// engine. SendBeforeMenu orders the pinned message relative to the menu;
// the idempotence rules apply, so with SendOnEveryStart=false a user who
// already holds the current version is not re-sent.
func (s *Service) DeliverOnStart(ctx context.Context, chatID int64, username string) error {
	r, err := s.store.UpsertUser(ctx, chatID, username)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", chatID, err)
	}
	msg, err := s.store.ActiveMessage(ctx)
	if err != nil {
		return err
	}

	if msg != nil && msg.SendBeforeMenu {
		if err := s.deliverPinned(ctx, r, *msg); err != nil {
			return err
		}
		s.sendMenu(ctx, chatID)
		return nil
	}
	s.sendMenu(ctx, chatID)
	if msg == nil {
		return nil
	}
	return s.deliverPinned(ctx, r, *msg)
}

func (s *Service) deliverPinned(ctx context.Context, r storage.Recipient, msg storage.PinnedMessage) error {
	res, err := s.engine.DeliverOne(ctx, r, msg)
	if err != nil {
		return err
	}
	if res == ResultDelivered {
		if err := s.store.MarkDelivered(ctx, r.UserID, msg.ID); err != nil {
			s.log.Warn("delivery marker write failed",
				logx.Int64("user_id", r.UserID), logx.Int64("message_id", msg.ID), logx.Err(err))
		}
	}
	return nil
}

// sendMenu is best effort; a failed welcome text never blocks the
// pinned-message delivery.
func (s *Service) sendMenu(ctx context.Context, chatID int64) {
	s.mu.RLock()
	menu := s.menuText
	s.mu.RUnlock()
	if menu == "" {
		return
	}
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if _, err := s.msgr.SendText(ctx, chatID, menu, opt); err != nil {
		s.log.Warn("menu text send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (s *Service) broadcastConfig() FanoutConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bcCfg
}

func (s *Service) unpinConfig() FanoutConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unpinCfg
}

func (s *Service) snapshotPageSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageSize
}

func (s *Service) publish(eventType string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventType, Data: data})
}
