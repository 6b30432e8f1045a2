package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"pinbot/internal/transport"
	"pinbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// RatePerSec bounds the aggregate outgoing request rate across all
	// callers of this adapter. This is the ambient throttle; the
	// orchestrators layer their own chunk pacing on top of it.
	RatePerSec int
}

// StartHandler is invoked when a user sends /start to the bot.
type StartHandler func(ctx context.Context, chatID int64, username string)

// Adapter implements transport.Messenger over the Telegram Bot API.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool

	startMu sync.RWMutex
	onStart StartHandler
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	a.registerHandlers()
	return a, nil
}

// SetStartHandler installs the /start callback. Safe to call before Start().
func (a *Adapter) SetStartHandler(h StartHandler) {
	a.startMu.Lock()
	a.onStart = h
	a.startMu.Unlock()
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle("/start", func(c tele.Context) error {
		a.startMu.RLock()
		h := a.onStart
		a.startMu.RUnlock()
		if h == nil || c.Chat() == nil {
			return nil
		}
		username := ""
		if c.Sender() != nil {
			username = c.Sender().Username
		}
		h(context.Background(), c.Chat().ID, username)
		return nil
	})
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true

	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()
	go func() {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	// telebot Stop is expected to be fast; run it async just in case.
	go a.bot.Stop()
	return nil
}

func (a *Adapter) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return a.send(ctx, chatID, text, opt)
}

func (a *Adapter) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	photo := &tele.Photo{File: tele.File{FileID: fileID}, Caption: caption}
	return a.send(ctx, chatID, photo, opt)
}

func (a *Adapter) SendVideo(ctx context.Context, chatID int64, fileID, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	video := &tele.Video{File: tele.File{FileID: fileID}, Caption: caption}
	return a.send(ctx, chatID, video, opt)
}

func (a *Adapter) send(ctx context.Context, chatID int64, what any, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	m, err := a.bot.Send(&tele.Chat{ID: chatID}, what, teleOptions(opt))
	if err != nil {
		return transport.MessageRef{}, classify(err)
	}
	return transport.MessageRef{ChatID: chatID, MessageID: m.ID}, nil
}

func (a *Adapter) Pin(ctx context.Context, ref transport.MessageRef, silent bool) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
	if silent {
		return classify(a.bot.Pin(msg, tele.Silent))
	}
	return classify(a.bot.Pin(msg))
}

func (a *Adapter) UnpinAll(ctx context.Context, chatID int64) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	params := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	_, err := a.bot.Raw("unpinAllChatMessages", params)
	return classify(err)
}

func teleOptions(opt *transport.SendOptions) *tele.SendOptions {
	if opt == nil {
		return &tele.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		DisableNotification:   opt.Silent,
	}
}

// classify maps telebot errors onto the transport taxonomy. Flood errors
// must be checked first: tele.FloodError embeds *tele.Error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var fe tele.FloodError
	if errors.As(err, &fe) {
		ra := time.Duration(fe.RetryAfter) * time.Second
		if ra <= 0 {
			ra = time.Second
		}
		return &transport.FloodError{RetryAfter: ra}
	}
	var te *tele.Error
	if errors.As(err, &te) {
		switch te.Code {
		case 403:
			return fmt.Errorf("%w: %s", transport.ErrForbidden, te.Description)
		case 400:
			return fmt.Errorf("%w: %s", transport.ErrBadRequest, te.Description)
		}
	}
	return err
}
