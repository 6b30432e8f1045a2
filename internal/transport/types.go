package transport

import "context"

// MessageRef identifies a message delivered to one recipient chat.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// SendOptions control per-send behavior. The zero value sends a plain,
// notifying message with link previews enabled.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

// Messenger is the vendor-neutral messaging contract consumed by the
// delivery engine. Every method classifies failures through the error
// helpers in this package (ErrForbidden, ErrBadRequest, FloodError);
// anything else is a generic transient error.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, opt *SendOptions) (MessageRef, error)
	SendVideo(ctx context.Context, chatID int64, fileID, caption string, opt *SendOptions) (MessageRef, error)
	Pin(ctx context.Context, ref MessageRef, silent bool) error
	UnpinAll(ctx context.Context, chatID int64) error
}
