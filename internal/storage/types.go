package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrMessageActive is returned when deleting a message that is still
	// the active pinned message. Deactivate first.
	ErrMessageActive = errors.New("pinned message is active")
)

// MediaType describes the optional media attachment of a pinned message.
type MediaType string

const (
	MediaNone  MediaType = "none"
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
)

func (m MediaType) Valid() bool {
	switch m {
	case MediaNone, MediaPhoto, MediaVideo:
		return true
	}
	return false
}

// PinnedMessage is the broadcastable content unit.
type PinnedMessage struct {
	ID          int64
	Content     string
	MediaType   MediaType
	MediaFileID string
	Active      bool

	// SendBeforeMenu orders the pinned message before the menu text in
	// the /start flow. Informational for that flow only.
	SendBeforeMenu bool
	// SendOnEveryStart disables redelivery suppression: when false, a
	// recipient who already holds this exact version is skipped.
	SendOnEveryStart bool

	CreatedBy int64 // admin user id, 0 if unknown
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recipient is one deliverable entry of the recipient snapshot.
type Recipient struct {
	UserID          int64
	ChatID          int64
	LastDeliveredID int64 // 0 = never delivered
}

// NewPinnedMessage are the caller-supplied fields of a message insert.
type NewPinnedMessage struct {
	Content          string
	MediaType        MediaType
	MediaFileID      string
	SendBeforeMenu   bool
	SendOnEveryStart bool
	CreatedBy        int64
}

// Store is the persistence API used by the pin service.
type Store interface {
	// CreatePinnedMessage inserts a new message. With activate=true the
	// insert and the deactivation of any previously active message
	// happen in one transaction.
	CreatePinnedMessage(ctx context.Context, m NewPinnedMessage, activate bool) (PinnedMessage, error)

	// ActivatePinnedMessage flips the given message to active and
	// whatever was active to inactive, in one transaction.
	ActivatePinnedMessage(ctx context.Context, id int64) (PinnedMessage, error)

	// DeactivateActive clears the active flag. Returns (nil, nil) when
	// no message was active.
	DeactivateActive(ctx context.Context) (*PinnedMessage, error)

	// ActiveMessage returns the active message, or (nil, nil).
	ActiveMessage(ctx context.Context) (*PinnedMessage, error)

	PinnedMessageByID(ctx context.Context, id int64) (PinnedMessage, error)

	// DeletePinnedMessage removes an inactive message. Deleting the
	// active message fails with ErrMessageActive.
	DeletePinnedMessage(ctx context.Context, id int64) error

	// RecipientPage returns up to limit deliverable recipients with
	// UserID > afterID, in UserID order. Users without a chat id and
	// inactive users are excluded.
	RecipientPage(ctx context.Context, afterID int64, limit int) ([]Recipient, error)

	// MarkDelivered records the idempotent delivery marker for one user.
	// This is an isolated short-lived write, never part of a broader
	// transaction.
	MarkDelivered(ctx context.Context, userID, messageID int64) error

	// UpsertUser registers or refreshes a recipient (the /start flow).
	UpsertUser(ctx context.Context, chatID int64, username string) (Recipient, error)

	// RecipientByChat resolves one deliverable recipient by chat id.
	RecipientByChat(ctx context.Context, chatID int64) (Recipient, error)

	Close() error
}
