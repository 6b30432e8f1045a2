package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pinbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the store, creating the database file and schema as
// needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const messageColumns = `id, content, media_type, media_file_id, active,
	send_before_menu, send_on_every_start, created_by, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (PinnedMessage, error) {
	var (
		m                    PinnedMessage
		media                string
		createdAt, updatedAt string
	)
	err := row.Scan(&m.ID, &m.Content, &media, &m.MediaFileID, &m.Active,
		&m.SendBeforeMenu, &m.SendOnEveryStart, &m.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return PinnedMessage{}, err
	}
	m.MediaType = MediaType(media)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return m, nil
}

func (s *sqliteStore) CreatePinnedMessage(ctx context.Context, m NewPinnedMessage, activate bool) (PinnedMessage, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PinnedMessage{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if activate {
		if _, err := tx.ExecContext(ctx,
			`UPDATE pinned_messages SET active = 0, updated_at = ? WHERE active = 1`, now); err != nil {
			return PinnedMessage{}, err
		}
	}

	media := m.MediaType
	if media == "" {
		media = MediaNone
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO pinned_messages
		 (content, media_type, media_file_id, active, send_before_menu, send_on_every_start, created_by, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		m.Content, string(media), m.MediaFileID, boolInt(activate),
		boolInt(m.SendBeforeMenu), boolInt(m.SendOnEveryStart), m.CreatedBy, now, now,
	)
	if err != nil {
		return PinnedMessage{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PinnedMessage{}, err
	}

	created, err := scanMessage(tx.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM pinned_messages WHERE id = ?`, id))
	if err != nil {
		return PinnedMessage{}, err
	}
	if err := tx.Commit(); err != nil {
		return PinnedMessage{}, err
	}
	return created, nil
}

func (s *sqliteStore) ActivatePinnedMessage(ctx context.Context, id int64) (PinnedMessage, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PinnedMessage{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE pinned_messages SET active = 0, updated_at = ? WHERE active = 1 AND id != ?`, now, id); err != nil {
		return PinnedMessage{}, err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE pinned_messages SET active = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return PinnedMessage{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return PinnedMessage{}, err
	}
	if n == 0 {
		return PinnedMessage{}, ErrNotFound
	}

	msg, err := scanMessage(tx.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM pinned_messages WHERE id = ?`, id))
	if err != nil {
		return PinnedMessage{}, err
	}
	if err := tx.Commit(); err != nil {
		return PinnedMessage{}, err
	}
	return msg, nil
}

func (s *sqliteStore) DeactivateActive(ctx context.Context) (*PinnedMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	msg, err := scanMessage(tx.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM pinned_messages WHERE active = 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`UPDATE pinned_messages SET active = 0, updated_at = ? WHERE id = ?`, now, msg.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	msg.Active = false
	return &msg, nil
}

func (s *sqliteStore) ActiveMessage(ctx context.Context) (*PinnedMessage, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM pinned_messages WHERE active = 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *sqliteStore) PinnedMessageByID(ctx context.Context, id int64) (PinnedMessage, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM pinned_messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return PinnedMessage{}, ErrNotFound
	}
	return msg, err
}

func (s *sqliteStore) DeletePinnedMessage(ctx context.Context, id int64) error {
	msg, err := s.PinnedMessageByID(ctx, id)
	if err != nil {
		return err
	}
	if msg.Active {
		return ErrMessageActive
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pinned_messages WHERE id = ? AND active = 0`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) RecipientPage(ctx context.Context, afterID int64, limit int) ([]Recipient, error) {
	if limit <= 0 {
		limit = 5000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, last_delivered_message_id
		 FROM users
		 WHERE active = 1 AND chat_id IS NOT NULL AND id > ?
		 ORDER BY id
		 LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Recipient, 0, limit)
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.UserID, &r.ChatID, &r.LastDeliveredID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkDelivered(ctx context.Context, userID, messageID int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_delivered_message_id = ?, updated_at = ? WHERE id = ?`,
		messageID, now, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) UpsertUser(ctx context.Context, chatID int64, username string) (Recipient, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(chat_id, username, active, last_delivered_message_id, created_at, updated_at)
		 VALUES(?,?,1,0,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   username = excluded.username,
		   active = 1,
		   updated_at = excluded.updated_at`,
		chatID, username, now, now)
	if err != nil {
		return Recipient{}, err
	}
	return s.RecipientByChat(ctx, chatID)
}

func (s *sqliteStore) RecipientByChat(ctx context.Context, chatID int64) (Recipient, error) {
	var r Recipient
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, last_delivered_message_id
		 FROM users WHERE active = 1 AND chat_id = ?`, chatID).
		Scan(&r.UserID, &r.ChatID, &r.LastDeliveredID)
	if errors.Is(err, sql.ErrNoRows) {
		return Recipient{}, ErrNotFound
	}
	return r, err
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
