package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/model"
)

// MessageStore implements store.MessageStore backed by Postgres.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore { return &MessageStore{db: db} }

// Append runs the message admission transaction. The FOR UPDATE on the
// sender's membership row serializes concurrent sends by the same sender in
// the same chat against block/unblock, so the admission decision always sees
// the current flag.
func (s *MessageStore) Append(ctx context.Context, chatID, senderID, kind, content, mediaURL string) (*model.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin append", err)
	}
	defer tx.Rollback()

	var blocked bool
	err = tx.QueryRowContext(ctx,
		`SELECT blocked FROM chat_members WHERE chat_id = $1 AND user_id = $2 FOR UPDATE`,
		chatID, senderID).Scan(&blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.E(errs.NotAMember, fmt.Sprintf("user %s is not a member of chat %s", senderID, chatID))
	}
	if err != nil {
		return nil, classify("lock membership", err)
	}
	if blocked {
		return nil, errs.E(errs.Blocked, "sender has blocked this chat")
	}

	// Idempotent reply-clears-block. A no-op given the admission check, but
	// kept inside the transaction so the invariant holds under any path.
	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_members SET blocked = false WHERE chat_id = $1 AND user_id = $2`,
		chatID, senderID); err != nil {
		return nil, classify("clear block flag", err)
	}

	msg := &model.Message{
		ID:       uuid.Must(uuid.NewV7()).String(),
		ChatID:   chatID,
		SenderID: senderID,
		Type:     kind,
		Content:  content,
		MediaURL: mediaURL,
	}
	// created_at comes from the store clock, not the node's, so pages sort
	// the same no matter which node appended.
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, type, content, media_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
		 RETURNING created_at`,
		msg.ID, msg.ChatID, msg.SenderID, msg.Type, msg.Content, nilStr(msg.MediaURL),
	).Scan(&msg.CreatedAt); err != nil {
		return nil, classify("insert message", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit append", err)
	}
	return msg, nil
}

// List pages backwards from before and returns the page in ascending
// (created_at, id) order. Identical timestamps fall back to the identifier.
func (s *MessageStore) List(ctx context.Context, chatID string, limit int, before time.Time) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, sender_id, type, content, media_url, created_at
		 FROM (
			SELECT id, chat_id, sender_id, type, content, media_url, created_at
			FROM messages
			WHERE chat_id = $1 AND created_at < $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		 ) page
		 ORDER BY created_at ASC, id ASC`,
		chatID, before, limit)
	if err != nil {
		return nil, classify("list messages", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		var mediaURL *string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Type, &m.Content, &mediaURL, &m.CreatedAt); err != nil {
			return nil, classify("scan message", err)
		}
		m.MediaURL = derefStr(mediaURL)
		msgs = append(msgs, m)
	}
	return msgs, classify("list messages", rows.Err())
}
