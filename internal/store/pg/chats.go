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

// ChatStore implements store.ChatStore backed by Postgres.
type ChatStore struct {
	db *sql.DB
}

func NewChatStore(db *sql.DB) *ChatStore { return &ChatStore{db: db} }

func (s *ChatStore) CreateChannel(ctx context.Context, creatorID, name string) (*model.Chat, error) {
	chat := &model.Chat{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      model.ChatChannel,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin create channel", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, type, name, created_at) VALUES ($1, $2, $3, $4)`,
		chat.ID, chat.Type, chat.Name, chat.CreatedAt); err != nil {
		return nil, classify("insert chat", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, role) VALUES ($1, $2, $3)`,
		chat.ID, creatorID, model.RoleAdmin); err != nil {
		return nil, classify("insert creator membership", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify("commit create channel", err)
	}

	chat.Members = []model.Member{{UserID: creatorID, Role: model.RoleAdmin}}
	return chat, nil
}

// EnsurePersonalChat serializes concurrent lookups of the same pair with a
// transaction-scoped advisory lock on the sorted pair, so exactly one
// personal chat ever exists for {a, b}.
func (s *ChatStore) EnsurePersonalChat(ctx context.Context, a, b string) (string, error) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", classify("begin ensure personal chat", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lo+":"+hi); err != nil {
		return "", classify("lock personal pair", err)
	}

	var chatID string
	err = tx.QueryRowContext(ctx,
		`SELECT c.id FROM chats c
		 JOIN chat_members m1 ON m1.chat_id = c.id AND m1.user_id = $1
		 JOIN chat_members m2 ON m2.chat_id = c.id AND m2.user_id = $2
		 WHERE c.type = $3
		 LIMIT 1`, lo, hi, model.ChatPersonal).Scan(&chatID)
	switch {
	case err == nil:
		return chatID, classify("commit ensure personal chat", tx.Commit())
	case !errors.Is(err, sql.ErrNoRows):
		return "", classify("find personal chat", err)
	}

	chatID = uuid.Must(uuid.NewV7()).String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, type, created_at) VALUES ($1, $2, $3)`,
		chatID, model.ChatPersonal, time.Now().UTC()); err != nil {
		return "", classify("insert personal chat", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, role) VALUES ($1, $2, $3), ($1, $4, $3)`,
		chatID, lo, model.RoleMember, hi); err != nil {
		return "", classify("insert personal memberships", err)
	}
	if err := tx.Commit(); err != nil {
		return "", classify("commit ensure personal chat", err)
	}
	return chatID, nil
}

func (s *ChatStore) ByID(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	var name *string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, name, created_at FROM chats WHERE id = $1`, id).
		Scan(&chat.ID, &chat.Type, &name, &chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.E(errs.NotFound, "chat not found")
	}
	if err != nil {
		return nil, classify("load chat", err)
	}
	chat.Name = derefStr(name)

	chat.Members, err = s.Members(ctx, id)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *ChatStore) ForUser(ctx context.Context, userID string) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.type, c.name, c.created_at
		 FROM chats c
		 JOIN chat_members m ON m.chat_id = c.id
		 WHERE m.user_id = $1
		 ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, classify("list chats", err)
	}
	defer rows.Close()

	chats := []model.Chat{}
	for rows.Next() {
		var c model.Chat
		var name *string
		if err := rows.Scan(&c.ID, &c.Type, &name, &c.CreatedAt); err != nil {
			return nil, classify("scan chat", err)
		}
		c.Name = derefStr(name)
		chats = append(chats, c)
	}
	return chats, classify("list chats", rows.Err())
}

func (s *ChatStore) Members(ctx context.Context, chatID string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.user_id, COALESCE(u.name, ''), m.role, m.blocked
		 FROM chat_members m
		 LEFT JOIN users u ON u.id = m.user_id
		 WHERE m.chat_id = $1
		 ORDER BY m.user_id`, chatID)
	if err != nil {
		return nil, classify("list members", err)
	}
	defer rows.Close()

	members := []model.Member{}
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.UserID, &m.Name, &m.Role, &m.Blocked); err != nil {
			return nil, classify("scan member", err)
		}
		members = append(members, m)
	}
	return members, classify("list members", rows.Err())
}

func (s *ChatStore) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("check membership", err)
	}
	return true, nil
}

func (s *ChatStore) MemberBlocked(ctx context.Context, chatID, userID string) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT blocked FROM chat_members WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID).Scan(&blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, errs.E(errs.NotAMember, fmt.Sprintf("user %s is not a member of chat %s", userID, chatID))
	}
	if err != nil {
		return false, classify("check block flag", err)
	}
	return blocked, nil
}

func (s *ChatStore) SetBlocked(ctx context.Context, chatID, userID string, blocked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_members SET blocked = $3 WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID, blocked)
	if err != nil {
		return classify("set blocked", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("set blocked", err)
	}
	if n == 0 {
		return errs.E(errs.NotAMember, fmt.Sprintf("user %s is not a member of chat %s", userID, chatID))
	}
	return nil
}
