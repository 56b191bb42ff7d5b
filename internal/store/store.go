// Package store defines the persistence interfaces consumed by the dispatcher
// and the HTTP layer. The pg subpackage implements them on Postgres.
package store

import (
	"context"
	"time"

	"github.com/chatplatform/relay/internal/model"
)

// ProfileUpdate carries optional profile fields; nil means "leave unchanged".
type ProfileUpdate struct {
	Name           *string
	Email          *string
	ProfilePicture *string
}

// UserStore reads and writes user records. Creation happens on signup only.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	ByID(ctx context.Context, id string) (*model.User, error)
	ByPhone(ctx context.Context, phone string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*model.User, error)
	Search(ctx context.Context, q string, limit int) ([]model.User, error)
	// SetStatus updates presence; going offline also stamps last_seen.
	SetStatus(ctx context.Context, id, status string) error
}

// ChatStore manages chats and memberships.
type ChatStore interface {
	CreateChannel(ctx context.Context, creatorID, name string) (*model.Chat, error)
	// EnsurePersonalChat returns the personal chat holding exactly {a, b},
	// creating it when absent. Idempotent and order-independent.
	EnsurePersonalChat(ctx context.Context, a, b string) (string, error)
	ByID(ctx context.Context, id string) (*model.Chat, error)
	ForUser(ctx context.Context, userID string) ([]model.Chat, error)
	Members(ctx context.Context, chatID string) ([]model.Member, error)
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
	MemberBlocked(ctx context.Context, chatID, userID string) (bool, error)
	// SetBlocked toggles the block flag on userID's own membership.
	// Fails NotAMember when the membership does not exist. Idempotent.
	SetBlocked(ctx context.Context, chatID, userID string, blocked bool) error
}

// MessageStore persists messages.
type MessageStore interface {
	// Append admits and inserts a message in one transaction: it locks the
	// sender's membership row, fails NotAMember/Blocked per the admission
	// rule, clears the sender's block flag and inserts the row.
	Append(ctx context.Context, chatID, senderID, kind, content, mediaURL string) (*model.Message, error)
	// List returns up to limit messages older than before, ascending by
	// (created_at, id).
	List(ctx context.Context, chatID string, limit int, before time.Time) ([]model.Message, error)
}

// StoryStore persists stories.
type StoryStore interface {
	Create(ctx context.Context, s *model.Story) error
	Active(ctx context.Context) ([]model.Story, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// Stores bundles every store implementation behind one handle.
type Stores struct {
	Users    UserStore
	Chats    ChatStore
	Messages MessageStore
	Stories  StoryStore

	// Close releases the underlying pool.
	Close func() error
}
