package pg

import (
	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/store"
)

// NewStores creates all stores backed by one Postgres pool.
func NewStores(cfg config.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.DSN(), cfg.MaxPoolSize)
	if err != nil {
		return nil, err
	}

	return &store.Stores{
		Users:    NewUserStore(db),
		Chats:    NewChatStore(db),
		Messages: NewMessageStore(db),
		Stories:  NewStoryStore(db),
		Close:    db.Close,
	}, nil
}
