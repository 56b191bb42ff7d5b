package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/chatplatform/relay/internal/model"
)

// StoryStore implements store.StoryStore backed by Postgres.
type StoryStore struct {
	db *sql.DB
}

func NewStoryStore(db *sql.DB) *StoryStore { return &StoryStore{db: db} }

func (s *StoryStore) Create(ctx context.Context, story *model.Story) error {
	if story.ID == "" {
		story.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	if story.CreatedAt.IsZero() {
		story.CreatedAt = now
	}
	if story.ExpiresAt.IsZero() {
		story.ExpiresAt = story.CreatedAt.Add(model.StoryTTL)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stories (id, user_id, media_url, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		story.ID, story.UserID, story.MediaURL, story.ExpiresAt, story.CreatedAt)
	return classify("create story", err)
}

func (s *StoryStore) Active(ctx context.Context) ([]model.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, media_url, expires_at, created_at
		 FROM stories
		 WHERE expires_at > $1
		 ORDER BY created_at DESC`, time.Now().UTC())
	if err != nil {
		return nil, classify("list stories", err)
	}
	defer rows.Close()

	stories := []model.Story{}
	for rows.Next() {
		var st model.Story
		if err := rows.Scan(&st.ID, &st.UserID, &st.MediaURL, &st.ExpiresAt, &st.CreatedAt); err != nil {
			return nil, classify("scan story", err)
		}
		stories = append(stories, st)
	}
	return stories, classify("list stories", rows.Err())
}

func (s *StoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM stories WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, classify("purge stories", err)
	}
	n, err := res.RowsAffected()
	return n, classify("purge stories", err)
}
