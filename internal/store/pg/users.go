package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/model"
	"github.com/chatplatform/relay/internal/store"
)

// UserStore implements store.UserStore backed by Postgres.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore { return &UserStore{db: db} }

func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	if u.Status == "" {
		u.Status = model.StatusOffline
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, phone, email, password, status, profile_picture)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, u.Phone, nilStr(u.Email), u.Password, u.Status, nilStr(u.ProfilePicture),
	)
	return classify("create user", err)
}

func (s *UserStore) ByID(ctx context.Context, id string) (*model.User, error) {
	return s.one(ctx, `WHERE id = $1`, id)
}

func (s *UserStore) ByPhone(ctx context.Context, phone string) (*model.User, error) {
	return s.one(ctx, `WHERE phone = $1`, phone)
}

func (s *UserStore) one(ctx context.Context, where string, arg any) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, password, status, last_seen, profile_picture
		 FROM users `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.E(errs.NotFound, "user not found")
	}
	if err != nil {
		return nil, classify("load user", err)
	}
	return u, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, id string, upd store.ProfileUpdate) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			profile_picture = COALESCE($4, profile_picture)
		 WHERE id = $1`,
		id, upd.Name, upd.Email, upd.ProfilePicture,
	)
	if err != nil {
		return nil, classify("update profile", err)
	}
	return s.ByID(ctx, id)
}

func (s *UserStore) Search(ctx context.Context, q string, limit int) ([]model.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone, email, password, status, last_seen, profile_picture
		 FROM users
		 WHERE name ILIKE '%' || $1 || '%' OR phone LIKE $1 || '%'
		 ORDER BY name
		 LIMIT $2`, q, limit)
	if err != nil {
		return nil, classify("search users", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify("scan user", err)
		}
		users = append(users, *u)
	}
	return users, classify("search users", rows.Err())
}

func (s *UserStore) SetStatus(ctx context.Context, id, status string) error {
	var err error
	if status == model.StatusOffline {
		_, err = s.db.ExecContext(ctx,
			`UPDATE users SET status = $2, last_seen = $3 WHERE id = $1`,
			id, status, time.Now().UTC())
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE users SET status = $2 WHERE id = $1`, id, status)
	}
	return classify("set status", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (*model.User, error) {
	var u model.User
	var email, picture *string
	var lastSeen *time.Time
	if err := r.Scan(&u.ID, &u.Name, &u.Phone, &email, &u.Password, &u.Status, &lastSeen, &picture); err != nil {
		return nil, err
	}
	u.Email = derefStr(email)
	u.ProfilePicture = derefStr(picture)
	u.LastSeen = lastSeen
	return &u, nil
}

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
