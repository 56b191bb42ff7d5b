//go:build integration

package pg

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"

	"github.com/chatplatform/relay/internal/errs"
	"github.com/chatplatform/relay/internal/model"
)

// Run with: go test -tags integration ./internal/store/pg \
// against a scratch database named by RELAY_TEST_POSTGRES_DSN.

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("RELAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RELAY_TEST_POSTGRES_DSN not set")
	}

	m, err := migrate.New("file://../../../migrations", dsn)
	if err != nil {
		t.Fatalf("create migrator: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}
	m.Close()

	db, err := OpenDB(dsn, 5)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		db.Exec(`TRUNCATE messages, stories, chat_members, chats, users CASCADE`)
		db.Close()
	})
	return db
}

func seedUser(t *testing.T, db *sql.DB, name string) string {
	t.Helper()
	u := &model.User{Name: name, Phone: name + "-" + uuid.Must(uuid.NewV7()).String(), Password: "x"}
	if err := NewUserStore(db).Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u.ID
}

func TestAppendAdmission(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	chats := NewChatStore(db)
	msgs := NewMessageStore(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	eve := seedUser(t, db, "eve")

	chatID, err := chats.EnsurePersonalChat(ctx, alice, bob)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := msgs.Append(ctx, chatID, eve, model.MessageText, "hi", ""); errs.KindOf(err) != errs.NotAMember {
		t.Errorf("non-member append kind = %v, want not_a_member", errs.KindOf(err))
	}

	if err := chats.SetBlocked(ctx, chatID, alice, true); err != nil {
		t.Fatal(err)
	}
	if _, err := msgs.Append(ctx, chatID, alice, model.MessageText, "hi", ""); errs.KindOf(err) != errs.Blocked {
		t.Errorf("blocked-sender append kind = %v, want blocked", errs.KindOf(err))
	}

	if err := chats.SetBlocked(ctx, chatID, alice, false); err != nil {
		t.Fatal(err)
	}
	m, err := msgs.Append(ctx, chatID, alice, model.MessageText, "hi", "")
	if err != nil {
		t.Fatal(err)
	}
	if m.CreatedAt.IsZero() {
		t.Error("store did not assign created_at")
	}
}

func TestAppendTimestampsAreStoreOrdered(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	chats := NewChatStore(db)
	msgs := NewMessageStore(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	chatID, err := chats.EnsurePersonalChat(ctx, alice, bob)
	if err != nil {
		t.Fatal(err)
	}

	m1, err := msgs.Append(ctx, chatID, alice, model.MessageText, "one", "")
	if err != nil {
		t.Fatal(err)
	}
	m2, err := msgs.Append(ctx, chatID, bob, model.MessageText, "two", "")
	if err != nil {
		t.Fatal(err)
	}
	if m2.CreatedAt.Before(m1.CreatedAt) {
		t.Errorf("later append stamped earlier: %v < %v", m2.CreatedAt, m1.CreatedAt)
	}

	page, err := msgs.List(ctx, chatID, 10, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != m1.ID || page[1].ID != m2.ID {
		t.Errorf("page order = %v, want [%s %s]", page, m1.ID, m2.ID)
	}
}

func TestListBeforeBoundaryAndTiebreak(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	chats := NewChatStore(db)
	msgs := NewMessageStore(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	chatID, err := chats.EnsurePersonalChat(ctx, alice, bob)
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	later := ts.Add(time.Minute)
	insert := func(id string, at time.Time) {
		t.Helper()
		if _, err := db.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, sender_id, type, content, created_at)
			 VALUES ($1, $2, $3, 'text', '', $4)`, id, chatID, alice, at); err != nil {
			t.Fatal(err)
		}
	}
	insert("a", ts)
	insert("b", ts)
	insert("c", later)

	// Strict before: the row at the boundary is excluded.
	page, err := msgs.List(ctx, chatID, 10, later)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("page has %d rows, want 2 (boundary row excluded)", len(page))
	}
	// Identical timestamps fall back to id order.
	if page[0].ID != "a" || page[1].ID != "b" {
		t.Errorf("tiebreak order = [%s %s], want [a b]", page[0].ID, page[1].ID)
	}

	page, err = msgs.List(ctx, chatID, 10, ts)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 0 {
		t.Errorf("before equal to oldest timestamp returned %d rows, want 0", len(page))
	}
}

func TestEnsurePersonalChatIsSingleFlight(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	chats := NewChatStore(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	ids := make([]string, 4)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = b, a
			}
			id, err := chats.EnsurePersonalChat(ctx, a, b)
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("pair resolved to different chats: %v", ids)
		}
	}
}
