package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/model"
)

type fakeStories struct {
	purged int64
	err    error
	calls  int
}

func (f *fakeStories) Create(context.Context, *model.Story) error    { return nil }
func (f *fakeStories) Active(context.Context) ([]model.Story, error) { return nil, nil }
func (f *fakeStories) PurgeExpired(context.Context) (int64, error) {
	f.calls++
	return f.purged, f.err
}

func TestPurgeStories(t *testing.T) {
	stories := &fakeStories{purged: 3}
	r := New(config.CronConfig{}, stories)

	r.purgeStories(context.Background())
	if stories.calls != 1 {
		t.Errorf("purge calls = %d, want 1", stories.calls)
	}
}

func TestPurgeStoriesSurvivesErrors(t *testing.T) {
	stories := &fakeStories{err: errors.New("db down")}
	r := New(config.CronConfig{}, stories)

	// Must not panic; the next tick retries.
	r.purgeStories(context.Background())
	if stories.calls != 1 {
		t.Errorf("purge calls = %d, want 1", stories.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := New(config.CronConfig{StoryPurge: "not a cron"}, &fakeStories{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Errorf("Run = %v, want nil on cancel", err)
	}
}
