// Package cron runs scheduled maintenance. The only job today is the story
// purge, which deletes stories past their 24-hour expiry.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/store"
)

const defaultStoryPurge = "0 * * * *"

// Runner evaluates cron expressions on a minute tick.
type Runner struct {
	cfg     config.CronConfig
	stories store.StoryStore
	gron    *gronx.Gronx
}

func New(cfg config.CronConfig, stories store.StoryStore) *Runner {
	return &Runner{cfg: cfg, stories: stories, gron: gronx.New()}
}

// Run blocks until ctx is cancelled, firing due jobs once per minute.
func (r *Runner) Run(ctx context.Context) error {
	expr := r.cfg.StoryPurge
	if expr == "" {
		expr = defaultStoryPurge
	}
	if !r.gron.IsValid(expr) {
		slog.Warn("cron: invalid story purge expression, using default", "expr", expr)
		expr = defaultStoryPurge
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	slog.Info("cron: started", "story_purge", expr)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			due, err := r.gron.IsDue(expr, time.Now())
			if err != nil || !due {
				continue
			}
			r.purgeStories(ctx)
		}
	}
}

func (r *Runner) purgeStories(ctx context.Context) {
	n, err := r.stories.PurgeExpired(ctx)
	if err != nil {
		slog.Error("cron: story purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("cron: purged expired stories", "count", n)
	}
}
