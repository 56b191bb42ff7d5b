package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/errs"
)

// RedisPubSub fans envelopes out over redis channels. Each subscribed channel
// owns one *redis.PubSub and one receive goroutine.
type RedisPubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
}

// DialRedis connects and verifies the server is reachable.
func DialRedis(ctx context.Context, cfg config.PubSubConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return &RedisPubSub{client: client, subs: make(map[string]*subscription)}, nil
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := r.client.Publish(ctx, channel, body).Err(); err != nil {
		return errs.E(errs.PubSubUnavailable, fmt.Sprintf("publish %s", channel), err)
	}
	return nil
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, fn func(Envelope)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[channel]; ok {
		return nil
	}

	ps := r.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so a publish racing this call
	// is not silently lost.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return errs.E(errs.PubSubUnavailable, fmt.Sprintf("subscribe %s", channel), err)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	r.subs[channel] = &subscription{ps: ps, cancel: cancel}

	go r.receive(recvCtx, channel, ps, fn)
	return nil
}

func (r *RedisPubSub) receive(ctx context.Context, channel string, ps *redis.PubSub, fn func(Envelope)) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("pubsub: dropping malformed envelope", "channel", channel, "error", err)
				continue
			}
			fn(env)
		}
	}
}

func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	sub, ok := r.subs[channel]
	if ok {
		delete(r.subs, channel)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	sub.cancel()
	return sub.ps.Close()
}

func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	for channel, sub := range r.subs {
		sub.cancel()
		sub.ps.Close()
		delete(r.subs, channel)
	}
	r.mu.Unlock()
	return r.client.Close()
}
