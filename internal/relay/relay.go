// Package relay fans row changes between processes sharing one database.
//
// Each process publishes its own store's changes (Origin == "") to a Redis
// channel and republishes changes received from other processes into its
// local hub with the sender's origin set. A process ignores its own
// messages, and relayed changes are never forwarded again.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/murmur/internal/gateway"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "murmur:changes"

const outboxSize = 1024

// Relay bridges a gateway.Hub and a Redis pub/sub channel.
type Relay struct {
	client  *redis.Client
	hub     *gateway.Hub
	channel string
	origin  string
	logger  *slog.Logger

	outbox chan gateway.Change
	ready  chan struct{}
	once   sync.Once
}

// Option configures a Relay.
type Option func(*Relay)

// WithChannel sets the Redis channel.
func WithChannel(ch string) Option {
	return func(r *Relay) {
		if ch != "" {
			r.channel = ch
		}
	}
}

// WithOrigin sets the process id stamped on published changes. The
// default is a random UUID.
func WithOrigin(origin string) Option {
	return func(r *Relay) {
		r.origin = origin
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// Dial connects to the Redis server at url and verifies the connection.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// New creates a relay between hub and client. It does nothing until Run.
func New(client *redis.Client, hub *gateway.Hub, opts ...Option) *Relay {
	r := &Relay{
		client:  client,
		hub:     hub,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		logger:  slog.Default(),
		outbox:  make(chan gateway.Change, outboxSize),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Origin returns the id stamped on changes this relay publishes.
func (r *Relay) Origin() string {
	return r.origin
}

// Ready is closed once the channel subscription is active.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run forwards local changes and republishes remote ones until ctx is
// cancelled. It returns ctx.Err() on cancellation.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.once.Do(func() { close(r.ready) })

	unsubscribe := r.hub.Subscribe(gateway.Filter{}, r.enqueue)
	defer unsubscribe()

	r.logger.Info("relay started", "channel", r.channel, "origin", r.origin)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.forward(ctx) })
	g.Go(func() error { return r.receive(ctx, sub.Channel()) })
	return g.Wait()
}

// enqueue runs on the publisher's goroutine and must not block.
func (r *Relay) enqueue(c gateway.Change) {
	if c.Origin != "" {
		return
	}
	select {
	case r.outbox <- c:
	default:
		r.logger.Warn("relay outbox full, change dropped",
			"table", c.Table, "kind", c.Kind, "key", c.Row().RowKey())
	}
}

func (r *Relay) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-r.outbox:
			data, err := Encode(r.origin, c)
			if err != nil {
				r.logger.Error("relay encode failed", "table", c.Table, "error", err)
				continue
			}
			if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Warn("relay publish failed", "table", c.Table, "error", err)
			}
		}
	}
}

func (r *Relay) receive(ctx context.Context, msgs <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("relay subscription closed")
			}
			c, err := Decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("relay message discarded", "error", err)
				continue
			}
			if c.Origin == r.origin {
				continue
			}
			r.hub.Publish(c)
		}
	}
}
