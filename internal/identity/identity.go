// Package identity issues the stable per-device identifier that scopes one
// vote per post per device.
//
// The identifier is generated once, persisted through a KV port under
// DeviceKey and reloaded on every later Init. There is no teardown.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DeviceKey is the settings key the device id is stored under.
const DeviceKey = "moves_device_id"

// ErrNotInitialized is returned by Lookup before Init succeeded.
var ErrNotInitialized = errors.New("identity not initialized")

// KV is the persistence port of the provider. store.Store implements it.
type KV interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// Provider loads or generates the device id.
//
// Thread-safety: all methods are safe for concurrent use.
type Provider struct {
	kv  KV
	gen func() (uuid.UUID, error)

	mu sync.RWMutex
	id string
}

// Option configures a Provider.
type Option func(*Provider)

// WithGenerator replaces the random v4 generator.
func WithGenerator(gen func() (uuid.UUID, error)) Option {
	return func(p *Provider) {
		p.gen = gen
	}
}

// NewProvider creates a provider persisting through kv.
func NewProvider(kv KV, opts ...Option) *Provider {
	p := &Provider{kv: kv, gen: uuid.NewRandom}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init loads the stored device id, generating and storing a new one if
// none exists. Repeated calls return the same id.
func (p *Provider) Init(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}

	id, ok, err := p.kv.GetSetting(ctx, DeviceKey)
	if err != nil {
		return "", fmt.Errorf("load device id: %w", err)
	}
	if !ok || id == "" {
		u, err := p.gen()
		if err != nil {
			return "", fmt.Errorf("generate device id: %w", err)
		}
		id = u.String()
		if err := p.kv.PutSetting(ctx, DeviceKey, id); err != nil {
			return "", fmt.Errorf("store device id: %w", err)
		}
	}

	p.id = id
	return id, nil
}

// Lookup returns the initialized device id, or ErrNotInitialized.
func (p *Provider) Lookup() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.id == "" {
		return "", ErrNotInitialized
	}
	return p.id, nil
}

// DeviceID returns the device id, or "" before Init.
func (p *Provider) DeviceID() string {
	id, _ := p.Lookup()
	return id
}
