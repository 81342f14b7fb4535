package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/gateway"
	"github.com/roach88/murmur/internal/ir"
	"github.com/roach88/murmur/internal/testutil"
)

// createTestStore opens a fresh store under t.TempDir with a deterministic
// clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(testutil.NewDeterministicClockAt(testutil.At(1000), time.Second).Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCity registers the "sf" city.
func createTestCity(t *testing.T, s *Store) ir.City {
	t.Helper()
	c, err := s.AddCity(context.Background(), "sf", "San Francisco")
	require.NoError(t, err)
	return c
}

// recorder collects published changes.
type recorder struct {
	mu      sync.Mutex
	changes []gateway.Change
}

func record(s *Store, f gateway.Filter) *recorder {
	r := &recorder{}
	s.Subscribe(f, func(c gateway.Change) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.changes = append(r.changes, c)
	})
	return r
}

func (r *recorder) all() []gateway.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]gateway.Change, len(r.changes))
	copy(out, r.changes)
	return out
}
