package store

import (
	"context"
	"sort"
	"sync"
)

// Fixed keys of the persisted session entries.
const (
	KeyAuthToken = "authToken"
	KeyUser      = "user"
)

// KV is durable client storage keyed by fixed names.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryKV is a process-local KV used by tests and --no-persist runs.
type MemoryKV struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryKV() *MemoryKV { return &MemoryKV{m: map[string]string{}} }

func (k *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.m[key]
	return v, ok, nil
}

func (k *MemoryKV) Set(_ context.Context, key, value string) error {
	k.mu.Lock()
	k.m[key] = value
	k.mu.Unlock()
	return nil
}

func (k *MemoryKV) Delete(_ context.Context, keys ...string) error {
	k.mu.Lock()
	for _, key := range keys {
		delete(k.m, key)
	}
	k.mu.Unlock()
	return nil
}

// Keys lists stored keys in order.
func (k *MemoryKV) Keys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, 0, len(k.m))
	for key := range k.m {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
