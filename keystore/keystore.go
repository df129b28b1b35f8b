// Package keystore persists the keyword list the engine suppresses.
//
// The engine never sees raw input: every backend normalises on Set
// (trimmed, no empty entries, no case-insensitive duplicates, first
// occurrence kept), and a store that was never written returns an empty
// list.
package keystore

import (
	"context"
	"strings"
	"sync"
)

// Store is the keyword list collaborator.
type Store interface {
	Get(ctx context.Context) ([]string, error)
	Set(ctx context.Context, keywords []string) error
}

// Watcher is implemented by stores able to report changes made by other
// writers. fn receives the new list. Watch blocks until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, fn func([]string)) error
}

// Normalize trims keywords, drops empty ones and removes duplicates that
// differ only by case, keeping the first occurrence and the caller order.
func Normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Memory is an in-process Store.
type Memory struct {
	mu       sync.Mutex
	keywords []string
	subs     map[int]func([]string)
	nextSub  int
}

// NewMemory returns a Memory store holding seed.
func NewMemory(seed ...string) *Memory {
	return &Memory{keywords: Normalize(seed), subs: make(map[int]func([]string))}
}

func (m *Memory) Get(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keywords...), nil
}

func (m *Memory) Set(_ context.Context, keywords []string) error {
	m.mu.Lock()
	m.keywords = Normalize(keywords)
	list := append([]string(nil), m.keywords...)
	subs := make([]func([]string), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(list)
	}
	return nil
}

// Watch calls fn after every Set until ctx is done.
func (m *Memory) Watch(ctx context.Context, fn func([]string)) error {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.subs, id)
	m.mu.Unlock()
	return nil
}
