package keystore

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/domveil/dbopen"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"trim and drop empty", []string{"  ad ", "", "   "}, []string{"ad"}},
		{"case duplicates keep first", []string{"Sponsored", "ad", "SPONSORED"}, []string{"Sponsored", "ad"}},
		{"order kept", []string{"b", "a", "c"}, []string{"b", "a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// waitList collects lists passed to a Watch callback.
type waitList struct {
	mu   sync.Mutex
	got  [][]string
	wake chan struct{}
}

func newWaitList() *waitList { return &waitList{wake: make(chan struct{}, 16)} }

func (w *waitList) fn(list []string) {
	w.mu.Lock()
	w.got = append(w.got, list)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *waitList) next(t *testing.T) []string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		w.mu.Lock()
		if len(w.got) > 0 {
			l := w.got[0]
			w.got = w.got[1:]
			w.mu.Unlock()
			return l
		}
		w.mu.Unlock()
		select {
		case <-w.wake:
		case <-deadline:
			t.Fatal("timed out waiting for watch callback")
			return nil
		}
	}
}

func TestMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory("ad", "AD", " promo ")
	got, _ := m.Get(ctx)
	if !reflect.DeepEqual(got, []string{"ad", "promo"}) {
		t.Fatalf("seed: got %q", got)
	}

	wl := newWaitList()
	done := make(chan struct{})
	go func() {
		m.Watch(ctx, wl.fn)
		close(done)
	}()
	// Watch registers asynchronously; retry Set until the callback sees it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.Set(ctx, []string{"sponsored"})
		wl.mu.Lock()
		n := len(wl.got)
		wl.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if l := wl.next(t); !reflect.DeepEqual(l, []string{"sponsored"}) {
		t.Errorf("watch: got %q", l)
	}

	got, _ = m.Get(ctx)
	got[0] = "mutated"
	again, _ := m.Get(ctx)
	if again[0] != "sponsored" {
		t.Error("Get returned the internal slice")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("fresh store: got %q err=%v", got, err)
	}
	if v, _ := s.Version(ctx); v != 0 {
		t.Errorf("fresh version: %d", v)
	}

	if err := s.Set(ctx, []string{"sponsored", "ad-banner", "Sponsored", ""}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx)
	if !reflect.DeepEqual(got, []string{"sponsored", "ad-banner"}) {
		t.Errorf("got %q", got)
	}
	if v, _ := s.Version(ctx); v != 1 {
		t.Errorf("version after Set: %d, want 1", v)
	}

	if err := s.Set(ctx, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx)
	if len(got) != 0 {
		t.Errorf("cleared: got %q", got)
	}
}

func TestSQLite_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewSQLite(dbopen.OpenMemory(t), WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	wl := newWaitList()
	go s.Watch(ctx, wl.fn)
	time.Sleep(50 * time.Millisecond)

	if err := s.Set(ctx, []string{"promo"}); err != nil {
		t.Fatal(err)
	}
	if l := wl.next(t); !reflect.DeepEqual(l, []string{"promo"}) {
		t.Errorf("watch: got %q", l)
	}
}

func TestFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "keywords.yaml")
	f := NewFile(path)

	got, err := f.Get(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("missing file: got %q err=%v", got, err)
	}

	if err := f.Set(ctx, []string{" ad ", "promo", "AD"}); err != nil {
		t.Fatal(err)
	}
	got, err = f.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"ad", "promo"}) {
		t.Errorf("got %q", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestFile_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	os.WriteFile(path, []byte("keywords: [unclosed"), 0o644)
	if _, err := NewFile(path).Get(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFile_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	f := NewFile(path, WithFileDebounce(10*time.Millisecond))

	wl := newWaitList()
	go f.Watch(ctx, wl.fn)
	time.Sleep(100 * time.Millisecond)

	// Unrelated files in the directory are ignored.
	os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644)

	if err := os.WriteFile(path, []byte("keywords:\n  - sponsored\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if l := wl.next(t); !reflect.DeepEqual(l, []string{"sponsored"}) {
		t.Errorf("watch: got %q", l)
	}
}
