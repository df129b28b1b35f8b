package browser

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/veil/internal/sched"
)

//go:embed bridge.js
var observerJS string

const bindingName = "__domveil_binding"

// Bridge keeps a dom.Document in step with a live page. Child-list changes
// and history navigations reported by the page are replayed on the mirror;
// attribute writes made on the mirror are replayed on the page. Every
// mirror access runs on the loop.
type Bridge struct {
	tab    *Tab
	loop   *sched.Loop
	doc    *dom.Document
	logger *slog.Logger

	queue   pushQueue
	wake    chan struct{}
	loading atomic.Bool
	sub     *dom.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pushed  atomic.Int64
	applied atomic.Int64
}

// BridgeStats are point-in-time counters.
type BridgeStats struct {
	Synced int64 `json:"synced"` // observer messages applied to the mirror
	Pushed int64 `json:"pushed"` // attribute writes applied to the page
}

// Attach snapshots the page into a new Document and starts mirroring. The
// loop must be running.
func Attach(ctx context.Context, tab *Tab, loop *sched.Loop, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		tab:    tab,
		loop:   loop,
		logger: logger,
		wake:   make(chan struct{}, 1),
		ctx:    bctx,
		cancel: cancel,
	}

	doc, err := b.snapshot(bctx)
	if err != nil {
		cancel()
		return nil, err
	}
	b.doc = doc

	if err := loop.Do(bctx, func() { b.sub = doc.Observe(b.onMirror) }); err != nil {
		cancel()
		return nil, fmt.Errorf("browser: subscribe mirror: %w", err)
	}

	page := tab.Page
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		logger.Warn("browser: addBinding failed (may already exist)", "error", err)
	}
	if err := (proto.PageEnable{}).Call(page); err != nil {
		logger.Warn("browser: page enable failed", "error", err)
	}
	if _, err := page.EvalOnNewDocument(observerJS); err != nil {
		cancel()
		return nil, fmt.Errorf("browser: install observer: %w", err)
	}
	if _, err := page.Context(bctx).Eval(`() => {` + observerJS + `}`); err != nil {
		cancel()
		return nil, fmt.Errorf("browser: inject observer: %w", err)
	}

	b.wg.Add(2)
	go b.listen()
	go b.pushLoop()

	logger.Info("browser: bridge attached", "url", doc.Location())
	return b, nil
}

// Document returns the mirror. Access it only on the loop.
func (b *Bridge) Document() *dom.Document { return b.doc }

// Stats returns the counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{Synced: b.applied.Load(), Pushed: b.pushed.Load()}
}

// Close stops mirroring. The page is left as it is.
func (b *Bridge) Close() {
	b.cancel()
	b.wg.Wait()
	b.loop.Post(func() { b.sub.Disconnect() })
}

func (b *Bridge) snapshot(ctx context.Context) (*dom.Document, error) {
	html, err := b.tab.HTML(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := b.tab.URL()
	if err != nil {
		return nil, err
	}
	return dom.ParseString(html, loc)
}

// onMirror runs on the loop for every mirror mutation.
func (b *Bridge) onMirror(records []dom.MutationRecord) {
	if b.queue.add(records) == 0 {
		return
	}
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) pushLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.wake:
		}
		ops := b.queue.drain()
		if len(ops) == 0 {
			continue
		}
		res, err := b.tab.Page.Context(b.ctx).Eval(pushJS, ops)
		if err != nil {
			if b.ctx.Err() == nil {
				b.logger.Warn("browser: push attributes failed", "ops", len(ops), "error", err)
			}
			continue
		}
		b.pushed.Add(int64(res.Value.Int()))
	}
}

func (b *Bridge) listen() {
	defer b.wg.Done()
	wait := b.tab.Page.Context(b.ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			msgs, err := decodeMessages(e.Payload)
			if err != nil {
				b.logger.Warn("browser: observer payload", "error", err)
				return
			}
			b.loop.Post(func() { b.apply(msgs) })
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			b.loading.Store(true)
		},
		func(e *proto.PageLoadEventFired) {
			go b.reload("load")
		},
		func(e *proto.DOMDocumentUpdated) {
			go b.reload("document updated")
		},
	)
	wait()
}

// apply runs on the loop.
func (b *Bridge) apply(msgs []message) {
	for _, m := range msgs {
		switch m.Op {
		case "nav":
			b.doc.Navigate(navKind(m.Kind), m.URL)
		case "children":
			if b.loading.Load() {
				continue
			}
			if err := syncChildren(b.doc, m.XPath, m.Tag, m.HTML); err != nil {
				b.logger.Debug("browser: sync skipped", "error", err)
				continue
			}
		default:
			continue
		}
		b.applied.Add(1)
	}
}

// reload replaces the mirror tree with a fresh snapshot, after a full
// navigation or a document rewrite.
func (b *Bridge) reload(reason string) {
	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	fresh, err := b.snapshot(ctx)
	if err != nil {
		if b.ctx.Err() == nil {
			b.logger.Warn("browser: snapshot failed", "reason", reason, "error", err)
		}
		return
	}
	b.loop.Post(func() {
		b.loading.Store(false)
		b.doc.SetLocation(fresh.Location())
		b.doc.Replace(fresh.Root())
		b.logger.Info("browser: mirror reloaded", "reason", reason, "url", fresh.Location())
	})
}
