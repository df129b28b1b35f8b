package veil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/keystore"
	"github.com/hazyhaar/domveil/veil/internal/config"
	"github.com/hazyhaar/domveil/veil/internal/sched"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const feedPage = `<html><head><title>Feed</title></head><body>
<div id="main"><ul id="list">
<li>first story</li>
<li id="ad" class="ad-banner">Buy now</li>
<li id="sp">Sponsored post</li>
<li>last story</li>
</ul></div>
</body></html>`

type testSession struct {
	*Session
	clock *sched.ManualClock
}

func newTestSession(t *testing.T, opts ...Option) *testSession {
	t.Helper()
	clock := sched.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := New(append([]Option{WithLogger(quiet), withClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &testSession{Session: s, clock: clock}
}

func (ts *testSession) attach(t *testing.T, src, location string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src, location)
	if err != nil {
		t.Fatal(err)
	}
	if err := ts.Attach(context.Background(), doc); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return doc
}

// advance moves the clock in steps and lets the loop run what fell due,
// including timers armed by those tasks.
func (ts *testSession) advance(t *testing.T, d time.Duration) {
	t.Helper()
	const step = 10 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		ts.clock.Advance(step)
		ts.sync(t)
	}
}

func (ts *testSession) sync(t *testing.T) {
	t.Helper()
	if err := ts.do(context.Background(), func() {}); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

// onLoop runs fn against the attached document on the loop.
func (ts *testSession) onLoop(t *testing.T, fn func(doc *dom.Document)) {
	t.Helper()
	if err := ts.do(context.Background(), func() { fn(ts.doc) }); err != nil {
		t.Fatal(err)
	}
}

func byID(doc *dom.Document, id string) *dom.Node {
	var found *dom.Node
	doc.Root().Walk(func(n *dom.Node) bool {
		if found == nil && n.AttrValue("id") == id {
			found = n
		}
		return found == nil
	})
	return found
}

func TestSession_AttachAppliesStoredKeywords(t *testing.T) {
	ts := newTestSession(t, WithStore(keystore.NewMemory("ad-banner")))
	ts.attach(t, feedPage, "https://news.example/")

	ts.onLoop(t, func(doc *dom.Document) {
		if !byID(doc, "ad").Marked() {
			t.Error("stored keyword not applied on load")
		}
	})
	st, _ := ts.Status(context.Background())
	if st.Armed {
		t.Error("monitor armed before the follow-up pass")
	}

	ts.advance(t, 150*time.Millisecond)
	st, _ = ts.Status(context.Background())
	if !st.Armed || st.Location != "https://news.example/" || st.Records != 1 {
		t.Errorf("status after follow-up: %+v", st)
	}
}

func TestSession_SuppressAndRestore(t *testing.T) {
	ts := newTestSession(t)
	ts.attach(t, feedPage, "https://news.example/")
	ctx := context.Background()

	before, err := ts.Document(ctx, FormatHTML)
	if err != nil {
		t.Fatal(err)
	}

	res, err := ts.Suppress(ctx, []string{"ad-banner", "sponsored"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Count != 2 {
		t.Fatalf("suppress: %+v, want 2 hidden", res)
	}
	st, _ := ts.Status(ctx)
	if !st.Armed || len(st.Keywords) != 2 {
		t.Errorf("monitor not armed with the command keywords: %+v", st)
	}

	recs, _ := ts.Records(ctx)
	if len(recs) != 2 {
		t.Fatalf("records: got %d, want 2", len(recs))
	}
	seen := map[string]bool{}
	for _, r := range recs {
		seen[r.Keyword] = true
		if !strings.HasPrefix(r.ID, "sup_") || r.XPath == "" {
			t.Errorf("record: %+v", r)
		}
	}
	if !seen["ad-banner"] || !seen["sponsored"] {
		t.Errorf("record keywords: %v", seen)
	}

	if got := ts.Restore(ctx); !got.Success {
		t.Fatal("restore failed")
	}
	after, _ := ts.Document(ctx, FormatHTML)
	if after != before {
		t.Errorf("restore did not return the original document\nbefore: %s\nafter:  %s", before, after)
	}
	st, _ = ts.Status(ctx)
	if st.Armed || len(st.Keywords) != 0 {
		t.Errorf("restore should stop monitoring: %+v", st)
	}
}

func TestSession_SuppressNilUsesStoredKeywords(t *testing.T) {
	ts := newTestSession(t, WithStore(keystore.NewMemory("sponsored")))
	ts.attach(t, feedPage, "https://news.example/")
	ctx := context.Background()

	if !ts.Restore(ctx).Success {
		t.Fatal("restore failed")
	}
	res, err := ts.Suppress(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 {
		t.Errorf("count: got %d, want 1", res.Count)
	}

	res, _ = ts.Suppress(ctx, []string{})
	if res.Count != 0 || !res.Success {
		t.Errorf("empty keywords: %+v", res)
	}
	if st, _ := ts.Status(ctx); st.Armed {
		t.Error("empty keywords must leave the monitor stopped")
	}
}

func TestSession_MonitorHidesInsertedContent(t *testing.T) {
	ts := newTestSession(t)
	ts.attach(t, feedPage, "https://news.example/")
	ctx := context.Background()
	ts.Suppress(ctx, []string{"sponsored"})

	var late *dom.Node
	ts.onLoop(t, func(doc *dom.Document) {
		late = dom.NewElement("li")
		late.AppendChild(dom.NewText("Sponsored: late arrival"))
		byID(doc, "list").AppendChild(late)
	})
	ts.onLoop(t, func(*dom.Document) {
		if late.Marked() {
			t.Error("hidden before the debounce elapsed")
		}
	})

	ts.advance(t, 150*time.Millisecond)
	ts.onLoop(t, func(*dom.Document) {
		if !late.Marked() {
			t.Error("inserted match not hidden after debounce")
		}
	})
}

func TestSession_SetKeywordsReapplies(t *testing.T) {
	ts := newTestSession(t)
	ts.attach(t, feedPage, "https://news.example/")
	ctx := context.Background()

	stored, err := ts.SetKeywords(ctx, []string{" ad-banner ", "AD-BANNER", ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0] != "ad-banner" {
		t.Errorf("stored: %q", stored)
	}
	ts.onLoop(t, func(doc *dom.Document) {
		if !byID(doc, "ad").Marked() {
			t.Error("new keywords not applied")
		}
	})
}

func TestSession_NavigationReappliesScopedKeywords(t *testing.T) {
	cfg := config.Default()
	cfg.Pages = []config.PageConfig{
		{Match: "https://news.example/deals*", Keywords: []string{"sponsored"}},
		{Match: "https://news.example/admin*", Disable: true},
	}
	ts := newTestSession(t, WithConfig(cfg), WithStore(keystore.NewMemory("ad-banner")))
	doc := ts.attach(t, feedPage, "https://news.example/")
	ctx := context.Background()

	ts.onLoop(t, func(*dom.Document) {
		if byID(doc, "sp").Marked() {
			t.Error("page-scoped keyword applied outside its pages")
		}
		doc.Navigate(dom.NavPush, "https://news.example/deals/today")
	})
	ts.onLoop(t, func(*dom.Document) {
		if !byID(doc, "sp").Marked() {
			t.Error("page-scoped keyword not applied after navigation")
		}
	})

	ts.advance(t, 150*time.Millisecond)
	ts.onLoop(t, func(*dom.Document) { doc.Navigate(dom.NavPush, "https://news.example/admin") })
	if st, _ := ts.Status(ctx); st.Armed {
		t.Error("monitor armed on a disabled page")
	}
}

func TestSession_NoDocument(t *testing.T) {
	ts := newTestSession(t)
	ctx := context.Background()
	if _, err := ts.Suppress(ctx, []string{"x"}); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Suppress: got %v, want ErrNoDocument", err)
	}
	if _, err := ts.Suppress(ctx, nil); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Suppress(nil): got %v, want ErrNoDocument", err)
	}
	if res := ts.Restore(ctx); res.Success {
		t.Error("Restore without a document reported success")
	}
	if _, err := ts.Document(ctx, FormatText); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Document: got %v", err)
	}
}

func TestSession_Closed(t *testing.T) {
	ts := newTestSession(t)
	ts.attach(t, feedPage, "https://news.example/")
	if err := ts.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ts.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := ts.Suppress(context.Background(), []string{"x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
	if res := ts.Restore(context.Background()); res.Success {
		t.Error("Restore on a closed session reported success")
	}
}

func TestSession_DocumentFormats(t *testing.T) {
	ts := newTestSession(t)
	ts.attach(t, feedPage, "https://news.example/")
	ctx := context.Background()
	ts.Suppress(ctx, []string{"sponsored"})

	html, _ := ts.Document(ctx, FormatHTML)
	if !strings.Contains(html, "Sponsored post") || !strings.Contains(html, dom.MarkerAttr) {
		t.Errorf("html should keep hidden nodes, marked: %s", html)
	}

	md, err := ts.Document(ctx, FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(md, "Sponsored") || !strings.Contains(md, "first story") {
		t.Errorf("markdown: %q", md)
	}

	text, _ := ts.Document(ctx, FormatText)
	if strings.Contains(text, "Sponsored") || !strings.Contains(text, "last story") {
		t.Errorf("text: %q", text)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatHTML, false},
		{"HTML", FormatHTML, false},
		{"md", FormatMarkdown, false},
		{"text", FormatText, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestPlainText(t *testing.T) {
	got := plainText(`<div><p>one &amp; two</p><script>var x;</script><p>  three   four </p></div>`)
	if got != "one & two\nthree four" {
		t.Errorf("got %q", got)
	}
}

func TestSession_FetchAttachesAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, feedPage)
	}))
	defer srv.Close()

	ts := newTestSession(t, WithStore(keystore.NewMemory("sponsored")))
	if err := ts.Fetch(context.Background(), srv.URL+"/feed"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	st, _ := ts.Status(context.Background())
	if st.Location != srv.URL+"/feed" || st.Records != 1 {
		t.Errorf("status: %+v", st)
	}

	cfg := DefaultConfig()
	cfg.Fetch.BlockPrivate = true
	blocked := newTestSession(t, WithConfig(cfg))
	if err := blocked.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("loopback fetch allowed with block_private")
	}
	if err := blocked.OpenLive(context.Background(), "file:///etc/passwd"); err == nil {
		t.Error("file URL opened live")
	}
}
