package veil

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hazyhaar/domveil/dom"
	"github.com/hazyhaar/domveil/keystore"
)

// SuppressResult answers a suppress command.
type SuppressResult struct {
	Success bool `json:"success"`
	// Count is the number of nodes this command hid.
	Count int `json:"count"`
}

// RestoreResult answers a restore command.
type RestoreResult struct {
	Success bool `json:"success"`
}

// Status is a snapshot of the session.
type Status struct {
	Session      string   `json:"session"`
	Location     string   `json:"location"`
	Attached     bool     `json:"attached"`
	Armed        bool     `json:"armed"`
	Keywords     []string `json:"keywords"`
	MonitorState string   `json:"monitor_state"`
	Records      int      `json:"records"`
	Passes       int      `json:"passes"`
	Coalesced    int      `json:"coalesced"`
	Hidden       int      `json:"hidden"`
	Runs         int      `json:"navigation_runs"`
}

// Suppress hides every node matching keywords and keeps doing so as the
// document changes. A nil keywords uses the stored keywords for the
// current location; an empty one leaves the document untouched and
// stops monitoring.
func (s *Session) Suppress(ctx context.Context, keywords []string) (SuppressResult, error) {
	if keywords == nil {
		loc, err := s.location(ctx)
		if err != nil {
			return SuppressResult{}, err
		}
		if keywords, err = s.keywordsAt(ctx, loc); err != nil {
			return SuppressResult{}, err
		}
	}
	keywords = keystore.Normalize(keywords)

	var res SuppressResult
	var attached bool
	err := s.do(ctx, func() {
		if s.doc == nil {
			return
		}
		attached = true
		res.Count = s.engine.Suppress(s.doc, keywords)
		s.monitor.Start(s.doc, keywords)
		res.Success = true
	})
	if err != nil {
		return SuppressResult{}, err
	}
	if !attached {
		return SuppressResult{}, ErrNoDocument
	}
	s.logger.Info("veil: suppress", "keywords", len(keywords), "hidden", res.Count)
	return res, nil
}

// Restore stops monitoring and reveals everything the session hid. It
// never fails loudly: any problem is reported as Success false.
func (s *Session) Restore(ctx context.Context) RestoreResult {
	var res RestoreResult
	err := s.do(ctx, func() {
		if s.doc == nil {
			return
		}
		s.nav.CancelPending()
		s.monitor.Stop()
		res.Success = s.engine.Restore(s.doc)
	})
	if err != nil {
		s.logger.Warn("veil: restore", "error", err)
		return RestoreResult{}
	}
	s.logger.Info("veil: restore", "success", res.Success)
	return res
}

// Keywords returns the stored keyword list.
func (s *Session) Keywords(ctx context.Context) ([]string, error) {
	list, err := s.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("veil: keywords: %w", err)
	}
	return list, nil
}

// SetKeywords stores keywords and reapplies the pipeline to the attached
// document with them. It returns the list as stored.
func (s *Session) SetKeywords(ctx context.Context, keywords []string) ([]string, error) {
	if err := s.store.Set(ctx, keywords); err != nil {
		return nil, fmt.Errorf("veil: keywords: %w", err)
	}
	if err := s.do(ctx, func() { s.nav.Reload("keywords") }); err != nil {
		return nil, err
	}
	return s.Keywords(ctx)
}

// Records returns the suppression records in hide order.
func (s *Session) Records(ctx context.Context) ([]Record, error) {
	var out []Record
	err := s.do(ctx, func() { out = s.engine.Records() })
	return out, err
}

// Status reports what the session is doing.
func (s *Session) Status(ctx context.Context) (Status, error) {
	st := Status{Session: s.id}
	err := s.do(ctx, func() {
		if s.doc != nil {
			st.Attached = true
			st.Location = s.doc.Location()
		}
		st.Armed = s.monitor.Armed()
		st.Keywords = s.monitor.Keywords()
		st.MonitorState = s.monitor.State().String()
		st.Records = s.engine.Len()
		stats := s.monitor.Stats()
		st.Passes, st.Coalesced, st.Hidden = stats.Passes, stats.Coalesced, stats.Hidden
		st.Runs = s.nav.Runs()
	})
	return st, err
}

// Document renders the attached document in format.
func (s *Session) Document(ctx context.Context, format Format) (string, error) {
	var buf bytes.Buffer
	var renderErr error
	attached := false
	err := s.do(ctx, func() {
		if s.doc == nil {
			return
		}
		attached = true
		if format == FormatHTML {
			renderErr = dom.Render(&buf, s.doc)
			return
		}
		renderErr = dom.RenderVisible(&buf, s.doc)
	})
	if err != nil {
		return "", err
	}
	if !attached {
		return "", ErrNoDocument
	}
	if renderErr != nil {
		return "", fmt.Errorf("veil: render: %w", renderErr)
	}
	return convert(buf.String(), format)
}

func (s *Session) location(ctx context.Context) (string, error) {
	var loc string
	attached := false
	err := s.do(ctx, func() {
		if s.doc != nil {
			attached = true
			loc = s.doc.Location()
		}
	})
	if err != nil {
		return "", err
	}
	if !attached {
		return "", ErrNoDocument
	}
	return loc, nil
}
