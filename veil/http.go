package veil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domveil/kit"
	"github.com/hazyhaar/domveil/shield"
)

// Router serves the command API, plus the MCP tools over streamable HTTP
// at /mcp.
//
//	POST /api/suppress    {"keywords":[...]} -> {"success":true,"count":N}
//	POST /api/restore                        -> {"success":bool}
//	GET  /api/keywords
//	PUT  /api/keywords    {"keywords":[...]}
//	GET  /api/records
//	GET  /api/status
//	GET  /api/document?format=html|markdown|text
//	GET  /health
func (s *Session) Router() http.Handler {
	ep := s.endpoints()
	srv := s.MCPServer()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	hc := s.cfg.HTTP
	for _, mw := range shield.APIStack(shield.Limits{
		Rate:    hc.Rate,
		Burst:   hc.Burst,
		MaxBody: hc.MaxBody,
		Exclude: []string{"/health"},
	}) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": s.id})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/suppress", s.serve(ep.suppress, decodeBody[suppressRequest]))
		r.Post("/restore", s.serve(ep.restore, noBody))
		r.Get("/keywords", s.serve(ep.keywordsGet, noBody))
		r.Put("/keywords", s.serve(ep.keywordsSet, decodeBody[keywordsRequest]))
		r.Get("/records", s.serve(ep.records, noBody))
		r.Get("/status", s.serve(ep.status, noBody))
		r.Get("/document", s.serveDocument(ep.document))
	})

	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	return r
}

type httpDecoder func(*http.Request) (any, error)

// decodeBody decodes a JSON body into a new *T. An empty body is a zero T.
func decodeBody[T any](r *http.Request) (any, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &v, nil
}

func noBody(*http.Request) (any, error) { return nil, nil }

func (s *Session) serve(ep kit.Endpoint, decode httpDecoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(r.Context()))
		resp, err := ep(ctx, req)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// serveDocument writes the rendered document with its own content type.
func (s *Session) serveDocument(ep kit.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithTransport(r.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(r.Context()))
		resp, err := ep(ctx, &documentRequest{Format: r.URL.Query().Get("format")})
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		doc := resp.(documentResponse)
		switch doc.Format {
		case FormatMarkdown:
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		case FormatText:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		io.WriteString(w, doc.Content)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrNoDocument):
		return http.StatusConflict
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	}
	var fe formatError
	if errors.As(err, &fe) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
