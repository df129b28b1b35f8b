package veil

import (
	"context"

	"github.com/hazyhaar/domveil/kit"
)

type suppressRequest struct {
	// Keywords nil means the stored keywords.
	Keywords []string `json:"keywords"`
}

type keywordsRequest struct {
	Keywords []string `json:"keywords"`
}

type documentRequest struct {
	Format string `json:"format,omitempty"`
}

type keywordsResponse struct {
	Keywords []string `json:"keywords"`
}

type recordsResponse struct {
	Count   int      `json:"count"`
	Records []Record `json:"records"`
}

type documentResponse struct {
	Format  Format `json:"format"`
	Content string `json:"content"`
}

// endpoints are the session's commands, transport-neutral. HTTP and MCP
// decode into the request types above and call these.
type endpoints struct {
	suppress    kit.Endpoint
	restore     kit.Endpoint
	keywordsGet kit.Endpoint
	keywordsSet kit.Endpoint
	records     kit.Endpoint
	document    kit.Endpoint
	status      kit.Endpoint
}

func (s *Session) endpoints() endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(s.withSessionID, kit.Logging(s.logger, name))(ep)
	}
	return endpoints{
		suppress: wrap("suppress", func(ctx context.Context, req any) (any, error) {
			r := req.(*suppressRequest)
			return s.Suppress(ctx, r.Keywords)
		}),
		restore: wrap("restore", func(ctx context.Context, _ any) (any, error) {
			return s.Restore(ctx), nil
		}),
		keywordsGet: wrap("keywords_get", func(ctx context.Context, _ any) (any, error) {
			list, err := s.Keywords(ctx)
			if err != nil {
				return nil, err
			}
			return keywordsResponse{Keywords: list}, nil
		}),
		keywordsSet: wrap("keywords_set", func(ctx context.Context, req any) (any, error) {
			r := req.(*keywordsRequest)
			list, err := s.SetKeywords(ctx, r.Keywords)
			if err != nil {
				return nil, err
			}
			return keywordsResponse{Keywords: list}, nil
		}),
		records: wrap("records", func(ctx context.Context, _ any) (any, error) {
			recs, err := s.Records(ctx)
			if err != nil {
				return nil, err
			}
			if recs == nil {
				recs = []Record{}
			}
			return recordsResponse{Count: len(recs), Records: recs}, nil
		}),
		document: wrap("document", func(ctx context.Context, req any) (any, error) {
			r := req.(*documentRequest)
			f, err := ParseFormat(r.Format)
			if err != nil {
				return nil, err
			}
			content, err := s.Document(ctx, f)
			if err != nil {
				return nil, err
			}
			return documentResponse{Format: f, Content: content}, nil
		}),
		status: wrap("status", func(ctx context.Context, _ any) (any, error) {
			return s.Status(ctx)
		}),
	}
}

func (s *Session) withSessionID(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		return next(kit.WithSessionID(ctx, s.id), req)
	}
}
