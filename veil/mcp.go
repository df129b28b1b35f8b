package veil

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domveil/idgen"
	"github.com/hazyhaar/domveil/kit"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// MCPServer returns an MCP server exposing the session's tools.
func (s *Session) MCPServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "domveil", Version: Version}, nil)
	s.RegisterMCP(srv)
	return srv
}

// RegisterMCP registers the domveil tools on srv.
func (s *Session) RegisterMCP(srv *mcp.Server) {
	ep := s.endpoints()
	keywords := map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": "Keywords, matched case-insensitively as substrings",
	}

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domveil_suppress",
		Description: "Hide every part of the page that mentions one of the keywords, and keep hiding new matches as the page changes. Omit keywords to use the stored list.",
		InputSchema: inputSchema(map[string]any{"keywords": keywords}, nil),
	}, ep.suppress, decodeWithRequestID[suppressRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domveil_restore",
		Description: "Stop monitoring and reveal everything that was hidden.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.restore, decodeWithRequestID[struct{}])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domveil_keywords_get",
		Description: "Return the stored keyword list.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.keywordsGet, decodeWithRequestID[struct{}])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domveil_keywords_set",
		Description: "Replace the stored keyword list and reapply it to the page. Blank and duplicate entries are dropped.",
		InputSchema: inputSchema(map[string]any{"keywords": keywords}, []string{"keywords"}),
	}, ep.keywordsSet, decodeWithRequestID[keywordsRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domveil_records",
		Description: "List the hidden nodes with their XPath, matched keyword and original display value.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.records, decodeWithRequestID[struct{}])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domveil_document",
		Description: "Render the filtered page. Markdown and text leave hidden parts out.",
		InputSchema: inputSchema(map[string]any{
			"format": map[string]any{"type": "string", "enum": []any{"html", "markdown", "text"}, "description": "Output format (default html)"},
		}, nil),
	}, ep.document, decodeWithRequestID[documentRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domveil_status",
		Description: "Report the session's location, tracked keywords and monitor counters.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.status, decodeWithRequestID[struct{}])
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func decodeWithRequestID[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	res, err := kit.DecodeArgs[T](req)
	if err != nil {
		return nil, err
	}
	id := idgen.New()
	res.EnrichCtx = func(ctx context.Context) context.Context { return kit.WithRequestID(ctx, id) }
	return res, nil
}
