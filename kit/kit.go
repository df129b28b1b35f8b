// Package kit is the transport-neutral command layer: an Endpoint is one
// command, Middleware wraps it, and transports (HTTP, MCP) only decode
// requests and encode responses.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of the endpoint named name.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"command", name,
				"transport", GetTransport(ctx),
				"duration", time.Since(start),
			}
			if id := GetRequestID(ctx); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if id := GetSessionID(ctx); id != "" {
				attrs = append(attrs, "session_id", id)
			}
			if err != nil {
				logger.Warn("kit: command failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: command", attrs...)
			}
			return resp, err
		}
	}
}
