// Command domveil hides the parts of a page that mention given keywords.
//
// Usage:
//
//	domveil -file page.html -keywords sponsored,promo -format markdown
//	domveil -fetch https://example.com -keywords sponsored
//	domveil -url https://example.com -serve            # live Chrome page, HTTP API
//	domveil -url https://example.com -mcp stdio        # live Chrome page, MCP over stdio
//
// Without -serve or -mcp the filtered document is written to stdout and
// the command exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domveil/keystore"
	"github.com/hazyhaar/domveil/veil"
)

type options struct {
	configPath string
	file       string
	fetchURL   string
	liveURL    string
	serve      bool
	mcp        string
	format     string
	keywords   string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to domveil.yaml config file")
	flag.StringVar(&o.file, "file", "", "filter a local HTML file")
	flag.StringVar(&o.fetchURL, "fetch", "", "filter a page fetched over HTTP")
	flag.StringVar(&o.liveURL, "url", "", "filter a page opened in Chrome, kept live")
	flag.BoolVar(&o.serve, "serve", false, "serve the HTTP command API on the configured address")
	flag.StringVar(&o.mcp, "mcp", "", "serve MCP tools: stdio")
	flag.StringVar(&o.format, "format", "html", "output format: html, markdown, text")
	flag.StringVar(&o.keywords, "keywords", "", "comma-separated keywords (default: the stored list)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("domveil: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	if o.file == "" && o.fetchURL == "" && o.liveURL == "" && !o.serve && o.mcp == "" {
		fmt.Fprintln(os.Stderr, "usage: domveil [-config <file>] -file <path> | -fetch <url> | -url <url> [-serve] [-mcp stdio]")
		os.Exit(2)
	}
	format, err := veil.ParseFormat(o.format)
	if err != nil {
		return err
	}

	cfg := veil.DefaultConfig()
	if o.configPath != "" {
		if cfg, err = veil.LoadConfig(o.configPath); err != nil {
			return err
		}
	}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	s, err := veil.New(veil.WithConfig(cfg), veil.WithLogger(logger), veil.WithStore(store))
	if err != nil {
		return err
	}
	defer s.Close()

	switch {
	case o.file != "":
		f, err := os.Open(o.file)
		if err != nil {
			return err
		}
		err = s.Parse(ctx, f, "file://"+o.file)
		f.Close()
		if err != nil {
			return err
		}
	case o.fetchURL != "":
		if err := s.Fetch(ctx, o.fetchURL); err != nil {
			return err
		}
	case o.liveURL != "":
		if err := s.OpenLive(ctx, o.liveURL); err != nil {
			return err
		}
	}

	if kws := splitKeywords(o.keywords); kws != nil {
		res, err := s.Suppress(ctx, kws)
		if err != nil {
			return err
		}
		logger.Info("domveil: suppressed", "count", res.Count)
	}

	switch {
	case o.mcp == "stdio":
		logger.Info("domveil: serving MCP on stdio", "session", s.ID())
		return s.MCPServer().Run(ctx, &mcp.StdioTransport{})
	case o.mcp != "":
		return fmt.Errorf("unknown MCP transport %q", o.mcp)
	case o.serve:
		return serveHTTP(ctx, logger, s, cfg.HTTP.Addr)
	case o.liveURL != "":
		<-ctx.Done()
		return nil
	}

	out, err := s.Document(ctx, format)
	if err != nil {
		return err
	}
	_, err = os.Stdout.WriteString(out)
	return err
}

func openStore(cfg *veil.Config, logger *slog.Logger) (keystore.Store, func(), error) {
	sc := cfg.Store
	switch sc.Type {
	case "sqlite":
		st, err := keystore.OpenSQLite(sc.Path, keystore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		if len(sc.Keywords) > 0 {
			if list, _ := st.Get(context.Background()); len(list) == 0 {
				st.Set(context.Background(), sc.Keywords)
			}
		}
		return st, func() { st.Close() }, nil
	case "file":
		return keystore.NewFile(sc.Path, keystore.WithFileLogger(logger)), func() {}, nil
	case "memory":
		return keystore.NewMemory(sc.Keywords...), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store type %q", sc.Type)
}

func serveHTTP(ctx context.Context, logger *slog.Logger, s *veil.Session, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("domveil: listening", "addr", addr, "session", s.ID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// splitKeywords returns nil for an empty flag so the stored list applies.
func splitKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
