package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"eavview/internal/bootstrap/logging"
	"eavview/internal/errs"
)

const shutdownTimeout = 5 * time.Second

// NewHTTPHandler mounts the streamable MCP endpoint at /mcp next to a
// /healthz probe.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
	router.Handle("/mcp", streamable)
	return router
}

// ServeHTTP listens on addr until ctx is done, then shuts the listener down.
func ServeHTTP(ctx context.Context, addr string, handler http.Handler) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("listen address is required")
	}
	if handler == nil {
		return errors.New("http handler is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "mcpserver.http"), slog.String("addr", addr))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logging.Info(logCtx, "mcp http server started")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(err, "serve MCP over HTTP")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		// open event streams keep Shutdown waiting
		_ = httpServer.Close()
		logging.Warn(logCtx, "mcp http server forced closed", slog.Any("err", errs.Loggable(err)))
	}
	logging.Info(logCtx, "mcp http server stopped")
	return nil
}
