package http

import (
	"context"
	"errors"
	"fxquotes/internal/config"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const shutdownGracePeriod = 10 * time.Second

// Start serves handler until ctx is canceled, then drains in-flight requests.
func Start(ctx context.Context, cfg config.HTTPServer, handler http.Handler) error {
	listener, listenErr := net.Listen("tcp", ":"+cfg.Port)
	if listenErr != nil {
		return listenErr
	}
	return Serve(ctx, listener, handler)
}

func Serve(ctx context.Context, listener net.Listener, handler http.Handler) error {
	logrus.Infof("✅ HTTP server listening on %s", listener.Addr())

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case serveErr := <-errCh:
		return serveErr
	}
}
