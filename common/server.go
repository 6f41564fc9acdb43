package common

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yearn/stack-router/log"
)

// ShutdownTimeout bounds how long in-flight requests may take to drain
// once the server's context is canceled.
const ShutdownTimeout = 10 * time.Second

// RunServer serves `server` until `ctx` is canceled, then shuts it down
// gracefully. It returns nil on a clean shutdown.
func RunServer(ctx context.Context, server *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "endpoint", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server", "endpoint", server.Addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
