// Package server contains misc server utilities.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownTimeout bounds how long in-flight requests get once the server
// is asked to stop
var ShutdownTimeout = 5 * time.Second

// ListenAndServe serves h at addr until ctx is done, then shuts down
// gracefully
func ListenAndServe(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, h, log)
}

// Serve is ListenAndServe on an existing listener, which it closes
func Serve(ctx context.Context, ln net.Listener, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{Handler: h}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("now listening for requests")

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down HTTP server")
	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
