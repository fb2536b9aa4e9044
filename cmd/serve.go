package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bsaid97/go-lwgeom-fixer/handlers"
)

func newServeCommand(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	c.Flags().String("addr", "", "listen address")
	c.Flags().Int("workers", 0, "number of workers (values above 1 are reduced to 1)")
	_ = a.v.BindPFlag("server.addr", c.Flags().Lookup("addr"))
	_ = a.v.BindPFlag("server.workers", c.Flags().Lookup("workers"))
	return c
}

func (a *app) serve(ctx context.Context) error {
	p := a.provider()
	defer p.Close()

	// Load eagerly so a bad path fails at startup rather than on the first
	// request.
	lib, err := p.Library()
	if err != nil {
		return err
	}

	svc := handlers.NewService(p, a.logger)
	defer svc.Close()

	mux := http.NewServeMux()
	svc.Routes(mux)
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server is listening", zap.String("addr", srv.Addr), zap.String("library", lib.Name()))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
