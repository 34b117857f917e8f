package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taskforge/handoff/internal/infrastructure/di"
)

// shutdownGrace bounds how long in-flight requests may run after a
// termination signal before the listener is torn down.
const shutdownGrace = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the handoff store server",
		Long:  "Start the HTTP API and the background expiration reaper, and run until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.NewContainer(globalConfig)
			if err != nil {
				return err
			}
			defer container.Close()

			logger := container.Logger()

			if err := container.ReaperService().Start(context.Background()); err != nil {
				return err
			}
			defer container.ReaperService().Stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", zap.String("addr", globalConfig.Server.Addr))
				errCh <- container.Server().ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info("shutting down", zap.String("signal", sig.String()))
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return container.Server().Shutdown(ctx)
		},
	}
}
