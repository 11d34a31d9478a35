package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NullVoxPopuli/cardstack/internal/realm"
	"github.com/NullVoxPopuli/cardstack/internal/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *globalOptions) *cobra.Command {
	var (
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the card API over HTTP",
		Long: `Load the configured realms and serve the JSON:API card endpoints.

Endpoints:
  GET    /api/cards
  POST   /api/cards
  GET    /api/cards/{id}?format=isolated|embedded
  DELETE /api/cards/{id}
  GET    /healthz

Examples:
  cardhub serve
  cardhub serve --port 8080 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				if port > 0 {
					a.config.Server.Port = port
				}
				if _, err := a.loadRealms(ctx); err != nil {
					return err
				}

				if watch && len(a.config.Realms) > 0 {
					w, err := realm.NewWatcher(a.config.Realms, realm.DefaultDebounce, a.logger, a.reindex)
					if err != nil {
						return err
					}
					if err := w.Start(ctx); err != nil {
						return err
					}
					defer w.Stop()
				}

				srv, err := server.New(server.DefaultConfig(a.config.Server.Address()), server.NewHandler(a.index, a.logger), a.logger)
				if err != nil {
					return err
				}

				go func() {
					select {
					case <-srv.Ready():
						banner := color.New(color.FgCyan, color.Bold)
						banner.Fprintf(cmd.OutOrStdout(), "cardhub listening on http://%s\n", srv.Addr())
					case <-ctx.Done():
					}
				}()

				if err := srv.Run(ctx); err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				a.logger.Info("server stopped", zap.String("address", a.config.Server.Address()))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-ingest realm cards when their files change")

	return cmd
}
