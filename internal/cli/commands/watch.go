package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NullVoxPopuli/cardstack/internal/card"
	"github.com/NullVoxPopuli/cardstack/internal/realm"
)

// NewWatchCommand creates the watch command
func NewWatchCommand(opts *globalOptions) *cobra.Command {
	var debounce = realm.DefaultDebounce

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-ingest realm cards as they change",
		Long: `Watch the configured realms and keep the index in step with them.

Changed cards are re-ingested and their artifacts rebuilt. Cards whose
directory was removed are dropped from the index.

Examples:
  cardhub watch
  cardhub watch --debounce 500ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if len(a.config.Realms) == 0 {
					return &configError{err: errors.New("no realms configured to watch")}
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				n, err := a.loadRealms(ctx)
				if err != nil {
					return err
				}

				w, err := realm.NewWatcher(a.config.Realms, debounce, a.logger, a.reindex)
				if err != nil {
					return err
				}
				if err := w.Start(ctx); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				banner := color.New(color.FgCyan, color.Bold)
				banner.Fprintf(out, "Watching %d realm(s), %d card(s) indexed\n", len(a.config.Realms), n)
				color.New(color.FgYellow).Fprintln(out, "Press Ctrl+C to stop")

				<-ctx.Done()

				if err := w.Stop(); err != nil {
					return fmt.Errorf("error stopping watcher: %w", err)
				}
				color.New(color.FgGreen).Fprintln(out, "Goodbye!")
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", realm.DefaultDebounce, "Time to wait for changes to settle")

	return cmd
}

// reindex brings the index in line with the realm files of ids. Every card
// is attempted; the errors are joined.
func (a *app) reindex(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		r, ok := realm.Find(a.config.Realms, id)
		if !ok {
			continue
		}
		doc, err := r.Read(id)
		if card.IsNotFound(err) {
			if err := a.index.Delete(ctx, id); err != nil && !card.IsNotFound(err) {
				errs = append(errs, fmt.Errorf("removing '%s': %w", id, err))
			}
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := a.index.Ingest(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("ingesting '%s': %w", id, err))
			continue
		}
		a.logger.Info("reindexed card", zap.String("card", id))
	}
	return errors.Join(errs...)
}
