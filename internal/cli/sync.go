package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pos-edge/internal/reconcile"
)

func newSyncCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push offline orders to the cloud",
		Long: `Sync replays every open or paid offline order against the cloud, oldest
first. Orders already created by an interrupted run are adopted rather than
duplicated. With --watch, posctl keeps probing the cloud and syncs each time
it becomes reachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			orders := a.orderClient()
			var notifier reconcile.GatewayNotifier
			if a.cfg.Gateway.URL != "" {
				notifier = reconcile.NewHTTPNotifier(a.cfg.Gateway.URL)
			}
			rec := reconcile.NewReconciler(cache, orders, orders, notifier)

			if watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				reconcile.NewWatcher(orders, rec, a.cfg.SyncInterval()).Run(ctx)
				return nil
			}

			report, err := rec.Run(cmd.Context())
			if perr := a.out.report(report); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and sync whenever the cloud comes back")
	return cmd
}

