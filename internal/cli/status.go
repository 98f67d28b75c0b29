package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/kmorozov/subctl/internal/session"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd); err != nil {
				return err
			}

			if !watch {
				printStatus(a)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watchStatus(ctx, a, interval)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll the subscription status until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "poll interval for --watch")
	return cmd
}

// watchStatus re-fetches on a fixed ticker until the context is
// cancelled or the session is lost. A forced logout (unrecoverable
// refresh failure) surfaces as a nil sync error with no user left, so
// the user check runs on every tick, not just the error path.
func watchStatus(ctx context.Context, a *app, interval time.Duration) error {
	printStatus(a)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := a.mgr.SyncSubscriptionStatus(ctx)
			if err != nil {
				a.notice()
			}
			if a.mgr.State().User == nil {
				return fmt.Errorf("session expired, run: subctl login")
			}
			if err != nil {
				continue
			}
			printStatus(a)
		}
	}
}

func printStatus(a *app) {
	state := a.mgr.State()
	if state.Subscription == nil {
		fmt.Fprintln(a.stdout, "You don't have a subscription. Run: subctl plans")
		return
	}

	sub := state.Subscription
	active := "inactive"
	if sub.Active(time.Now()) {
		active = "active"
	}
	fmt.Fprintf(a.stdout, "Plan:     %s ($%s, %d months)\n", sub.Plan.Name, sub.Plan.Price, sub.Plan.DurationMonths)
	fmt.Fprintf(a.stdout, "Status:   %s (%s)\n", sub.Status, active)
	fmt.Fprintf(a.stdout, "End date: %s\n", sub.EndDate)
	if state.Page == session.PageDashboard && !sub.Active(time.Now()) {
		fmt.Fprintln(a.stdout, "Renew with: subctl renew")
	}
}

func newRenewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Renew the current subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd); err != nil {
				return err
			}
			if err := a.mgr.Renew(cmd.Context()); err != nil {
				a.notice()
				return fmt.Errorf("renewal failed")
			}
			a.notice()
			printStatus(a)
			return nil
		},
	}
}
