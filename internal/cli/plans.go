package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPlansCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List purchasable plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd); err != nil {
				return err
			}

			plans := a.mgr.State().Plans
			if len(plans) == 0 {
				fmt.Fprintln(a.stdout, "No plans available.")
				return nil
			}

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRICE\tDURATION")
			for _, p := range plans {
				fmt.Fprintf(w, "%d\t%s\t$%s\t%d months\n", p.ID, p.Name, p.Price, p.DurationMonths)
			}
			return w.Flush()
		},
	}
}

func newPurchaseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purchase <plan-id>",
		Short: "Select a plan to purchase",
		Long:  "Select a plan to purchase. The subscription activates after payment proof is uploaded and verified.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parsePlanID(args[0])
			if err != nil {
				return err
			}
			if err := a.restore(cmd); err != nil {
				return err
			}

			if err := a.mgr.Purchase(cmd.Context(), planID); err != nil {
				a.notice()
				return fmt.Errorf("purchase failed")
			}

			a.notice()
			fmt.Fprintf(a.stdout, "Plan %d selected. Upload proof of payment with: subctl upload --plan %d <file>\n", planID, planID)
			return nil
		},
	}
}

func parsePlanID(s string) (uint, error) {
	var id uint
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil || id == 0 {
		return 0, fmt.Errorf("invalid plan id %q", s)
	}
	return id, nil
}
