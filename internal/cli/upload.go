package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newUploadCmd(a *app) *cobra.Command {
	var planID uint

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload proof of payment for the selected plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if planID == 0 {
				return fmt.Errorf("--plan is required")
			}
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open proof file: %w", err)
			}
			defer file.Close()

			if err := a.restore(cmd); err != nil {
				return err
			}

			// Each invocation is a fresh process, so the pending-plan
			// context is re-established before uploading.
			if err := a.mgr.Purchase(cmd.Context(), planID); err != nil {
				a.notice()
				return fmt.Errorf("plan selection failed")
			}
			if err := a.mgr.UploadPaymentProof(cmd.Context(), filepath.Base(args[0]), file); err != nil {
				a.notice()
				return fmt.Errorf("upload failed")
			}

			a.notice()
			printStatus(a)
			return nil
		},
	}

	cmd.Flags().UintVar(&planID, "plan", 0, "id of the plan the payment is for")
	return cmd
}
