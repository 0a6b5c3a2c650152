package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papapumpkin/treasury/internal/ui"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <id|reference>",
	Short: "Fail a pending action",
	Long: `Moves a Created or Approved action to Failed and records the reason in
its log. Other views pick the change up through the sync marker.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	cancelCmd.Flags().StringP("reason", "r", "", "failure reason (default: Signature cancelled)")
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	reason, _ := cmd.Flags().GetString("reason")

	v, err := openView(cmd.Context())
	if err != nil {
		return err
	}
	defer v.Close()

	a, err := findAction(v.store, args[0])
	if err != nil {
		return err
	}
	// This process runs no lifecycle, so the failure is written directly.
	v.service.Source = nil
	if err := v.service.Cancel(cmd.Context(), a.ID, reason); err != nil {
		return err
	}
	final, err := v.store.Get(a.ID)
	if err != nil {
		return err
	}
	ui.New().ActionFinished(final)
	return nil
}
