package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List treasury actions, newest first",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringP("status", "s", "", "only show actions with this status")
	listCmd.Flags().Bool("json", false, "print as JSON")
	listCmd.Flags().Bool("flow", false, "print the status flow and exit")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetString("status")
	asJSON, _ := cmd.Flags().GetBool("json")
	flow, _ := cmd.Flags().GetBool("flow")

	printer := ui.New()
	printer.Out = cmd.OutOrStdout()
	if flow {
		printer.StatusFlow()
		return nil
	}
	if status != "" && !action.Status(status).Valid() {
		return fmt.Errorf("unknown status %q", status)
	}

	v, err := openView(cmd.Context())
	if err != nil {
		return err
	}
	defer v.Close()

	actions := filterStatus(v.store.ListAll(), action.Status(status))
	if asJSON {
		return writeJSON(cmd, actions)
	}
	printer.ActionTable(actions)
	return nil
}

func filterStatus(actions []action.TreasuryAction, status action.Status) []action.TreasuryAction {
	if status == "" {
		return actions
	}
	out := actions[:0]
	for _, a := range actions {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}
