package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papapumpkin/treasury/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show <id|reference>",
	Short: "Show one action with its evidence and log",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	v, err := openView(cmd.Context())
	if err != nil {
		return err
	}
	defer v.Close()

	a, err := findAction(v.store, args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd, a)
	}
	printer := ui.New()
	printer.Out = cmd.OutOrStdout()
	printer.ActionDetail(a)
	return nil
}
