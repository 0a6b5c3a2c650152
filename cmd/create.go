package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/config"
	"github.com/papapumpkin/treasury/internal/store"
	"github.com/papapumpkin/treasury/internal/ui"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Record a treasury action and run its approval flow",
	Long: `Validates and records a new treasury action, then waits in the foreground
while the configured signal source approves and submits it.

Valid types: ` + typeNames() + `.

With signal_mode=live, signals arrive through 'treasury serve'; create
records the action and leaves it awaiting signature.`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringP("type", "t", "", "action type (required)")
	createCmd.Flags().Float64P("amount", "a", 0, "operational amount in π (required, > 0)")
	createCmd.Flags().StringP("note", "n", "", "free-text note")
	createCmd.Flags().StringP("user", "u", os.Getenv("USER"), "user id recorded as creator")
	createCmd.Flags().Bool("json", false, "print the final record as JSON")
	rootCmd.AddCommand(createCmd)
}

func typeNames() string {
	var names []string
	for _, c := range action.DefaultTable().All() {
		names = append(names, fmt.Sprintf("%q", c.Type))
	}
	return strings.Join(names, ", ")
}

func runCreate(cmd *cobra.Command, _ []string) error {
	typ, _ := cmd.Flags().GetString("type")
	amount, _ := cmd.Flags().GetFloat64("amount")
	note, _ := cmd.Flags().GetString("note")
	user, _ := cmd.Flags().GetString("user")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	v, err := openView(ctx)
	if err != nil {
		return err
	}
	defer v.Close()

	printer := ui.New()
	if v.cfg.SignalMode == config.SignalLive {
		// Only the server receives live webhooks.
		v.service.Source = nil
		printer.Info("live signals are delivered to 'treasury serve'; leaving the action pending")
	}

	followCtx, stopFollow := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(followCtx)
	record := v.subscribeTelemetry()
	g.Go(func() error { return record(gctx) })
	changes, unsubscribe := v.store.Subscribe()
	g.Go(func() error {
		printProgress(gctx, printer, changes)
		return nil
	})

	a, err := v.service.Create(ctx, action.Payload{Type: action.Type(typ), Amount: amount, Note: note, UserID: user})
	if err != nil {
		unsubscribe()
		stopFollow()
		_ = g.Wait()
		return err
	}
	printer.ActionCreated(a)
	v.service.Wait()
	unsubscribe()
	stopFollow()
	if err := g.Wait(); err != nil {
		return err
	}

	final, err := v.store.Get(a.ID)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd, final)
	}
	printer.ActionFinished(final)
	return nil
}

// printProgress echoes apiLog entries as the lifecycle appends them.
func printProgress(ctx context.Context, p *ui.Printer, changes <-chan store.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.Kind == store.ChangeLog {
				p.Info("  " + c.Message)
			}
		}
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
