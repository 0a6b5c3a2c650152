package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papapumpkin/treasury/internal/config"
	"github.com/papapumpkin/treasury/internal/telemetry"
	"github.com/papapumpkin/treasury/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the JSONL audit stream of action changes",
	Long: `Reads and formats the telemetry file written by every view sharing the
data directory. With --follow (-f), watches the file for new events (like tail -f).`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	eventsCmd.Flags().String("action", "", "only show events for this action id")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, _ []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	only, _ := cmd.Flags().GetString("action")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	printer := ui.New()
	printer.Out = cmd.OutOrStdout()
	show := func(evt telemetry.Event) {
		if only == "" || evt.ActionID == only {
			printer.Event(evt)
		}
	}

	events, err := telemetry.ReadFile(cfg.TelemetryFile)
	if errors.Is(err, fs.ErrNotExist) {
		printer.Info("no events recorded yet in " + cfg.TelemetryFile)
		return nil
	}
	if err != nil {
		return err
	}
	for _, evt := range events {
		show(evt)
	}
	if !follow {
		return nil
	}
	return tailFollow(cmd, cfg.TelemetryFile, show)
}

// tailFollow watches path using fsnotify and prints events appended after
// the initial read.
func tailFollow(cmd *cobra.Command, path string, show func(telemetry.Event)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("telemetry: seek %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("telemetry: create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("telemetry: watch %s: %w", path, err)
	}

	ctx := cmd.Context()
	reader := bufio.NewReader(f)
	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("telemetry: watch %s: %w", path, err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) {
				continue
			}
			// Read all complete lines available.
			for {
				chunk, err := reader.ReadString('\n')
				partial += chunk
				if err != nil {
					break
				}
				line := strings.TrimSpace(partial)
				partial = ""
				if line == "" {
					continue
				}
				var evt telemetry.Event
				if jerr := json.Unmarshal([]byte(line), &evt); jerr != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "??? %s\n", line)
					continue
				}
				show(evt)
			}
		}
	}
}
