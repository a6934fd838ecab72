package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bryanchriswhite/wintracker/internal/logger"
	"github.com/bryanchriswhite/wintracker/internal/tracker"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the window table as it changes",
	Long: `Start tracking and print the window table periodically until
interrupted. With --changes, print only when a window is added, removed,
moved or renamed.`,
	Example: `  # Print every watch_interval (default 500ms)
  wintracker watch

  # Print every 2 seconds
  wintracker watch --interval 2s

  # Print only on change, as JSON
  wintracker watch --changes --format json`,
	RunE: runWatch,
}

var (
	watchInterval time.Duration
	watchChanges  bool
	watchFormat   string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 0, "print interval (default is watch_interval from config)")
	watchCmd.Flags().BoolVarP(&watchChanges, "changes", "c", false, "print only when the table changes")
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", "text", "output format (table, text or json)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := checkFormat(watchFormat); err != nil {
		return err
	}

	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	interval := cfg.WatchInterval
	if watchInterval > 0 {
		interval = watchInterval
	}

	t, stop, err := startTracker(cfg)
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.WithComponent("cli").Info().
		Str("backend", t.Platform()).
		Dur("interval", interval).
		Bool("changes_only", watchChanges).
		Msg("Watching windows, press Ctrl+C to stop")

	if watchChanges {
		return watchOnChange(ctx, cmd.OutOrStdout(), t)
	}
	return watchPeriodic(ctx, cmd.OutOrStdout(), t, interval)
}

func watchPeriodic(ctx context.Context, out io.Writer, t *tracker.Tracker, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	redraw := watchFormat != "json" && isTerminal(out)
	for {
		if redraw {
			fmt.Fprint(out, clearScreen)
		}
		if err := printSnapshot(out, t.Snapshot(), watchFormat); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.Done():
			return fmt.Errorf("window tracker exited")
		case <-ticker.C:
		}
	}
}

func watchOnChange(ctx context.Context, out io.Writer, t *tracker.Tracker) error {
	updates := t.Subscribe()
	defer t.Unsubscribe(updates)

	last := t.Snapshot()
	if err := printSnapshot(out, last, watchFormat); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				return fmt.Errorf("window tracker exited")
			}
			snap := t.Snapshot()
			if snap.SameWindows(last) {
				continue
			}
			last = snap
			if err := printSnapshot(out, snap, watchFormat); err != nil {
				return err
			}
		}
	}
}

// clearScreen homes the cursor and clears the display.
const clearScreen = "\x1b[H\x1b[2J"

// isTerminal reports whether out is an interactive terminal, in which case
// periodic output redraws in place instead of scrolling.
func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
