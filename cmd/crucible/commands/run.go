package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencrucible/opencrucible/pkg/engine"
	"github.com/opencrucible/opencrucible/pkg/script"
)

func newRunCommand() *cobra.Command {
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Execute an action script",
		Long: `Load a YAML action script and execute its actions in declared order,
one at a time. Each action settles before the next begins; failures are
classified, reported as alerts, and by default do not stop the script.`,
		Example: `  # Execute a script against the configured workspace
  crucible run deploy.yaml

  # Stop at the first failed action
  crucible run deploy.yaml --keep-going=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.Load(args[0])
			if err != nil {
				return err
			}
			s.AssignIDs(func(int, script.Entry) string { return script.RandomID() })

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, printAlert)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			var failed int
			for _, entry := range s.Actions {
				action, err := entry.Action()
				if err != nil {
					return err
				}
				if _, err := rt.engine.Enqueue(entry.ID, action, false); err != nil {
					return err
				}
				if err := rt.engine.Run(ctx, entry.ID); err != nil {
					failed++
					if !keepGoing {
						return fmt.Errorf("action %s failed: %w", entry.ID, err)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d actions failed", failed, len(s.Actions))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepGoing, "keep-going", true, "continue past failed actions")

	return cmd
}

// printAlert renders an alert to stderr for interactive use.
func printAlert(alert engine.Alert) {
	fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", alert.Severity, alert.Title, alert.Description)
	if alert.Solution != "" {
		fmt.Fprintf(os.Stderr, "  suggestion: %s\n", alert.Solution)
	}
}
