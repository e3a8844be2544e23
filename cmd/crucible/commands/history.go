package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencrucible/opencrucible/pkg/config"
	"github.com/opencrucible/opencrucible/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show recorded sessions and their actions",
		Long: `Without arguments, list recorded execution sessions, most recent
first. With a session identifier, show that session's actions and the
alerts they emitted.`,
		Example: `  # List recent sessions
  crucible history

  # Show one session's actions and alerts
  crucible history 3f6c01f2-8f11-4c2e-9a57-2b61d7f3a9e4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return fmt.Errorf("history is disabled: no store path configured")
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				return listSessions(cmd, store, limit)
			}
			return showSession(cmd, store, args[0])
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list")

	return cmd
}

func openStore(ctx context.Context, cfg *config.Config) (stores.Store, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func listSessions(cmd *cobra.Command, store stores.Store, limit int) error {
	sessions, err := store.ListSessions(cmd.Context(), limit, 0)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tWORKSPACE\tSTATUS\tSTARTED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.ID, s.Workspace, s.Status, s.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func showSession(cmd *cobra.Command, store stores.Store, sessionID string) error {
	ctx := cmd.Context()

	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("Session %s (%s) in %s\n\n", session.ID, session.Status, session.Workspace)

	actions, err := store.ListActionsBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACTION\tKIND\tSTATUS\tERROR")
	for _, a := range actions {
		errMsg := ""
		if a.Error != nil {
			errMsg = *a.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Kind, a.Status, errMsg)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	alerts, err := store.ListAlertsBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(alerts) > 0 {
		fmt.Println("\nAlerts:")
		for _, a := range alerts {
			fmt.Printf("  [%s] %s: %s\n", a.Severity, a.Title, a.Description)
		}
	}

	return nil
}
