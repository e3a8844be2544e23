package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/opencrucible/opencrucible/pkg/script"
)

func newWatchCommand() *cobra.Command {
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "watch <script.yaml|dir>",
		Short: "Watch a script or a spool directory and execute actions as they arrive",
		Long: `With a script file, watch it for changes: every save streams the
declared actions into the engine, and once writes go quiet the actions
are executed in declared order. File actions whose content is still
changing update in place until they execute.

With a directory, treat it as a spool: every YAML script dropped into it
is executed as soon as its writes settle. Scripts already present are
executed first.`,
		Example: `  # Stream a script as it is edited
  crucible watch deploy.yaml

  # Watch a spool directory
  crucible watch ./spool

  # Wait longer for slow producers to finish writing
  crucible watch ./spool --settle 2s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			ctx := cmd.Context()

			info, err := os.Stat(target)
			if err != nil {
				return fmt.Errorf("failed to stat watch target: %w", err)
			}

			rt, err := newRuntime(ctx, printAlert)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if info.IsDir() {
				return watchSpool(ctx, rt, target, settle)
			}
			return watchScript(ctx, rt, target, settle)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", 500*time.Millisecond, "quiet period before changed actions execute")

	return cmd
}

// watchScript streams one script's actions into the engine as the file is
// edited. Every save enqueues the current payloads in streaming mode; once
// writes go quiet, the actions are marked settled and executed in order.
func watchScript(ctx context.Context, rt *runtime, path string, settle time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directory so editor rename-and-replace saves are
	// still observed.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve script path: %w", err)
	}

	// Entries without a declared id get one derived from their position, so
	// repeated parses of the same file keep updating the same records.
	base := filepath.Base(path)
	stableID := func(index int, _ script.Entry) string {
		return fmt.Sprintf("%s:%d", base, index)
	}

	stream := func(streaming bool) *script.Script {
		s, err := script.Load(path)
		if err != nil {
			rt.log.WithError(err).WithField("path", path).Warn("script not loadable, waiting for next save")
			return nil
		}
		s.AssignIDs(stableID)
		for _, entry := range s.Actions {
			action, err := entry.Action()
			if err != nil {
				rt.log.WithError(err).WithActionID(entry.ID).Error("invalid action")
				continue
			}
			if _, err := rt.engine.Enqueue(entry.ID, action, streaming); err != nil {
				rt.log.WithError(err).WithActionID(entry.ID).Error("failed to enqueue action")
			}
		}
		return s
	}

	execute := func(s *script.Script) {
		for _, entry := range s.Actions {
			// Run reports the action's own outcome; alerts already carry
			// the detail, so the watch loop just moves on.
			_ = rt.engine.Run(ctx, entry.ID)
		}
	}

	stream(true)
	rt.log.WithField("path", path).Info("watching script for changes")

	dirty := true
	lastChange := time.Now()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(event.Name)
			if name != abs {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				dirty = true
				lastChange = time.Now()
				stream(true)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			rt.log.WithError(err).Warn("watch error")

		case now := <-ticker.C:
			if dirty && now.Sub(lastChange) >= settle {
				dirty = false
				if s := stream(false); s != nil {
					execute(s)
				}
			}
		}
	}
}

// watchSpool executes every YAML script dropped into dir, in arrival order.
func watchSpool(ctx context.Context, rt *runtime, dir string, settle time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	executed := make(map[string]bool)

	runScript := func(path string) {
		if executed[path] || !isScriptPath(path) {
			return
		}
		executed[path] = true

		s, err := script.Load(path)
		if err != nil {
			rt.log.WithError(err).WithField("path", path).Error("failed to load script")
			return
		}
		s.AssignIDs(func(int, script.Entry) string { return script.RandomID() })
		rt.log.WithField("path", path).WithField("actions", len(s.Actions)).Info("executing script")

		for _, entry := range s.Actions {
			action, err := entry.Action()
			if err != nil {
				rt.log.WithError(err).WithActionID(entry.ID).Error("invalid action")
				continue
			}
			if _, err := rt.engine.Enqueue(entry.ID, action, false); err != nil {
				rt.log.WithError(err).WithActionID(entry.ID).Error("failed to enqueue action")
				continue
			}
			_ = rt.engine.Run(ctx, entry.ID)
		}
	}

	// Execute scripts that predate the watch.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			runScript(filepath.Join(dir, entry.Name()))
		}
	}

	rt.log.WithField("dir", dir).Info("watching for action scripts")

	// Writes arrive in bursts; a short settle window lets the producer
	// finish before the script is loaded.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			rt.log.WithError(err).Warn("watch error")

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) >= settle {
					delete(pending, path)
					runScript(path)
				}
			}
		}
	}
}

func isScriptPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
