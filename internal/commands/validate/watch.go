package validate

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ensemble-run/ensemble/pkg/errors"
)

// debounceWindow coalesces the burst of filesystem events editors emit on
// save into a single re-validation.
const debounceWindow = 200 * time.Millisecond

// watchValidate re-runs validation whenever the workflow file changes.
// It watches the parent directory rather than the file itself so that
// editors which replace the file on save (write to temp, rename over)
// keep triggering events.
func watchValidate(cmd *cobra.Command, path string) error {
	if !fileExists(path) {
		return fmt.Errorf("workflow file %s does not exist", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating file watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watching %s", dir)
	}

	validateOnce := func() {
		fmt.Fprintf(cmd.OutOrStdout(), "--- %s (%s)\n", path, time.Now().Format(time.TimeOnly))
		if err := runValidate(cmd, path); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
		}
	}

	validateOnce()
	cmd.Println("Watching for changes. Press Ctrl+C to stop.")

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			if fileExists(path) {
				validateOnce()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		}
	}
}
