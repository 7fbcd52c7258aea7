package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wippyai/refptr/script"
)

// settleDelay lets editors finish writing before the file is re-read.
const settleDelay = 50 * time.Millisecond

// watchScenario runs the scenario once, then again after every change to
// the file, until ctx is cancelled.
func watchScenario(ctx context.Context, path string, cfg script.Config, log *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	rerun := func() {
		fmt.Printf("\n=== %s ===\n", time.Now().Format(time.TimeOnly))
		if err := run(os.Stdout, path, cfg, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	rerun()
	if err := watcher.Add(path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			drain(watcher.Events)
			rerun()
			// editors that save by rename drop the watch
			if err := watcher.Add(path); err != nil {
				log.Debug("re-watch failed", zap.String("path", path), zap.Error(err))
			}
		}
	}
}

// drain discards events that arrive while the file settles.
func drain(events <-chan fsnotify.Event) {
	for {
		time.Sleep(settleDelay)
		select {
		case <-events:
		default:
			return
		}
	}
}
