package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sunshineplan/utils/log"

	"github.com/sephiroth74/photoframe-processor/internal/utils"
	"github.com/sephiroth74/photoframe-processor/pkg/batch"
)

// settleDelay is how long the input directories must stay quiet before a
// new batch starts
const settleDelay = 2 * time.Second

// watchInputs watches the input directories and calls rerun once new images
// stop arriving. Outputs already present are skipped by the batch itself, so
// each rerun only converts what is new. It blocks until ctx is done.
func watchInputs(ctx context.Context, inputs, exts []string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	var watched int
	for _, input := range inputs {
		if info, err := os.Stat(input); err != nil || !info.IsDir() {
			continue
		}
		if err := watchTree(watcher, input); err != nil {
			return err
		}
		log.Info("Watching folder", "path", input)
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no input directories to watch")
	}

	timer := time.NewTimer(settleDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			// Skip temp files
			if base := filepath.Base(event.Name); base == "" || base[0] == '.' {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchTree(watcher, event.Name); err != nil {
						log.Warn("Failed to watch new folder", "path", event.Name, "error", err)
					}
					// Images moved in with the folder produce no events of their own
					timer.Reset(settleDelay)
					continue
				}
			}
			if !utils.HasExtension(event.Name, exts) {
				continue
			}
			timer.Reset(settleDelay)

		case <-timer.C:
			rerun()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error", "error", err)
		}
	}
}

// watchTree adds root and its subdirectories to the watcher, down to the
// depth the batch discovery walks
func watchTree(watcher *fsnotify.Watcher, root string) error {
	root = filepath.Clean(root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch folder %s: %w", root, err)
			}
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(root, path); rel != "." && strings.Count(rel, string(filepath.Separator))+1 > batch.DefaultMaxDepth {
			return fs.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch folder %s: %w", path, err)
		}
		return nil
	})
}
