// Package watch rebuilds a template tree whenever one of its files changes.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/neurodesk/pancake/pkg/batch"
)

const DefaultDebounce = 100 * time.Millisecond

// Watcher watches the input directory of a build and reruns the build after
// changes settle. Any template may be an ancestor of any other, so every
// rebuild flattens the whole tree; only the token cache entries of changed
// files are dropped.
type Watcher struct {
	Options  batch.Options
	Debounce time.Duration
	// OnBuild, when set, is called after every build with its result.
	OnBuild func(*batch.Report, error)

	watcher *fsnotify.Watcher
	skip    string
}

func New(opts batch.Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}
	w := &Watcher{
		Options:  opts,
		Debounce: DefaultDebounce,
		watcher:  fw,
	}
	if opts.OutputDir != "" {
		if abs, err := filepath.Abs(opts.OutputDir); err == nil {
			w.skip = abs
		}
	}
	if err := w.addRecursive(opts.InputDir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skip != "" {
			if abs, err := filepath.Abs(path); err == nil && abs == w.skip {
				return filepath.SkipDir
			}
		}
		return errors.Wrapf(w.watcher.Add(path), "failed to watch %s", path)
	})
}

// Run builds once and then rebuilds on every settled batch of changes until
// ctx is cancelled. Build failures and watcher errors are logged; they do not
// stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Options.Logger
	w.build(ctx)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			name, relevant := w.handle(event)
			if !relevant {
				continue
			}
			logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Template changed")
			pending[name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce())
			fire = timer.C

		case <-fire:
			fire = nil
			if tokens := w.Options.Tokens; tokens != nil {
				for name := range pending {
					tokens.Remove(name)
				}
			}
			logger.Info().Int("changed", len(pending)).Msg("Rebuilding")
			pending = make(map[string]struct{})
			w.build(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// handle reports the template name behind event and whether it should
// trigger a rebuild. Newly created directories are added to the watch list.
func (w *Watcher) handle(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	if w.skip != "" {
		if abs, err := filepath.Abs(event.Name); err == nil && (abs == w.skip || isWithin(w.skip, abs)) {
			return "", false
		}
	}
	rel, err := filepath.Rel(w.Options.InputDir, event.Name)
	if err != nil {
		return "", false
	}
	name := filepath.ToSlash(rel)

	if event.Has(fsnotify.Create) {
		if isDir(event.Name) {
			if err := w.addRecursive(event.Name); err != nil {
				w.Options.Logger.Error().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
			}
			return name, true
		}
	}
	return name, batch.Matches(event.Name, w.Options.Extensions)
}

func (w *Watcher) debounce() time.Duration {
	if w.Debounce <= 0 {
		return DefaultDebounce
	}
	return w.Debounce
}

func (w *Watcher) build(ctx context.Context) {
	report, err := batch.Run(ctx, w.Options)
	if err != nil && ctx.Err() == nil {
		w.Options.Logger.Error().Err(err).Msg("Build failed")
	}
	if w.OnBuild != nil {
		w.OnBuild(report, err)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
