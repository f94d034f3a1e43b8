// Package batch flattens every template below a directory and writes the
// results to a mirrored tree.
package batch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/neurodesk/pancake/pkg/pancake"
)

const (
	MetricsKeyFlattened = "pancake.templates.flattened"
	MetricsKeyFailed    = "pancake.templates.failed"
	MetricsKeyDuration  = "pancake.flatten.duration"
)

type Options struct {
	InputDir  string
	OutputDir string
	Strict    bool
	// Workers bounds the number of templates flattened at once. Values below
	// one mean a single worker.
	Workers int
	// Extensions restricts the build to files with one of these suffixes.
	// Empty means every regular file.
	Extensions []string
	// KeepGoing records failures and continues instead of stopping at the
	// first one.
	KeepGoing bool

	Tokens  *pancake.TokenCache
	Logger  zerolog.Logger
	Metrics metrics.Registry
}

type Report struct {
	Written []string
	Failed  map[string]error
	// Bytes is the total size of the written templates.
	Bytes   int64
	Elapsed time.Duration
}

// Run flattens every template found in opts.InputDir. Each template is parsed
// on its own, so templates are flattened concurrently. The report lists what
// was written even when Run returns an error.
func Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{Failed: make(map[string]error)}

	names, err := Discover(opts.InputDir, opts.OutputDir, opts.Extensions)
	if err != nil {
		return report, err
	}

	registry := opts.Metrics
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	flattened := metrics.GetOrRegisterCounter(MetricsKeyFlattened, registry)
	failed := metrics.GetOrRegisterCounter(MetricsKeyFailed, registry)
	duration := metrics.GetOrRegisterTimer(MetricsKeyDuration, registry)

	parser := &pancake.Parser{
		Loader: pancake.NewDirLoader(opts.InputDir),
		Strict: opts.Strict,
		Tokens: opts.Tokens,
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			logger := opts.Logger.With().Str("template", name).Logger()

			t0 := time.Now()
			out, err := parser.Flatten(name)
			if err == nil {
				err = WriteFile(filepath.Join(opts.OutputDir, filepath.FromSlash(name)), out)
			}
			duration.UpdateSince(t0)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed.Inc(1)
				report.Failed[name] = err
				logger.Error().Err(err).Msg("Failed to flatten template")
				if opts.KeepGoing {
					return nil
				}
				return errors.WithMessagef(err, "flattening %s", name)
			}
			flattened.Inc(1)
			report.Written = append(report.Written, name)
			report.Bytes += int64(len(out))
			logger.Debug().Dur("elapsed", time.Since(t0)).Msg("Flattened template")
			return nil
		})
	}

	err = g.Wait()
	sort.Strings(report.Written)
	report.Elapsed = time.Since(start)

	opts.Logger.Info().
		Int("written", len(report.Written)).
		Int("failed", len(report.Failed)).
		Str("size", humanize.Bytes(uint64(report.Bytes))).
		Dur("elapsed", report.Elapsed).
		Msg("Build finished")

	if err != nil {
		return report, err
	}
	if len(report.Failed) > 0 {
		return report, errors.Errorf("%d of %d templates failed", len(report.Failed), len(names))
	}
	return report, nil
}

// Discover lists the templates below dir as sorted slash-separated names.
// When skip names a directory inside dir, that directory is not searched.
func Discover(dir, skip string, extensions []string) ([]string, error) {
	var skipAbs string
	if skip != "" {
		abs, err := filepath.Abs(skip)
		if err != nil {
			return nil, err
		}
		skipAbs = abs
	}

	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipAbs != "" && path != dir {
				if abs, err := filepath.Abs(path); err == nil && abs == skipAbs {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() || !Matches(path, extensions) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list templates in %s", dir)
	}
	sort.Strings(names)
	return names, nil
}

// Matches reports whether path carries one of the extensions. An empty list
// matches every path.
func Matches(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// WriteFile writes content to dst through a temporary file in the same
// directory.
func WriteFile(dst, content string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmp := f.Name()
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to write %s", dst)
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return errors.Wrapf(os.Rename(tmp, dst), "failed to write %s", dst)
}
