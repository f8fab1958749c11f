// Package watch triggers configuration reloads: on file changes through
// fsnotify and on a fixed interval for sources that cannot notify.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce batches the burst of events editors emit on save.
const DefaultDebounce = 250 * time.Millisecond

// Reloader is implemented by *decider.Decider.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Options configures a Watcher. At least one of Path or Interval must be set.
type Options struct {
	// Path is a file to watch. Its directory is watched so that atomic
	// replace-on-save is seen.
	Path string
	// Interval triggers a reload periodically; 0 disables polling.
	Interval time.Duration
	// Debounce delays a file-triggered reload until events stop arriving.
	// 0 selects DefaultDebounce.
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Stats counts watcher activity.
type Stats struct {
	Events  int64
	Reloads int64
	Errors  int64
}

// Watcher calls Reload on its target when triggered. Reload failures are
// logged and counted; the watcher keeps running.
type Watcher struct {
	target Reloader
	opts   Options

	events  atomic.Int64
	reloads atomic.Int64
	errs    atomic.Int64
}

// New creates a Watcher for target.
func New(target Reloader, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{target: target, opts: opts}
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	return Stats{Events: w.events.Load(), Reloads: w.reloads.Load(), Errors: w.errs.Load()}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.opts.Path == "" && w.opts.Interval <= 0 {
		return errors.New("watch: nothing to watch")
	}

	var (
		fileEvents <-chan fsnotify.Event
		fileErrors <-chan error
		target     string
	)
	if w.opts.Path != "" {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer fw.Close()

		abs, err := filepath.Abs(w.opts.Path)
		if err != nil {
			return err
		}
		target = filepath.Clean(abs)
		if err := fw.Add(filepath.Dir(target)); err != nil {
			return err
		}
		fileEvents, fileErrors = fw.Events, fw.Errors
		w.opts.Logger.Info().Str("path", target).Dur("debounce", w.opts.Debounce).Msg("watching config file")
	}

	var tick <-chan time.Time
	if w.opts.Interval > 0 {
		ticker := time.NewTicker(w.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
		w.opts.Logger.Info().Dur("interval", w.opts.Interval).Msg("polling config source")
	}

	// Debounce timer for batching rapid changes
	debounce := time.NewTimer(w.opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fileEvents:
			if !ok {
				fileEvents = nil
				continue
			}
			if !relevant(event, target) {
				continue
			}
			w.events.Add(1)
			w.opts.Logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("config file event")
			debounce.Reset(w.opts.Debounce)

		case err, ok := <-fileErrors:
			if !ok {
				fileErrors = nil
				continue
			}
			w.errs.Add(1)
			w.opts.Logger.Error().Err(err).Msg("config watcher error")

		case <-debounce.C:
			w.reload(ctx, "file")

		case <-tick:
			w.reload(ctx, "interval")
		}
	}
}

func (w *Watcher) reload(ctx context.Context, trigger string) {
	w.reloads.Add(1)
	if err := w.target.Reload(ctx); err != nil {
		w.errs.Add(1)
		w.opts.Logger.Warn().Err(err).Str("trigger", trigger).Msg("reload rejected, keeping active configuration")
	}
}

func relevant(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0
}
