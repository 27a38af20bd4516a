package catalogwatch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"eavview/internal/bootstrap/logging"
	"eavview/internal/domain/eav"
	"eavview/internal/errs"
	"eavview/internal/usecase/projector"
)

const defaultDebounce = 500 * time.Millisecond

// Projector is the part of the projector service a reload drives.
type Projector interface {
	SetCatalog(catalog eav.Catalog) error
	ProjectAll(ctx context.Context, force bool) (projector.BatchResult, error)
}

// Loader reads and validates the catalog file.
type Loader func(path string) (eav.Catalog, error)

// Reload reports one reload. Err is set when the catalog could not be
// loaded or activated; in that case nothing was projected.
type Reload struct {
	Batch projector.BatchResult
	Err   error
}

type Options struct {
	Debounce time.Duration
	// OnReload, when set, is called after every reload attempt.
	OnReload func(Reload)
}

// Watcher re-projects the catalog whenever its file changes.
type Watcher struct {
	path      string
	load      Loader
	projector Projector
	opts      Options
	fs        *fsnotify.Watcher
}

// New starts watching the directory holding path. Editors usually replace
// files by rename, so the directory is watched rather than the file.
func New(path string, load Loader, p Projector, opts Options) (*Watcher, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("catalog path is required to watch; the built-in catalog never changes")
	}
	if load == nil {
		return nil, errors.New("catalog loader is required")
	}
	if p == nil {
		return nil, errors.New("projector is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}

	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, errs.Wrapf(err, "resolve catalog path %q", trimmed)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(err, "create file watcher")
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, errs.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	return &Watcher{
		path:      abs,
		load:      load,
		projector: p,
		opts:      opts,
		fs:        fs,
	}, nil
}

// Run handles change events until ctx is done. Reloads never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.catalogwatch"),
		slog.String("catalog", w.path),
	)
	logging.Info(logCtx, "watching catalog", slog.Duration("debounce", w.opts.Debounce))

	timer := time.NewTimer(w.opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return errs.Wrap(ctx.Err(), "catalog watch stopped")
		case event, ok := <-w.fs.Events:
			if !ok {
				return errors.New("file watcher closed")
			}
			if !w.relevant(event) {
				continue
			}
			logging.Debug(logCtx, "catalog changed", slog.String("op", event.Op.String()))
			timer.Reset(w.opts.Debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("file watcher closed")
			}
			logging.Warn(logCtx, "file watcher error", slog.Any("err", errs.Loggable(err)))
		case <-timer.C:
			result := w.Reload(logCtx)
			if w.opts.OnReload != nil {
				w.opts.OnReload(result)
			}
		}
	}
}

// Reload loads the catalog, activates it and projects the views whose
// definition changed. A catalog that fails to load leaves the active one in
// place.
func (w *Watcher) Reload(ctx context.Context) Reload {
	catalog, err := w.load(w.path)
	if err != nil {
		logging.Error(ctx, "catalog reload failed, keeping previous definitions", slog.Any("err", errs.Loggable(err)))
		return Reload{Err: err}
	}
	if err := w.projector.SetCatalog(catalog); err != nil {
		logging.Error(ctx, "catalog rejected, keeping previous definitions", slog.Any("err", errs.Loggable(err)))
		return Reload{Err: err}
	}

	batch, err := w.projector.ProjectAll(ctx, false)
	if err != nil {
		logging.Warn(ctx, "catalog reloaded with failures", slog.Any("err", errs.Loggable(err)))
	} else {
		logging.Info(ctx, "catalog reloaded",
			slog.Int("views", len(catalog.Views)),
			slog.Int("applied", batch.Count(projector.OutcomeApplied)),
		)
	}
	return Reload{Batch: batch}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
