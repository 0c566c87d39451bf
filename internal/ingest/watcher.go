// Package ingest watches a directory tree for protocol documents and
// submits them for extraction as they settle.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driving"
)

// defaultExtensions are the document types picked up from the watched
// tree (lowercase, with the dot).
var defaultExtensions = []string{".txt", ".pdf"}

const defaultDebounce = 500 * time.Millisecond

// WatcherConfig holds the dependencies and options for a Watcher.
type WatcherConfig struct {
	// Dir is the root directory to watch. Required. Subdirectories are
	// watched recursively, including ones created after start.
	Dir string

	// Service receives the settled files. Required.
	Service driving.ExtractionService

	// Fields to extract from each submitted document. Defaults to all
	// built-in fields.
	Fields []string

	// Extensions limits which files are submitted. Defaults to .txt and
	// .pdf.
	Extensions []string

	// Debounce coalesces the write bursts a copy-in-progress produces.
	// A file is submitted once it has been quiet for this long.
	Debounce time.Duration

	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher submits documents dropped into a directory tree. Files are
// debounced so a slow copy is only submitted once, after it settles.
type Watcher struct {
	dir      string
	service  driving.ExtractionService
	fields   []string
	exts     map[string]struct{}
	debounce time.Duration
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer

	// wg tracks in-flight submissions so Run can drain them on exit.
	wg sync.WaitGroup
}

// NewWatcher creates a directory watcher. It verifies the root exists
// but does not start watching; call Run.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if cfg.Service == nil {
		return nil, errors.New("extraction service is required")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("watch path is not a directory")
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = domain.FieldNames()
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = defaultExtensions
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	return &Watcher{
		dir:      cfg.Dir,
		service:  cfg.Service,
		fields:   cfg.Fields,
		exts:     exts,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Run watches the tree until ctx is cancelled. Pending debounce timers
// are stopped and in-flight submissions drained before it returns.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer fsw.Close()

	if err := w.addTree(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching for documents", "dir", w.dir, "fields", len(w.fields))

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				w.stopTimers()
				w.wg.Wait()
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				continue
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		// New directories join the watch set so nested drops are seen.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !w.wants(event.Name) {
		return
	}
	w.schedule(ctx, event.Name)
}

// schedule arms (or re-arms) the debounce timer for a path. The file is
// submitted only after it has been quiet for the debounce window.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.wg.Add(1)
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.submit(ctx, path)
	})
}

func (w *Watcher) submit(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read document", "path", path, "error", err)
		return
	}
	if len(content) == 0 {
		return
	}
	jobID, err := w.service.Submit(ctx, content, w.fields, driving.SubmitOptions{})
	if err != nil {
		w.logger.Warn("failed to submit document", "path", path, "error", err)
		return
	}
	w.logger.Info("document submitted", "path", path, "job_id", jobID)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) wants(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	_, ok := w.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
}
