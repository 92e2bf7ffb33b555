// Package watcher ingests files dropped into per-category inbox directories, using
// fsnotify with per-path debouncing.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/manabu/internal/extract"
	"github.com/hyperjump/manabu/internal/models"
	"github.com/hyperjump/manabu/pkg/utils"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Source binds an inbox directory to the category and subject its files are ingested under.
type Source struct {
	Path     string
	Category models.Category
	Subject  string
}

// Ingester ingests one file. indexer.Indexer implements it.
type Ingester interface {
	IngestFile(ctx context.Context, path string, category models.Category, subject string, allowedExts []string) (*models.IngestResult, bool, error)
}

// Watcher watches inbox directories and ingests new or written files.
type Watcher struct {
	ingester    Ingester
	sources     []Source
	extensions  []string
	recursive   bool
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	ctx         context.Context
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = utils.OrNop(l) }
}

// WithDebounce overrides the per-path debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over sources. extensions filter which files are ingested;
// empty means every extension the extractor supports.
func NewWatcher(ingester Ingester, sources []Source, extensions []string, recursive bool, opts ...Option) *Watcher {
	if len(extensions) == 0 {
		extensions = extract.SupportedExtensions()
	}
	w := &Watcher{
		ingester:    ingester,
		extensions:  extensions,
		recursive:   recursive,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, src := range sources {
		if abs, err := filepath.Abs(src.Path); err == nil {
			src.Path = abs
		}
		src.Path = filepath.Clean(src.Path)
		w.sources = append(w.sources, src)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing inbox directories are created. Ingestion triggered by
// events runs under ctx; the watcher stops when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.ctx = ctx
	w.started = true
	for _, src := range w.sources {
		if err := w.addRootLocked(src.Path); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
		w.logger.Info("Watching inbox",
			zap.String("path", src.Path),
			zap.String("category", string(src.Category)),
			zap.String("subject", src.Subject))
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("Watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	src, ok := w.sourceFor(path)
	if !ok {
		return
	}
	w.logger.Debug("Watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if ev.Has(fsnotify.Create) {
				w.handleNewDirectory(path, src)
			}
			return
		}
		if matchExtension(path, w.extensions) {
			w.debounceIngest(path, src)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if matchExtension(path, w.extensions) {
			w.logger.Info("Inbox file removed; ingested passages are kept", zap.String("path", path))
		}
	}
}

// handleNewDirectory watches a directory created inside a recursive inbox and ingests
// what it already contains.
func (w *Watcher) handleNewDirectory(dirPath string, src Source) {
	if !w.recursive {
		return
	}
	w.mu.Lock()
	watcher := w.watcher
	ctx := w.ctx
	w.mu.Unlock()
	if watcher == nil {
		return
	}
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				w.logger.Warn("Failed to watch directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	w.syncDirectory(ctx, dirPath, src)
}

// sourceFor returns the inbox path belongs to. Nested inboxes resolve to the deepest one.
func (w *Watcher) sourceFor(path string) (Source, bool) {
	var best Source
	found := false
	for _, src := range w.sources {
		if src.Path != path && !inDir(src.Path, path) {
			continue
		}
		if !found || len(src.Path) > len(best.Path) {
			best, found = src, true
		}
	}
	return best, found
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceIngest(path string, src Source) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	ctx := w.ctx
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.ingest(ctx, path, src)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string, src Source) {
	if ctx.Err() != nil {
		return
	}
	res, skipped, err := w.ingester.IngestFile(ctx, path, src.Category, src.Subject, w.extensions)
	switch {
	case err != nil:
		w.logger.Warn("Failed to ingest inbox file", zap.String("path", path), zap.Error(err))
	case skipped:
		w.logger.Debug("Inbox file already ingested", zap.String("path", path))
	default:
		w.logger.Info("Ingested inbox file",
			zap.String("path", path),
			zap.String("category", string(src.Category)),
			zap.Int("chunks", res.ChunksCreated))
	}
}

func (w *Watcher) addRootLocked(root string) error {
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	if !w.recursive {
		return w.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) syncDirectory(ctx context.Context, root string, src Source) {
	w.logger.Debug("Syncing inbox directory", zap.String("root", root))
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if path != root && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.ingest(ctx, path, src)
		}
		return nil
	})
}

// SyncExistingFiles ingests the files already present in every inbox. Files recorded
// by an earlier run are skipped by the ingester.
func (w *Watcher) SyncExistingFiles(ctx context.Context) {
	for _, src := range w.sources {
		w.syncDirectory(ctx, src.Path, src)
	}
}

// Sources returns the watched inboxes.
func (w *Watcher) Sources() []Source {
	return append([]Source(nil), w.sources...)
}

// Stop stops the watcher and cancels pending debounced ingestions.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
