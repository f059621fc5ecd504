// Package watcher ingests files dropped into per-conversation inbox
// directories. A file at <root>/<conversation-id>/<name> is a document of that
// conversation; writing it re-ingests the document and deleting it removes it.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/docchat/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Handler is invoked for a file event in a conversation inbox.
type Handler func(ctx context.Context, conversationID, path string)

// Watcher watches inbox roots and their conversation subdirectories.
type Watcher struct {
	roots       []string
	extensions  []string
	onIndex     Handler
	onRemove    Handler
	debounce    time.Duration
	logger      *zap.Logger
	ctx         context.Context
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over roots. extensions filters which files are
// ingested (empty means all).
func NewWatcher(roots, extensions []string, onIndex, onRemove Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		extensions:  extensions,
		onIndex:     onIndex,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			w.roots = append(w.roots, abs)
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Start creates missing roots, watches every root and conversation directory,
// and runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = fw.Close()
			w.watcher = nil
			return err
		}
	}
	w.started = true
	w.logger.Debug("watcher started", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, ok := conversationID(e.Name()); e.IsDir() && ok {
			if err := w.watcher.Add(filepath.Join(root, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	root, convID, name := w.locate(ev.Name)
	if root == "" {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))

	if name == "" {
		// A conversation directory under a root.
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				w.addConversationDir(ev.Name, convID)
			}
		}
		return
	}
	if strings.HasPrefix(name, ".") || !matchExtension(name, w.extensions) {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelDebounce(ev.Name)
		if w.onRemove != nil {
			w.onRemove(w.ctx, convID, ev.Name)
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.debounceIndex(convID, ev.Name)
	}
}

// locate splits path into its root, conversation id and file name. It returns
// an empty root for paths outside the inbox layout and an empty name for a
// conversation directory itself.
func (w *Watcher) locate(path string) (root, convID, name string) {
	w.mu.Lock()
	roots := w.roots
	w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, r := range roots {
		rel, err := filepath.Rel(r, clean)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		parts := strings.Split(rel, string(filepath.Separator))
		id, ok := conversationID(parts[0])
		if !ok {
			return "", "", ""
		}
		switch len(parts) {
		case 1:
			return r, id, ""
		case 2:
			return r, id, parts[1]
		}
		return "", "", ""
	}
	return "", "", ""
}

func (w *Watcher) addConversationDir(dir, convID string) {
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return
	}
	if err := fw.Add(dir); err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
		return
	}
	w.logger.Debug("watcher added conversation", zap.String("conversation_id", convID))
	w.syncConversation(dir, convID)
}

func (w *Watcher) debounceIndex(convID, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		ctx := w.ctx
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.logger.Debug("watcher ingesting file", zap.String("conversation_id", convID), zap.String("path", path))
		if w.onIndex != nil {
			w.onIndex(ctx, convID, path)
		}
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

// SyncExistingFiles schedules ingestion of every matching file already
// present in the conversation directories. Call it after Start.
func (w *Watcher) SyncExistingFiles() {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			w.logger.Warn("watcher cannot read root", zap.String("root", root), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if id, ok := conversationID(e.Name()); e.IsDir() && ok {
				w.syncConversation(filepath.Join(root, e.Name()), id)
			}
		}
	}
}

func (w *Watcher) syncConversation(dir, convID string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !matchExtension(name, w.extensions) {
			continue
		}
		w.debounceIndex(convID, filepath.Join(dir, name))
	}
}

// Directories returns a copy of the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
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

// conversationID returns the canonical form of a conversation directory name.
func conversationID(name string) (string, bool) {
	id, err := uuid.Parse(name)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
