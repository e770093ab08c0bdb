package agent

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentmanager/internal/logging"
)

var infoLog = logging.ForComponent(logging.CompStore)

// InfoWatcher watches the sessions metadata directory and keeps an
// in-memory cache of SessionInfo keyed by session key, so recoverability
// checks during pruning never touch the disk.
type InfoWatcher struct {
	dir     string
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	infos map[string]*SessionInfo // session_key -> latest metadata

	ctx    context.Context
	cancel context.CancelFunc

	// onChange is called when metadata changes (for an immediate refresh)
	onChange func()
}

// NewInfoWatcher creates a watcher for the sessions metadata directory.
// Call Start() in a goroutine to begin watching.
func NewInfoWatcher(dir string, onChange func()) (*InfoWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &InfoWatcher{
		dir:      dir,
		watcher:  watcher,
		infos:    make(map[string]*SessionInfo),
		ctx:      ctx,
		cancel:   cancel,
		onChange: onChange,
	}
	// Synchronous initial load: recoverability checks must be right even
	// before the watch goroutine gets scheduled
	w.loadExisting()
	return w, nil
}

// Start begins watching. Blocks until Stop is called.
func (w *InfoWatcher) Start() {
	println("PROBE Start entered", time.Now().UnixNano())
	if err := w.watcher.Add(w.dir); err != nil {
		infoLog.Warn("info_watcher_add_failed",
			slog.String("dir", w.dir),
			slog.String("error", err.Error()))
		return
	}

	println("PROBE Add done", time.Now().UnixNano())
	// Files may have appeared between construction and the watch starting
	w.loadExisting()

	// Coalesce rapid file events before reprocessing
	var debounceTimer *time.Timer
	pendingFiles := make(map[string]bool)
	var pendingMu sync.Mutex

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			println("PROBE event", event.Name, event.Op.String(), time.Now().UnixNano())
			if !ok {
				return
			}

			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}

			pendingMu.Lock()
			pendingFiles[event.Name] = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				pendingMu.Lock()
				files := make([]string, 0, len(pendingFiles))
				for f := range pendingFiles {
					files = append(files, f)
				}
				pendingFiles = make(map[string]bool)
				pendingMu.Unlock()

				for _, f := range files {
					w.processFile(f)
				}
				if w.onChange != nil {
					w.onChange()
				}
			})
			pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			infoLog.Warn("info_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Stop shuts down the watcher.
func (w *InfoWatcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()
}

// Get returns the cached metadata for a session key, or nil.
func (w *InfoWatcher) Get(sessionKey string) *SessionInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.infos[sessionKey]
}

// Recoverable reports whether the session key has a usable resume token.
// Suitable as the Store.Prune callback.
func (w *InfoWatcher) Recoverable(sessionKey string) bool {
	return w.Get(sessionKey).Recoverable()
}

// All returns a copy of the current metadata cache.
func (w *InfoWatcher) All() map[string]*SessionInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(map[string]*SessionInfo, len(w.infos))
	for k, v := range w.infos {
		out[k] = v
	}
	return out
}

// loadExisting reads all current metadata files on startup.
func (w *InfoWatcher) loadExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		w.processFile(filepath.Join(w.dir, entry.Name()))
	}
}

// processFile re-reads one metadata file and updates the cache. A deleted
// or unreadable file clears its entry.
func (w *InfoWatcher) processFile(filePath string) {
	sessionKey := strings.TrimSuffix(filepath.Base(filePath), ".json")

	info := ReadSessionInfo(w.dir, sessionKey)

	w.mu.Lock()
	if info == nil {
		delete(w.infos, sessionKey)
	} else {
		w.infos[sessionKey] = info
	}
	w.mu.Unlock()

	infoLog.Debug("session_info_updated",
		slog.String("session", sessionKey),
		slog.Bool("recoverable", info.Recoverable()))
}
