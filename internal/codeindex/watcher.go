package codeindex

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"memengine/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent is one filesystem mutation inside a watched attachment, past
// the debounce window and batched with its siblings.
type ChangeEvent struct {
	AttachmentID int64
	Path         string
	Op           string // create, modify, delete, rename
}

// BatchHandler processes one batch of settled, git-suppression-filtered
// change events, typically by invoking SyncTask.Run for the affected
// attachment.
type BatchHandler func(ctx context.Context, events []ChangeEvent)

// Watcher wraps an fsnotify.Watcher with a debounce map (settle rapid
// saves), a batch ticker (group settled events), and a per-attachment
// git-operation-suppression window, matching the original watcher service's
// registry-based watch/unwatch and explicit mark_git_operation hook.
type Watcher struct {
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	handler BatchHandler

	debounce    time.Duration
	batchWindow time.Duration
	gitWindow   time.Duration

	// registry maps a watched root path to its attachment id.
	registry map[string]int64
	// pending holds events that have arrived but not yet settled past
	// debounce.
	pending map[string]pendingEvent
	// gitSuppressUntil suppresses events for an attachment until this time.
	gitSuppressUntil map[int64]time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	stats  Stats

	// started records whether Start has launched the event loop.
	started bool
}

type pendingEvent struct {
	attachmentID int64
	op           string
	seenAt       time.Time
}

// Stats tracks watcher activity for diagnostics.
type Stats struct {
	EventsSeen      int
	EventsBatched   int
	EventsSuppressed int
}

// NewWatcher constructs a Watcher with the given timing parameters. handler
// is invoked once per batch tick that produced at least one settled event.
func NewWatcher(debounce, batchWindow, gitWindow time.Duration, handler BatchHandler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:          fsw,
		handler:          handler,
		debounce:         debounce,
		batchWindow:      batchWindow,
		gitWindow:        gitWindow,
		registry:         make(map[string]int64),
		pending:          make(map[string]pendingEvent),
		gitSuppressUntil: make(map[int64]time.Time),
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}, nil
}

// WatchAttachment registers rootPath under attachmentID for recursive
// watching. fsnotify is not natively recursive, so every existing
// subdirectory is added explicitly.
func (w *Watcher) WatchAttachment(attachmentID int64, rootPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.registry[rootPath] = attachmentID
	if err := w.watcher.Add(rootPath); err != nil {
		return err
	}

	dirs, err := subdirectories(rootPath)
	if err != nil {
		logging.Get(logging.CategoryWatcher).Warn("failed to enumerate subdirectories of %s: %v", rootPath, err)
		return nil
	}
	for _, d := range dirs {
		if err := w.watcher.Add(d); err != nil {
			logging.WatcherDebug("failed to watch %s: %v", d, err)
		}
	}
	logging.Watcher("watching attachment %d at %s (%d subdirectories)", attachmentID, rootPath, len(dirs))
	return nil
}

// UnwatchAttachment removes rootPath from the registry and its watch.
func (w *Watcher) UnwatchAttachment(rootPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.registry, rootPath)
	w.watcher.Remove(rootPath)
}

// MarkGitOperation suppresses change events for attachmentID for the
// configured git-suppression window, so a pull/checkout/reset does not
// trigger a storm of sync work for files git itself just wrote.
func (w *Watcher) MarkGitOperation(attachmentID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gitSuppressUntil[attachmentID] = time.Now().Add(w.gitWindow)
	logging.Watcher("git operation marked for attachment %d, suppressing for %s", attachmentID, w.gitWindow)
}

// Start begins the event loop in a background goroutine. Non-blocking.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.run(ctx)
}

// Stop signals the event loop to exit, waits for it to finish if Start
// launched it, and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if started {
		<-w.doneCh
	}
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	batchTicker := time.NewTicker(w.batchWindow)
	defer batchTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatcher).Warn("watcher error: %v", err)
		case <-batchTicker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.EventsSeen++

	var op string
	switch {
	case event.Op&fsnotify.Create != 0:
		op = "create"
	case event.Op&fsnotify.Write != 0:
		op = "modify"
	case event.Op&fsnotify.Remove != 0:
		op = "delete"
	case event.Op&fsnotify.Rename != 0:
		op = "rename"
	default:
		return
	}

	attachmentID, ok := w.attachmentForPathLocked(event.Name)
	if !ok {
		return
	}

	w.pending[event.Name] = pendingEvent{attachmentID: attachmentID, op: op, seenAt: time.Now()}
}

// attachmentForPathLocked finds the longest registered root that prefixes
// path. Caller must hold w.mu.
func (w *Watcher) attachmentForPathLocked(path string) (int64, bool) {
	var bestRoot string
	var bestID int64
	found := false
	for root, id := range w.registry {
		if root == path || isUnder(root, path) {
			if len(root) > len(bestRoot) {
				bestRoot, bestID, found = root, id, true
			}
		}
	}
	return bestID, found
}

func isUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepathHasPrefix(rel, "..")
}

func filepathHasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (w *Watcher) processBatch(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var batch []ChangeEvent
	for path, pe := range w.pending {
		if now.Sub(pe.seenAt) < w.debounce {
			continue
		}
		delete(w.pending, path)

		if until, suppressed := w.gitSuppressUntil[pe.attachmentID]; suppressed && now.Before(until) {
			w.stats.EventsSuppressed++
			continue
		}
		batch = append(batch, ChangeEvent{AttachmentID: pe.attachmentID, Path: path, Op: pe.op})
	}
	w.stats.EventsBatched += len(batch)
	w.mu.Unlock()

	if len(batch) > 0 && w.handler != nil {
		w.handler(ctx, batch)
	}
}

// StatsSnapshot returns a copy of the current counters.
func (w *Watcher) StatsSnapshot() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func subdirectories(root string) ([]string, error) {
	var dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && isIgnored(rel) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}
