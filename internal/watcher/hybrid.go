package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher watches a directory tree with fsnotify, falling back to
// polling when fsnotify cannot be created, the root cannot be watched, or
// Options.ForcePolling is set. Events are emitted in debounced batches.
type HybridWatcher struct {
	opts      Options
	ignore    ignorer
	logger    *slog.Logger
	debouncer *Debouncer

	fsWatcher *fsnotify.Watcher
	poller    *PollingWatcher

	events  chan []FileEvent
	errors  chan error
	stopCh  chan struct{}
	dropped atomic.Uint64

	mu       sync.RWMutex
	stopped  bool
	rootPath string
	mode     string
}

// NewHybridWatcher creates a watcher. Nothing is watched until Start.
func NewHybridWatcher(opts Options, logger *slog.Logger) *HybridWatcher {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridWatcher{
		opts:      opts,
		ignore:    ignorer{patterns: opts.IgnorePatterns},
		logger:    logger,
		debouncer: NewDebouncer(opts.DebounceWindow, logger),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 16),
		stopCh:    make(chan struct{}),
	}
}

// Start watches root until ctx ends or Stop is called. It blocks.
func (h *HybridWatcher) Start(ctx context.Context, root string) error {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.rootPath = absPath
	usePolling := h.opts.ForcePolling
	if !usePolling {
		fsw, err := fsnotify.NewWatcher()
		switch {
		case err != nil:
			h.logger.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
			usePolling = true
		default:
			h.fsWatcher = fsw
			if err := h.addRecursive(absPath); err != nil {
				h.logger.Warn("cannot watch content root, falling back to polling",
					slog.String("root", absPath),
					slog.String("error", err.Error()))
				_ = fsw.Close()
				h.fsWatcher = nil
				usePolling = true
			}
		}
	}
	if usePolling {
		h.poller = NewPollingWatcher(h.opts.PollInterval, h.ignore, h.logger)
		h.mode = "polling"
	} else {
		h.mode = "fsnotify"
	}
	h.mu.Unlock()

	h.logger.Debug("watcher started", slog.String("root", absPath), slog.String("mode", h.mode))

	go h.forwardDebounced()

	if usePolling {
		return h.runPolling(ctx)
	}
	return h.runFsnotify(ctx)
}

func (h *HybridWatcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) runPolling(ctx context.Context) error {
	go func() {
		for event := range h.poller.Events() {
			h.debouncer.Add(event)
		}
	}()
	err := h.poller.Start(ctx, h.rootPath)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = h.Stop()
	}
	return err
}

// handleFsnotifyEvent converts, filters and queues one fsnotify event.
func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(h.rootPath, event.Name)
	if err != nil || h.ignore.match(rel) {
		return
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			// A directory moved into the tree arrives as one event, so
			// watch it and report what it already contains.
			_ = h.addRecursive(event.Name)
			h.emitExisting(event.Name)
		}
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	h.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// addRecursive adds dir and its non-ignored subdirectories to fsnotify.
func (h *HybridWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(h.rootPath, path); rel != "." && h.ignore.match(rel) {
			return filepath.SkipDir
		}
		return h.fsWatcher.Add(path)
	})
}

func (h *HybridWatcher) emitExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(h.rootPath, path)
		if err != nil || h.ignore.match(rel) {
			return nil
		}
		h.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		return nil
	})
}

func (h *HybridWatcher) forwardDebounced() {
	for {
		select {
		case <-h.stopCh:
			return
		case batch, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			h.emitEvents(batch)
		}
	}
}

func (h *HybridWatcher) emitEvents(batch []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.events <- batch:
	default:
		n := h.dropped.Add(1)
		h.logger.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", n))
	}
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// Stop releases the watch and closes Events and Errors. Safe to call
// multiple times and before Start.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()
	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.poller != nil {
		_ = h.poller.Stop()
	}
	close(h.events)
	close(h.errors)
	return nil
}

// Events returns debounced batches. Closed by Stop.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns non-fatal watch errors. Closed by Stop.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// Mode returns "fsnotify" or "polling" once started.
func (h *HybridWatcher) Mode() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mode
}

// DroppedBatches returns the number of batches dropped on a full buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.dropped.Load()
}
