package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventWatcher watches an event directory and dispatches each event file to
// a callback. Consumed files are removed.
type EventWatcher struct {
	dir      string
	callback func(Event)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewEventWatcher creates a watcher for dir.
func NewEventWatcher(dir string, logger *slog.Logger, callback func(Event)) *EventWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWatcher{
		dir:      dir,
		callback: callback,
		logger:   logger.With("component", "notify"),
		done:     make(chan struct{}),
	}
}

// Start drains event files already present, then watches for new ones.
// Call Stop to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	ew.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	go ew.loop()
	ew.logger.Info("watching for graph events", "dir", ew.dir)
	return nil
}

// Stop shuts down the watcher.
func (ew *EventWatcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isEventFile(evt.Name) {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.logger.Warn("watcher error", "error", err)
		}
	}
}

func (ew *EventWatcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && isEventFile(entry.Name()) {
			ew.processFile(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // consumed by another watcher
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		ew.logger.Warn("invalid event file", "file", filepath.Base(path), "error", err)
		return
	}
	if event.Type != "" && ew.callback != nil {
		ew.callback(event)
	}
}

func isEventFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, eventExt) && !strings.HasPrefix(base, ".")
}

// PathWatcher calls a function once writes to a file or directory tree have
// been quiet for the debounce interval.
type PathWatcher struct {
	path     string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// WatchPath starts watching path. For a file the parent directory is
// watched and events are filtered by name, which survives editors that
// replace the file. For a directory every subdirectory is watched.
func WatchPath(path string, debounce time.Duration, logger *slog.Logger, onChange func()) (*PathWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("notify: watch %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	pw := &PathWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		logger:   logger.With("component", "notify"),
		watcher:  w,
		done:     make(chan struct{}),
	}

	if info.IsDir() {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return err
			}
			return w.Add(p)
		})
	} else {
		err = w.Add(filepath.Dir(path))
	}
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("notify: watch %s: %w", path, err)
	}

	go pw.loop(info.IsDir())
	pw.logger.Info("watching path", "path", path)
	return pw, nil
}

// Stop shuts down the watcher. A pending change notification is dropped.
func (pw *PathWatcher) Stop() {
	_ = pw.watcher.Close()
	<-pw.done
	pw.mu.Lock()
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.mu.Unlock()
}

func (pw *PathWatcher) loop(isDir bool) {
	defer close(pw.done)
	for {
		select {
		case evt, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if !isDir && filepath.Clean(evt.Name) != pw.path {
				continue
			}
			if isDir && evt.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
					_ = pw.watcher.Add(evt.Name)
				}
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				pw.schedule()
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Warn("watcher error", "error", err)
		}
	}
}

func (pw *PathWatcher) schedule() {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.timer = time.AfterFunc(pw.debounce, pw.onChange)
}
