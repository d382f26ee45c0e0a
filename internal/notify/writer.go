// Package notify signals graph changes to running relgraph processes.
//
// A process that changes the graph (relgraph import) drops an event file
// into a shared directory; relgraph serve watches that directory with
// fsnotify and reloads its snapshot. The file engine also watches its
// fixture path directly.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EventGraphUpdated is sent after entities or edges were written.
const EventGraphUpdated = "graph_updated"

// Event is the payload written to an event file.
type Event struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Time   int64  `json:"time"`
}

// EventWriter writes event files to a shared directory.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to dir.
func NewEventWriter(dir string) *EventWriter {
	return &EventWriter{dir: dir}
}

// Notify writes an event file. Safe to call concurrently.
func (w *EventWriter) Notify(eventType, source string) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{
		Type:   eventType,
		Source: source,
		Time:   time.Now().UnixNano(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	// Write then rename so watchers never read a partial file.
	name := fmt.Sprintf("%d-%s", evt.Time, sanitize(eventType))
	tmp := filepath.Join(w.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write event: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, name+eventExt)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("notify: publish event: %w", err)
	}
	return nil
}

const eventExt = ".event"

// sanitize replaces characters unsafe for filenames.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, s)
}
