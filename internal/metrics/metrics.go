// Package metrics implements a write-only JSONL event logger recording how
// sorotte batches turn out.
package metrics

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agrahamlincoln/sorotte/internal/outcome"
	"github.com/agrahamlincoln/sorotte/internal/prune"
)

const schemaVersion = 1

// Event represents a single metrics event written to the JSONL log.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id"`

	Command *CommandEvent `json:"command,omitempty"`
	Switch  *SwitchEvent  `json:"switch,omitempty"`
	Prune   *PruneEvent   `json:"prune,omitempty"`
	Perf    *PerfEvent    `json:"perf,omitempty"`
}

// CommandEvent records which command was invoked.
type CommandEvent struct {
	Name  string   `json:"name"`
	Flags []string `json:"flags"`
}

// SwitchEvent records the tally of a switch batch. Target is a fingerprint
// of the branch name, never the name itself.
type SwitchEvent struct {
	Target   string `json:"target"`
	Success  int    `json:"success"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Pulled   bool   `json:"pulled"`
	Reloaded bool   `json:"reloaded"`
}

// PruneEvent records the totals of a prune run.
type PruneEvent struct {
	Repos      int  `json:"repos"`
	Deleted    int  `json:"deleted"`
	Skipped    int  `json:"skipped"`
	Errors     int  `json:"errors"`
	CutoffDays int  `json:"cutoff_days"`
	DryRun     bool `json:"dry_run"`
}

// PerfEvent records batch performance data.
type PerfEvent struct {
	Repos      int `json:"repos"`
	Workers    int `json:"workers"`
	DurationMs int `json:"duration_ms"`
}

// Logger handles writing events to monthly JSONL files.
type Logger struct {
	mu        sync.Mutex
	dir       string
	sessionID string
	file      *os.File
	filePath  string
}

// New creates a Logger that writes to the default metrics directory
// (~/.local/share/sorotte/metrics/). The directory is created if needed.
func New() (*Logger, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("metrics: home directory: %w", err)
	}
	return NewWithDir(filepath.Join(home, ".local", "share", "sorotte", "metrics"))
}

// NewOrNil returns a Logger using the default directory, or nil if
// initialization fails. Metrics never block a command.
func NewOrNil() *Logger {
	l, err := New()
	if err != nil {
		slog.Debug("metrics disabled", "error", err)
		return nil
	}
	return l
}

// NewWithDir creates a Logger writing to dir.
func NewWithDir(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("metrics: create directory: %w", err)
	}

	sid, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("metrics: generate session ID: %w", err)
	}
	return &Logger{dir: dir, sessionID: sid}, nil
}

// Log writes an event to the current month's JSONL file. The event's
// SchemaVersion, Timestamp, and SessionID are set automatically.
// A nil Logger is safe and silently discards all events.
func (l *Logger) Log(event Event) error {
	if l == nil {
		return nil
	}
	event.SchemaVersion = schemaVersion
	event.Timestamp = time.Now()
	event.SessionID = l.sessionID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("metrics: marshal event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.openFile()
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("metrics: write event: %w", err)
	}
	return nil
}

// LogCommand logs a command invocation.
func (l *Logger) LogCommand(name string, flags []string) error {
	return l.Log(Event{Command: &CommandEvent{Name: name, Flags: flags}})
}

// LogSwitch logs the tally of a switch batch.
func (l *Logger) LogSwitch(target string, outcomes []outcome.Outcome, pulled, reloaded bool) error {
	c := outcome.Count(outcomes)
	return l.Log(Event{Switch: &SwitchEvent{
		Target:   Fingerprint(target),
		Success:  c.Success,
		Skipped:  c.Skipped,
		Failed:   c.Failed,
		Pulled:   pulled,
		Reloaded: reloaded,
	}})
}

// LogPrune logs the totals of a prune run.
func (l *Logger) LogPrune(s prune.Summary, cutoffDays int, dryRun bool) error {
	return l.Log(Event{Prune: &PruneEvent{
		Repos:      s.Repos,
		Deleted:    s.Deleted,
		Skipped:    s.Skipped,
		Errors:     s.Errors,
		CutoffDays: cutoffDays,
		DryRun:     dryRun,
	}})
}

// LogPerf logs batch performance data.
func (l *Logger) LogPerf(repos, workers int, d time.Duration) error {
	return l.Log(Event{Perf: &PerfEvent{Repos: repos, Workers: workers, DurationMs: int(d.Milliseconds())}})
}

// Close closes the underlying file. A nil Logger is safe.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.filePath = ""
		return err
	}
	return nil
}

// Fingerprint produces a SHA-256 hex digest of parts so that branch names
// and paths are never stored raw. Each part is length-prefixed so that
// ("ab","c") and ("a","bc") hash differently.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		_, _ = fmt.Fprintf(h, "%d:%s", len(p), p) // sha256.Write never returns an error
	}
	return hex.EncodeToString(h.Sum(nil))
}

// openFile returns the file handle for the current month's JSONL file,
// opening or rotating as needed. Caller must hold l.mu.
func (l *Logger) openFile() (*os.File, error) {
	want := filepath.Join(l.dir, eventFileName())
	if l.file != nil && l.filePath == want {
		return l.file, nil
	}

	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
		l.filePath = ""
	}

	// #nosec G304 - path constructed from configured dir and deterministic filename
	f, err := os.OpenFile(want, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("metrics: open file: %w", err)
	}
	l.file = f
	l.filePath = want
	return f, nil
}

func eventFileName() string {
	return time.Now().Format("events-2006-01") + ".jsonl"
}

// generateSessionID returns a UUID v4 string.
func generateSessionID() (string, error) {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return "", err
	}
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16]), nil
}
