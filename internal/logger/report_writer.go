package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ajsharma/tts_inspect/internal/events"
)

const (
	// DefaultBufferSize is the default buffer size for report writers (8 KB).
	DefaultBufferSize = 8 * 1024

	// DefaultFlushInterval is the default interval between automatic flushes.
	DefaultFlushInterval = 100 * time.Millisecond
)

// ReportWriter appends report events to one JSONL file.
type ReportWriter struct {
	path          string
	file          *os.File
	writer        *bufio.Writer
	flushTimer    *time.Timer
	flushInterval time.Duration
	mu            sync.Mutex
	closed        bool
}

// NewReportWriter opens (or creates) the report file for a site and tab.
func NewReportWriter(baseDir, site, tabID string, bufferSize int, flushInterval time.Duration) (*ReportWriter, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	path := GetReportPath(baseDir, site, tabID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &ReportWriter{
		path:          path,
		file:          f,
		writer:        bufio.NewWriterSize(f, bufferSize),
		flushInterval: flushInterval,
	}, nil
}

// Path returns the file being written.
func (w *ReportWriter) Path() string {
	return w.path
}

// WriteEvent appends one event as a JSON line.
func (w *ReportWriter) WriteEvent(event *events.LogEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return err
	}

	return w.handleFlush(event.EventType)
}

// handleFlush determines and executes the appropriate flush strategy.
func (w *ReportWriter) handleFlush(eventType string) error {
	bufferFull := w.writer.Buffered() > w.writer.Size()*3/4

	switch {
	case events.IsMeta(eventType):
		// Session boundaries go straight to disk
		if err := w.writer.Flush(); err != nil {
			return err
		}
		if err := w.file.Sync(); err != nil {
			return err
		}
		w.cancelFlushTimer()
	case bufferFull:
		if err := w.writer.Flush(); err != nil {
			return err
		}
		w.cancelFlushTimer()
	default:
		w.scheduleFlush()
	}

	return nil
}

// scheduleFlush schedules a flush after the flush interval.
func (w *ReportWriter) scheduleFlush() {
	if w.flushTimer != nil {
		return
	}

	w.flushTimer = time.AfterFunc(w.flushInterval, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if !w.closed {
			_ = w.writer.Flush()
		}
		w.flushTimer = nil
	})
}

// cancelFlushTimer cancels any pending flush timer.
func (w *ReportWriter) cancelFlushTimer() {
	if w.flushTimer != nil {
		w.flushTimer.Stop()
		w.flushTimer = nil
	}
}

// Close flushes, syncs and closes the file.
func (w *ReportWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.cancelFlushTimer()

	if err := w.writer.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
