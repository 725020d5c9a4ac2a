package logger

import (
	"sync/atomic"
	"time"

	"github.com/ajsharma/tts_inspect/internal/config"
	"github.com/ajsharma/tts_inspect/internal/events"
	"github.com/ajsharma/tts_inspect/internal/redact"
)

// Recorder writes the reports of one inspection session for one tab.
type Recorder struct {
	writer    *ReportWriter
	site      string
	tabID     string
	sessionID string
	redactor  *redact.Redactor
	startTime time.Time
	reports   atomic.Int64
}

// NewRecorder opens the report file for the page at pageURL and writes the
// session start event.
func NewRecorder(cfg *config.Config, targetID, pageURL string) (*Recorder, error) {
	site := ExtractSite(pageURL)
	tabID := TabLabel(targetID)

	redactor, err := redact.NewFromRules(cfg.Redact, cfg.RedactFields, cfg.RedactPatterns)
	if err != nil {
		return nil, err
	}

	w, err := NewReportWriter(cfg.RecordDir, site, tabID, cfg.BufferSize, cfg.FlushInterval)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		writer:    w,
		site:      site,
		tabID:     tabID,
		sessionID: NewSessionID(),
		redactor:  redactor,
		startTime: time.Now(),
	}

	start := events.NewSessionStartEvent(site, tabID, r.sessionID, pageURL, config.Version)
	if err := w.WriteEvent(start); err != nil {
		_ = w.Close()
		return nil, err
	}

	return r, nil
}

// Record appends a report, redacted when the config asks for it.
func (r *Recorder) Record(eventType string, data map[string]interface{}) error {
	r.reports.Add(1)
	return r.writer.WriteEvent(events.NewLogEvent(r.site, r.tabID, eventType, r.redactor.RedactFields(data)))
}

// SessionID returns the identifier written into the session events.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Path returns the report file.
func (r *Recorder) Path() string {
	return r.writer.Path()
}

// Close writes the session end event and closes the file.
func (r *Recorder) Close() error {
	end := events.NewSessionEndEvent(
		r.site,
		r.tabID,
		r.sessionID,
		int(r.reports.Load()),
		time.Since(r.startTime).Seconds(),
	)
	if err := r.writer.WriteEvent(end); err != nil {
		_ = r.writer.Close()
		return err
	}
	return r.writer.Close()
}
