// Package events defines the report records written by the recorder.
package events

import (
	"strings"
	"time"
)

// LogEvent represents a single recorded report in JSONL format.
type LogEvent struct {
	Timestamp string                 `json:"timestamp"`
	Site      string                 `json:"site"`
	TabID     string                 `json:"tab_id"`
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
}

// NewLogEvent creates a new LogEvent with the current timestamp.
func NewLogEvent(site, tabID, eventType string, data map[string]interface{}) *LogEvent {
	return &LogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Site:      site,
		TabID:     tabID,
		EventType: eventType,
		Data:      data,
	}
}

// Event type constants for meta events.
const (
	EventMetaSessionStart = "meta.session_start"
	EventMetaSessionEnd   = "meta.session_end"
)

// Event type constants for diagnostic reports.
const (
	EventDiagActiveScreen   = "diag.active_screen"
	EventDiagContentPreview = "diag.content_preview"
	EventDiagScreenList     = "diag.screen_list"
	EventDiagTestRead       = "diag.test_read"
	EventDiagRawText        = "diag.raw_text"
	EventDiagCompare        = "diag.compare"
	EventDiagSpeak          = "diag.speak"
	EventDiagStats          = "diag.stats"
	EventDiagScreenChanged  = "diag.screen_changed"
	EventDiagShortcut       = "diag.shortcut"
	EventDiagNotFound       = "diag.not_found"
	EventDiagNotInitialized = "diag.not_initialized"
)

// Event type constants for page events echoed while monitoring.
const (
	EventConsoleLog   = "console.log"
	EventConsoleWarn  = "console.warn"
	EventConsoleError = "console.error"
	EventErrorRuntime = "error.runtime"
)

// IsMeta reports whether the event type belongs to the session lifecycle.
func IsMeta(eventType string) bool {
	return strings.HasPrefix(eventType, "meta.")
}

// NewSessionStartEvent creates a meta.session_start event.
func NewSessionStartEvent(site, tabID, sessionID, url, version string) *LogEvent {
	return NewLogEvent(site, tabID, EventMetaSessionStart, map[string]interface{}{
		"session_id":          sessionID,
		"url":                 url,
		"tts_inspect_version": version,
		"start_time":          time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// NewSessionEndEvent creates a meta.session_end event.
func NewSessionEndEvent(site, tabID, sessionID string, reports int, durationSeconds float64) *LogEvent {
	return NewLogEvent(site, tabID, EventMetaSessionEnd, map[string]interface{}{
		"session_id":       sessionID,
		"reports":          reports,
		"duration_seconds": durationSeconds,
	})
}
