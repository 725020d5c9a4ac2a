package diag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ajsharma/tts_inspect/internal/events"
	"github.com/ajsharma/tts_inspect/internal/redact"
)

// Options tunes the console output and the highlight behavior.
type Options struct {
	ActiveClass       string
	HighlightBorder   string
	HighlightDuration time.Duration
	PreviewLength     int
	CompareLength     int
	Language          string

	// CallTimeout bounds collaborator calls made outside a caller's
	// context: highlight restores and event handlers.
	CallTimeout time.Duration
}

// DefaultOptions returns the default console options.
func DefaultOptions() Options {
	return Options{
		ActiveClass:       "active",
		HighlightBorder:   "3px solid #ff4081",
		HighlightDuration: 2 * time.Second,
		PreviewLength:     200,
		CompareLength:     80,
		Language:          "en",
		CallTimeout:       10 * time.Second,
	}
}

const separator = "=================================================="

// Console inspects TTS-relevant page state on demand.
type Console struct {
	facade   Facade
	doc      Document
	log      zerolog.Logger
	opts     Options
	recorder Recorder
	redactor *redact.Redactor

	// hlMu serializes highlight calls; mu guards pending.
	hlMu    sync.Mutex
	mu      sync.Mutex
	pending *restoreTask
}

// New creates a console over the given collaborators. A nil facade is
// allowed and reported as not initialized by every call that needs it.
func New(facade Facade, doc Document, log zerolog.Logger, opts Options) *Console {
	return &Console{
		facade:   facade,
		doc:      doc,
		log:      log,
		opts:     opts,
		redactor: redact.New(false),
	}
}

// SetRecorder sets where reports are persisted. Nil disables recording.
func (c *Console) SetRecorder(r Recorder) {
	c.recorder = r
}

// SetRedactor sets the redactor applied to summaries and recorded reports.
func (c *Console) SetRedactor(r *redact.Redactor) {
	if r == nil {
		r = redact.New(false)
	}
	c.redactor = r
}

// ShowActiveScreen logs the active screen and highlights it temporarily.
func (c *Console) ShowActiveScreen(ctx context.Context) (*Screen, error) {
	svc, err := c.service(ctx)
	if svc == nil {
		return nil, err
	}

	screen, err := svc.ActiveScreen(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active screen: %w", err)
	}
	if screen == nil {
		c.notFound("active")
		return nil, nil
	}

	c.log.Info().
		Str("id", screen.ID).
		Str("class", screen.ClassName).
		Bool("visible", screen.HasLayoutParent).
		Msg("🎯 Active screen")
	c.record(events.EventDiagActiveScreen, map[string]interface{}{
		"id":      screen.ID,
		"class":   screen.ClassName,
		"visible": screen.HasLayoutParent,
	})

	if err := c.highlight(ctx, *screen); err != nil {
		return screen, err
	}
	return screen, nil
}

// ShowContentPreview logs the summary of the active screen's content.
func (c *Console) ShowContentPreview(ctx context.Context) (*Summary, error) {
	svc, err := c.service(ctx)
	if svc == nil {
		return nil, err
	}

	summary, err := svc.CurrentScreenSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("get screen summary: %w", err)
	}
	if summary == nil {
		c.notFound("summary")
		return nil, nil
	}

	c.log.Info().
		Int("content_length", summary.ContentLength).
		Interface("details", c.redactor.RedactFields(summary.Extra)).
		Msg("📄 Content summary")
	c.log.Info().Str("preview", c.redactor.RedactText(summary.Preview)).Msg("📝 Preview")
	c.record(events.EventDiagContentPreview, map[string]interface{}{
		"content_length": summary.ContentLength,
		"preview":        summary.Preview,
		"details":        summary.Extra,
	})

	return summary, nil
}

// ScreenReport is one row of ListAllScreens.
type ScreenReport struct {
	Position int
	ID       string
	Active   bool
	Visible  bool
}

// ListAllScreens logs every screen with its active and visible flags.
func (c *Console) ListAllScreens(ctx context.Context) ([]ScreenReport, error) {
	screens, err := c.doc.Screens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list screens: %w", err)
	}

	reports := make([]ScreenReport, 0, len(screens))
	for i, s := range screens {
		r := ScreenReport{
			Position: i + 1,
			ID:       s.ID,
			Active:   s.HasClass(c.opts.ActiveClass),
			Visible:  s.Visible(),
		}
		c.log.Info().
			Int("index", r.Position).
			Str("id", r.ID).
			Bool("active", r.Active).
			Bool("visible", r.Visible).
			Msg("📋 Screen")
		reports = append(reports, r)
	}
	c.log.Info().Int("count", len(reports)).Msg("📊 Screens found")

	rows := make([]interface{}, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, map[string]interface{}{
			"index":   r.Position,
			"id":      r.ID,
			"active":  r.Active,
			"visible": r.Visible,
		})
	}
	c.record(events.EventDiagScreenList, map[string]interface{}{
		"count":   len(reports),
		"screens": rows,
	})

	return reports, nil
}

// TestRead logs the active screen and its preview, then reads the current
// screen aloud through the façade. It returns once playback settles or ctx
// is done. The language is recorded but the façade uses its own setting.
func (c *Console) TestRead(ctx context.Context, language string) error {
	if language == "" {
		language = c.opts.Language
	}
	if svc, err := c.service(ctx); svc == nil {
		return err
	}

	c.log.Info().Str("language", language).Msg("🧪 Testing read of current screen")
	if _, err := c.ShowActiveScreen(ctx); err != nil {
		return err
	}
	if _, err := c.ShowContentPreview(ctx); err != nil {
		return err
	}

	start := time.Now()
	if err := c.facade.TestCurrentScreen(ctx); err != nil {
		return fmt.Errorf("read current screen: %w", err)
	}

	c.log.Info().Dur("took", time.Since(start)).Msg("✅ Read finished")
	c.record(events.EventDiagTestRead, map[string]interface{}{
		"language":    language,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// StartMonitoring logs every screen transition and re-runs the content
// preview for the new screen. Call the returned function to stop.
func (c *Console) StartMonitoring(ctx context.Context) (Unsubscribe, error) {
	unsub, err := c.doc.OnScreenChanged(ctx, func(screenID string) {
		c.log.Info().Str("id", screenID).Msg("🔄 Screen changed")
		c.record(events.EventDiagScreenChanged, map[string]interface{}{
			"id": screenID,
		})

		callCtx, cancel := c.callContext()
		defer cancel()
		if _, err := c.ShowContentPreview(callCtx); err != nil {
			c.log.Error().Err(err).Msg("content preview after screen change failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to screen changes: %w", err)
	}

	c.log.Info().Msg("👀 Monitoring screen changes")
	return unsub, nil
}

// ShowRawText logs the readable text of the active screen. The boolean is
// false when there is no active screen or the service is missing.
func (c *Console) ShowRawText(ctx context.Context) (string, bool, error) {
	svc, err := c.service(ctx)
	if svc == nil {
		return "", false, err
	}

	screen, err := svc.ActiveScreen(ctx)
	if err != nil {
		return "", false, fmt.Errorf("get active screen: %w", err)
	}
	if screen == nil {
		c.notFound("active")
		return "", false, nil
	}

	text, err := svc.ExtractReadableText(ctx, *screen)
	if err != nil {
		return "", false, fmt.Errorf("extract text from %q: %w", screen.ID, err)
	}

	chars := utf8.RuneCountInString(text)
	c.log.Info().Str("id", screen.ID).Msg("📜 Raw text")
	c.log.Info().Msg(separator)
	c.log.Info().Msg(text)
	c.log.Info().Msg(separator)
	c.log.Info().Int("characters", chars).Msg("📏 Character count")
	c.record(events.EventDiagRawText, map[string]interface{}{
		"id":         screen.ID,
		"text":       text,
		"characters": chars,
	})

	return text, true, nil
}

// ScreenText is one row of CompareAllScreens.
type ScreenText struct {
	ID     string
	Active bool
	Length int
	Text   string
	Prefix string
}

// CompareAllScreens extracts the readable text of every screen, one
// extraction per screen, and logs a short prefix of each.
func (c *Console) CompareAllScreens(ctx context.Context) ([]ScreenText, error) {
	svc, err := c.service(ctx)
	if svc == nil {
		return nil, err
	}

	screens, err := c.doc.Screens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list screens: %w", err)
	}

	rows := make([]ScreenText, 0, len(screens))
	recorded := make([]interface{}, 0, len(screens))
	for _, s := range screens {
		text, err := svc.ExtractReadableText(ctx, s)
		if err != nil {
			return rows, fmt.Errorf("extract text from %q: %w", s.ID, err)
		}

		row := ScreenText{
			ID:     s.ID,
			Active: s.HasClass(c.opts.ActiveClass),
			Length: utf8.RuneCountInString(text),
			Text:   text,
			Prefix: truncate(text, c.opts.CompareLength) + "...",
		}
		marker := "⬜"
		if row.Active {
			marker = "✅"
		}
		c.log.Info().
			Str("id", row.ID).
			Str("active", marker).
			Int("characters", row.Length).
			Str("text", row.Prefix).
			Msg("🔍 Screen text")

		rows = append(rows, row)
		recorded = append(recorded, map[string]interface{}{
			"id":         row.ID,
			"active":     row.Active,
			"characters": row.Length,
			"prefix":     row.Prefix,
		})
	}
	c.record(events.EventDiagCompare, map[string]interface{}{
		"screens": recorded,
	})

	return rows, nil
}

// TestScreenByID extracts the text of the screen with the given identifier
// and speaks it. Nothing is extracted when the screen does not exist, and
// nothing is spoken when the extracted text is empty.
func (c *Console) TestScreenByID(ctx context.Context, screenID, language string) error {
	if language == "" {
		language = c.opts.Language
	}

	screen, err := c.doc.ScreenByID(ctx, screenID)
	if err != nil {
		return fmt.Errorf("find screen %q: %w", screenID, err)
	}
	if screen == nil {
		c.log.Error().Str("id", screenID).Msg("❌ Screen not found")
		c.record(events.EventDiagNotFound, map[string]interface{}{
			"what": "screen",
			"id":   screenID,
		})
		return nil
	}

	svc, err := c.service(ctx)
	if svc == nil {
		return err
	}

	text, err := svc.ExtractReadableText(ctx, *screen)
	if err != nil {
		return fmt.Errorf("extract text from %q: %w", screenID, err)
	}

	c.log.Info().
		Str("id", screenID).
		Int("characters", utf8.RuneCountInString(text)).
		Str("preview", truncate(text, c.opts.PreviewLength)).
		Msg("📏 Extracted text")

	if text == "" {
		c.log.Warn().Str("id", screenID).Msg("⚠️ No readable text on screen")
		return nil
	}

	c.log.Info().Str("id", screenID).Str("language", language).Msg("🔊 Speaking")
	if err := svc.Speak(ctx, text, language); err != nil {
		return fmt.Errorf("speak screen %q: %w", screenID, err)
	}
	c.log.Info().Str("id", screenID).Msg("✅ Speech finished")
	c.record(events.EventDiagSpeak, map[string]interface{}{
		"id":         screenID,
		"language":   language,
		"characters": utf8.RuneCountInString(text),
	})

	return nil
}

// Stats is a snapshot of the service state.
type Stats struct {
	CurrentScreenID   string
	ContentLength     int
	IsSpeaking        bool
	Language          string
	PipelineCacheSize int
}

// ShowStats logs the current screen, content length, speaking flag,
// language and pipeline cache size.
func (c *Console) ShowStats(ctx context.Context) (*Stats, error) {
	svc, err := c.service(ctx)
	if svc == nil {
		return nil, err
	}

	state, err := svc.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("get service state: %w", err)
	}
	summary, err := svc.CurrentScreenSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("get screen summary: %w", err)
	}
	lang, err := c.facade.Language(ctx)
	if err != nil {
		return nil, fmt.Errorf("get language: %w", err)
	}

	stats := &Stats{Language: lang}
	if state != nil {
		stats.CurrentScreenID = state.CurrentScreenID
		stats.IsSpeaking = state.IsSpeaking
		stats.PipelineCacheSize = state.PipelineCacheSize
	}
	if summary != nil {
		stats.ContentLength = summary.ContentLength
	}

	c.log.Info().
		Str("current_screen", stats.CurrentScreenID).
		Int("content_length", stats.ContentLength).
		Bool("speaking", stats.IsSpeaking).
		Str("language", stats.Language).
		Int("pipeline_cache", stats.PipelineCacheSize).
		Msg("📊 TTS stats")
	c.record(events.EventDiagStats, map[string]interface{}{
		"current_screen": stats.CurrentScreenID,
		"content_length": stats.ContentLength,
		"speaking":       stats.IsSpeaking,
		"language":       stats.Language,
		"pipeline_cache": stats.PipelineCacheSize,
	})

	return stats, nil
}

// service resolves the TTS service. A nil service with a nil error means
// the façade is missing and the condition has been logged.
func (c *Console) service(ctx context.Context) (Service, error) {
	if c.facade == nil {
		c.notInitialized()
		return nil, nil
	}

	svc, err := c.facade.Service(ctx)
	if errors.Is(err, ErrNotInitialized) || (err == nil && svc == nil) {
		c.notInitialized()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tts service: %w", err)
	}
	return svc, nil
}

func (c *Console) notInitialized() {
	c.log.Error().Msg("❌ TTS UI not initialized")
	c.record(events.EventDiagNotInitialized, map[string]interface{}{})
}

func (c *Console) notFound(what string) {
	msg := "❌ No active screen found"
	if what == "summary" {
		msg = "❌ No content summary available"
	}
	c.log.Warn().Msg(msg)
	c.record(events.EventDiagNotFound, map[string]interface{}{
		"what": what,
	})
}

func (c *Console) record(eventType string, data map[string]interface{}) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(eventType, c.redactor.RedactFields(data)); err != nil {
		c.log.Debug().Err(err).Str("event_type", eventType).Msg("failed to record report")
	}
}

func (c *Console) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.opts.CallTimeout)
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}

	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
