package diag

import (
	"context"
	"fmt"

	"github.com/ajsharma/tts_inspect/internal/events"
)

// ShortcutKey is the key that, with Shift and Ctrl or Meta, dumps status.
const ShortcutKey = "D"

// KeyEvent is a key press delivered by the page.
type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrlKey"`
	Meta  bool   `json:"metaKey"`
	Shift bool   `json:"shiftKey"`

	// PreventDefault suppresses the browser's own handling. May be nil.
	PreventDefault func() `json:"-"`
}

// ShortcutMatches reports whether ev is Ctrl/Cmd + Shift + D.
func ShortcutMatches(ev KeyEvent) bool {
	return ev.Shift && (ev.Ctrl || ev.Meta) && ev.Key == ShortcutKey
}

// HandleKey runs the stats, active screen and preview dumps when ev is the
// debug shortcut. The default action is prevented before anything is logged.
func (c *Console) HandleKey(ctx context.Context, ev KeyEvent) bool {
	if !ShortcutMatches(ev) {
		return false
	}
	if ev.PreventDefault != nil {
		ev.PreventDefault()
	}

	c.log.Info().Msg("⌨️ Debug shortcut pressed")
	c.record(events.EventDiagShortcut, map[string]interface{}{
		"ctrl": ev.Ctrl,
		"meta": ev.Meta,
	})

	if _, err := c.ShowStats(ctx); err != nil {
		c.log.Error().Err(err).Msg("stats failed")
	}
	if _, err := c.ShowActiveScreen(ctx); err != nil {
		c.log.Error().Err(err).Msg("active screen failed")
	}
	if _, err := c.ShowContentPreview(ctx); err != nil {
		c.log.Error().Err(err).Msg("content preview failed")
	}
	return true
}

// BindShortcut routes key presses from src through HandleKey until the
// returned function is called.
func (c *Console) BindShortcut(ctx context.Context, src KeySource) (Unsubscribe, error) {
	unsub, err := src.OnShortcut(ctx, func(ev KeyEvent) {
		callCtx, cancel := c.callContext()
		defer cancel()
		c.HandleKey(callCtx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to shortcut: %w", err)
	}

	c.log.Info().Str("shortcut", "Ctrl/Cmd+Shift+"+ShortcutKey).Msg("⌨️ Debug shortcut bound")
	return unsub, nil
}
