// Package diag implements the TTS diagnostics console: read-only inspection
// of which screen is active, what text would be read, and the state of the
// speech service, printed as structured log lines.
package diag

import (
	"context"
	"slices"
)

// Screen is one navigable UI panel of the host application.
type Screen struct {
	ID              string   `json:"id"`
	ClassName       string   `json:"className"`
	Classes         []string `json:"classes"`
	HasLayoutParent bool     `json:"hasLayoutParent"`
	Display         string   `json:"display"`
	Visibility      string   `json:"visibility"`

	// Index is the position among elements matching the screen selector,
	// or -1 when the element is not tagged as a screen.
	Index int `json:"index"`
}

// HasClass reports whether the screen carries the given class.
func (s Screen) HasClass(name string) bool {
	return slices.Contains(s.Classes, name)
}

// Visible reports whether the computed style leaves the screen rendered.
func (s Screen) Visible() bool {
	return s.Display != "none" && s.Visibility != "hidden"
}

func (s Screen) same(other Screen) bool {
	return s.ID == other.ID && s.Index == other.Index
}

// Summary describes the content of the currently active screen.
// It is recomputed by the service on every query.
type Summary struct {
	ContentLength int
	Preview       string
	Extra         map[string]interface{}
}

// SummaryFromMap builds a Summary from the loosely typed object returned
// by the service. Keys other than contentLength and preview land in Extra.
func SummaryFromMap(m map[string]interface{}) *Summary {
	if m == nil {
		return nil
	}

	s := &Summary{Extra: make(map[string]interface{})}
	for k, v := range m {
		switch k {
		case "contentLength":
			if n, ok := v.(float64); ok {
				s.ContentLength = int(n)
			}
		case "preview":
			if str, ok := v.(string); ok {
				s.Preview = str
			}
		default:
			s.Extra[k] = v
		}
	}
	return s
}

// ServiceState is the service's own bookkeeping, read in one round trip.
type ServiceState struct {
	CurrentScreenID   string `json:"currentScreenId"`
	IsSpeaking        bool   `json:"isSpeaking"`
	PipelineCacheSize int    `json:"pipelineCacheSize"`
}

// Unsubscribe removes a previously registered handler.
type Unsubscribe func()

// Facade is the TTS UI controller exposed by the page.
type Facade interface {
	// Service returns ErrNotInitialized when the façade or its service is absent.
	Service(ctx context.Context) (Service, error)
	Language(ctx context.Context) (string, error)
	// TestCurrentScreen reads the current screen aloud and returns once
	// playback settles or ctx is done.
	TestCurrentScreen(ctx context.Context) error
}

// Service performs text extraction, synthesis and screen tracking.
type Service interface {
	// ActiveScreen returns nil when no screen is active.
	ActiveScreen(ctx context.Context) (*Screen, error)
	CurrentScreenSummary(ctx context.Context) (*Summary, error)
	ExtractReadableText(ctx context.Context, screen Screen) (string, error)
	Speak(ctx context.Context, text, language string) error
	State(ctx context.Context) (*ServiceState, error)
}

// Document is the page's element tree as far as screens are concerned.
type Document interface {
	Screens(ctx context.Context) ([]Screen, error)
	// ScreenByID returns nil when no element has the identifier.
	ScreenByID(ctx context.Context, id string) (*Screen, error)
	Border(ctx context.Context, screen Screen) (string, error)
	SetBorder(ctx context.Context, screen Screen, value string) error
	OnScreenChanged(ctx context.Context, fn func(screenID string)) (Unsubscribe, error)
}

// KeySource delivers key presses that match the debug shortcut.
type KeySource interface {
	OnShortcut(ctx context.Context, fn func(KeyEvent)) (Unsubscribe, error)
}

// Recorder persists diagnostic reports.
type Recorder interface {
	Record(eventType string, data map[string]interface{}) error
}
