package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ajsharma/tts_inspect/internal/diag"
	"github.com/ajsharma/tts_inspect/internal/monitor"
)

// envelope is the object every page script resolves to.
type envelope struct {
	Initialized *bool                  `json:"initialized"`
	Found       *bool                  `json:"found"`
	Screen      *diag.Screen           `json:"screen"`
	Screens     []diag.Screen          `json:"screens"`
	Summary     map[string]interface{} `json:"summary"`
	Text        string                 `json:"text"`
	Border      string                 `json:"border"`
	Language    string                 `json:"language"`
	State       *diag.ServiceState     `json:"state"`
}

// check maps the envelope flags onto the diag sentinel errors.
func (e *envelope) check() error {
	if e.Initialized != nil && !*e.Initialized {
		return diag.ErrNotInitialized
	}
	if e.Found != nil && !*e.Found {
		return diag.ErrScreenNotFound
	}
	return nil
}

func eval(ctx context.Context, p *Page, script string) (*envelope, error) {
	var env envelope
	if err := p.Evaluate(ctx, script, &env); err != nil {
		return nil, err
	}
	if err := env.check(); err != nil {
		return nil, err
	}
	return &env, nil
}

// evalSettled is eval for speech: it waits as long as ctx allows.
func evalSettled(ctx context.Context, p *Page, script string) error {
	var env envelope
	if err := p.EvaluateUntilSettled(ctx, script, &env); err != nil {
		return err
	}
	return env.check()
}

// Facade implements diag.Facade against the page's TTS UI object.
type Facade struct {
	page    *Page
	scripts *Scripts
	service *Service
}

// NewFacade creates a façade adapter.
func NewFacade(page *Page, scripts *Scripts) *Facade {
	return &Facade{
		page:    page,
		scripts: scripts,
		service: &Service{page: page, scripts: scripts},
	}
}

// Service returns diag.ErrNotInitialized when the façade or its service is
// missing from the page.
func (f *Facade) Service(ctx context.Context) (diag.Service, error) {
	if _, err := eval(ctx, f.page, f.scripts.ServiceCheck()); err != nil {
		return nil, err
	}
	return f.service, nil
}

func (f *Facade) Language(ctx context.Context) (string, error) {
	env, err := eval(ctx, f.page, f.scripts.Language())
	if err != nil {
		return "", err
	}
	return env.Language, nil
}

// TestCurrentScreen waits for the page's read to settle. Cancelling ctx
// stops the wait; playback already started in the page is not interrupted.
func (f *Facade) TestCurrentScreen(ctx context.Context) error {
	return evalSettled(ctx, f.page, f.scripts.TestCurrentScreen())
}

// Service implements diag.Service against the page's speech service.
type Service struct {
	page    *Page
	scripts *Scripts
}

func (s *Service) ActiveScreen(ctx context.Context) (*diag.Screen, error) {
	env, err := eval(ctx, s.page, s.scripts.ActiveScreen())
	if err != nil {
		return nil, err
	}
	return env.Screen, nil
}

func (s *Service) CurrentScreenSummary(ctx context.Context) (*diag.Summary, error) {
	env, err := eval(ctx, s.page, s.scripts.Summary())
	if err != nil {
		return nil, err
	}
	return diag.SummaryFromMap(env.Summary), nil
}

func (s *Service) ExtractReadableText(ctx context.Context, screen diag.Screen) (string, error) {
	env, err := eval(ctx, s.page, s.scripts.ExtractText(screen))
	if err != nil {
		return "", err
	}
	return env.Text, nil
}

// Speak waits until the page's synthesis promise settles or ctx is done.
func (s *Service) Speak(ctx context.Context, text, language string) error {
	return evalSettled(ctx, s.page, s.scripts.Speak(text, language))
}

func (s *Service) State(ctx context.Context) (*diag.ServiceState, error) {
	env, err := eval(ctx, s.page, s.scripts.State())
	if err != nil {
		return nil, err
	}
	return env.State, nil
}

// Document implements diag.Document and diag.KeySource.
type Document struct {
	page    *Page
	scripts *Scripts
	bridge  *monitor.Bridge
}

// NewDocument creates a document adapter. Subscriptions go through bridge.
func NewDocument(page *Page, scripts *Scripts, bridge *monitor.Bridge) *Document {
	return &Document{
		page:    page,
		scripts: scripts,
		bridge:  bridge,
	}
}

func (d *Document) Screens(ctx context.Context) ([]diag.Screen, error) {
	env, err := eval(ctx, d.page, d.scripts.Screens())
	if err != nil {
		return nil, err
	}
	return env.Screens, nil
}

func (d *Document) ScreenByID(ctx context.Context, id string) (*diag.Screen, error) {
	env, err := eval(ctx, d.page, d.scripts.ScreenByID(id))
	if err != nil {
		return nil, err
	}
	return env.Screen, nil
}

func (d *Document) Border(ctx context.Context, screen diag.Screen) (string, error) {
	env, err := eval(ctx, d.page, d.scripts.Border(screen))
	if err != nil {
		return "", err
	}
	return env.Border, nil
}

func (d *Document) SetBorder(ctx context.Context, screen diag.Screen, value string) error {
	_, err := eval(ctx, d.page, d.scripts.SetBorder(screen, value))
	return err
}

// OnScreenChanged calls fn with the new screen id on every screen-changed
// event dispatched by the page.
func (d *Document) OnScreenChanged(ctx context.Context, fn func(screenID string)) (diag.Unsubscribe, error) {
	unsub, err := d.bridge.Subscribe(ctx, d.scripts.ScreenChanged(), func(payload string) {
		id, err := decodeScreenChanged(payload)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed screen change")
			return
		}
		fn(id)
	})
	if err != nil {
		return nil, err
	}
	return diag.Unsubscribe(unsub), nil
}

// OnShortcut calls fn for every debug shortcut press. The page has already
// prevented the browser default, so the delivered event has no PreventDefault.
func (d *Document) OnShortcut(ctx context.Context, fn func(diag.KeyEvent)) (diag.Unsubscribe, error) {
	unsub, err := d.bridge.Subscribe(ctx, d.scripts.Shortcut(), func(payload string) {
		ev, err := decodeKeyEvent(payload)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed key event")
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, err
	}
	return diag.Unsubscribe(unsub), nil
}

func decodeScreenChanged(payload string) (string, error) {
	var msg struct {
		ScreenID string `json:"screenId"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return "", fmt.Errorf("decode screen change: %w", err)
	}
	return msg.ScreenID, nil
}

func decodeKeyEvent(payload string) (diag.KeyEvent, error) {
	var ev diag.KeyEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return diag.KeyEvent{}, fmt.Errorf("decode key event: %w", err)
	}
	return ev, nil
}
