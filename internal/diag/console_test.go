package diag

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// syncBuffer collects log output written from timer goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeFacade struct {
	svc     *fakeService
	initErr error
	lang    string

	mu    sync.Mutex
	reads int
	read  func(ctx context.Context) error
}

func (f *fakeFacade) Service(ctx context.Context) (Service, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	if f.svc == nil {
		return nil, nil
	}
	return f.svc, nil
}

func (f *fakeFacade) Language(ctx context.Context) (string, error) {
	return f.lang, nil
}

func (f *fakeFacade) TestCurrentScreen(ctx context.Context) error {
	f.mu.Lock()
	f.reads++
	read := f.read
	f.mu.Unlock()
	if read != nil {
		return read(ctx)
	}
	return nil
}

type fakeService struct {
	active  *Screen
	summary *Summary
	texts   map[string]string
	state   *ServiceState

	mu        sync.Mutex
	extracted map[string]int
	spoken    []string
	speak     func(ctx context.Context) error
}

func (s *fakeService) ActiveScreen(ctx context.Context) (*Screen, error) {
	return s.active, nil
}

func (s *fakeService) CurrentScreenSummary(ctx context.Context) (*Summary, error) {
	return s.summary, nil
}

func (s *fakeService) ExtractReadableText(ctx context.Context, screen Screen) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extracted == nil {
		s.extracted = make(map[string]int)
	}
	s.extracted[screen.ID]++
	return s.texts[screen.ID], nil
}

func (s *fakeService) Speak(ctx context.Context, text, language string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, language+":"+text)
	speak := s.speak
	s.mu.Unlock()
	if speak != nil {
		return speak(ctx)
	}
	return nil
}

func (s *fakeService) State(ctx context.Context) (*ServiceState, error) {
	return s.state, nil
}

func (s *fakeService) extractCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extracted[id]
}

func (s *fakeService) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type fakeDocument struct {
	screens []Screen

	mu      sync.Mutex
	borders map[string]string
	changed func(string)

	// failSet makes the nth SetBorder call (1-based) return setErr.
	failSet  int
	setErr   error
	setCalls int
}

func newFakeDocument(screens ...Screen) *fakeDocument {
	return &fakeDocument{screens: screens, borders: make(map[string]string)}
}

func (d *fakeDocument) Screens(ctx context.Context) ([]Screen, error) {
	return d.screens, nil
}

func (d *fakeDocument) ScreenByID(ctx context.Context, id string) (*Screen, error) {
	for _, s := range d.screens {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (d *fakeDocument) Border(ctx context.Context, screen Screen) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.borders[screen.ID], nil
}

func (d *fakeDocument) SetBorder(ctx context.Context, screen Screen, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setCalls++
	if d.setCalls == d.failSet {
		return d.setErr
	}
	d.borders[screen.ID] = value
	return nil
}

func (d *fakeDocument) border(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.borders[id]
}

func (d *fakeDocument) OnScreenChanged(ctx context.Context, fn func(string)) (Unsubscribe, error) {
	d.mu.Lock()
	d.changed = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.changed = nil
		d.mu.Unlock()
	}, nil
}

func (d *fakeDocument) fire(id string) bool {
	d.mu.Lock()
	fn := d.changed
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(id)
	return true
}

type fakeRecorder struct {
	mu    sync.Mutex
	types []string
}

func (r *fakeRecorder) Record(eventType string, data map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

func screen(id string, index int, classes ...string) Screen {
	return Screen{
		ID:              id,
		ClassName:       strings.Join(classes, " "),
		Classes:         classes,
		HasLayoutParent: true,
		Display:         "block",
		Visibility:      "visible",
		Index:           index,
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.HighlightDuration = 100 * time.Millisecond
	opts.CallTimeout = time.Second
	return opts
}

func newTestConsole(t *testing.T, facade Facade, doc Document) (*Console, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	c := New(facade, doc, zerolog.New(buf), testOptions())
	t.Cleanup(c.Close)
	return c, buf
}

func TestListAllScreensActiveFlag(t *testing.T) {
	doc := newFakeDocument(
		screen("home", 0, "screen"),
		screen("menu", 1, "screen", "active"),
		screen("about", 2, "screen", "inactive"),
	)
	c, buf := newTestConsole(t, nil, doc)

	reports, err := c.ListAllScreens(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 3)

	for i, r := range reports {
		assert.Equal(t, i+1, r.Position)
		assert.Equal(t, doc.screens[i].HasClass("active"), r.Active, r.ID)
	}
	assert.False(t, reports[2].Active, "class names containing the word must not count")
	assert.Contains(t, buf.String(), "Screens found")
}

func TestListAllScreensVisibility(t *testing.T) {
	hidden := screen("hidden", 0, "screen")
	hidden.Display = "none"
	invisible := screen("invisible", 1, "screen")
	invisible.Visibility = "hidden"
	doc := newFakeDocument(hidden, invisible, screen("shown", 2, "screen"))
	c, _ := newTestConsole(t, nil, doc)

	reports, err := c.ListAllScreens(context.Background())
	require.NoError(t, err)
	assert.False(t, reports[0].Visible)
	assert.False(t, reports[1].Visible)
	assert.True(t, reports[2].Visible)
}

func TestRawTextMatchesCompare(t *testing.T) {
	active := screen("menu", 1, "screen", "active")
	doc := newFakeDocument(screen("home", 0, "screen"), active)
	svc := &fakeService{
		active: &active,
		texts: map[string]string{
			"home": "Welcome home",
			"menu": strings.Repeat("Menu item. ", 20),
		},
	}
	c, _ := newTestConsole(t, &fakeFacade{svc: svc}, doc)

	raw, found, err := c.ShowRawText(context.Background())
	require.NoError(t, err)
	require.True(t, found)

	rows, err := c.CompareAllScreens(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, raw, rows[1].Text)
	assert.True(t, rows[1].Active)
	assert.False(t, rows[0].Active)
	assert.Equal(t, "Welcome home...", rows[0].Prefix)
	assert.Equal(t, truncate(raw, 80)+"...", rows[1].Prefix)
	assert.Equal(t, 1, svc.extractCount("home"), "one extraction per screen")
}

func TestShowRawTextNoActiveScreen(t *testing.T) {
	c, buf := newTestConsole(t, &fakeFacade{svc: &fakeService{}}, newFakeDocument())

	text, found, err := c.ShowRawText(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, text)
	assert.Contains(t, buf.String(), "No active screen found")
}

func TestHighlightRestoresOriginalBorder(t *testing.T) {
	active := screen("menu", 0, "screen", "active")
	doc := newFakeDocument(active)
	doc.borders["menu"] = "1px solid red"
	c, _ := newTestConsole(t, &fakeFacade{svc: &fakeService{active: &active}}, doc)

	got, err := c.ShowActiveScreen(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "3px solid #ff4081", doc.border("menu"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitRestored(ctx))
	assert.Equal(t, "1px solid red", doc.border("menu"))
}

func TestOverlappingHighlightsSameScreen(t *testing.T) {
	active := screen("menu", 0, "screen", "active")
	doc := newFakeDocument(active)
	doc.borders["menu"] = "1px solid red"
	c, _ := newTestConsole(t, &fakeFacade{svc: &fakeService{active: &active}}, doc)

	for i := 0; i < 3; i++ {
		_, err := c.ShowActiveScreen(context.Background())
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitRestored(ctx))
	assert.Equal(t, "1px solid red", doc.border("menu"))
}

func TestOverlappingHighlightFailureRestoresBorder(t *testing.T) {
	active := screen("menu", 0, "screen", "active")
	doc := newFakeDocument(active)
	doc.borders["menu"] = "1px solid red"
	doc.failSet = 2
	doc.setErr = errors.New("transport hiccup")
	c, _ := newTestConsole(t, &fakeFacade{svc: &fakeService{active: &active}}, doc)

	_, err := c.ShowActiveScreen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3px solid #ff4081", doc.border("menu"))

	_, err = c.ShowActiveScreen(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport hiccup")

	// The first highlight is undone right away instead of being orphaned.
	assert.Equal(t, "1px solid red", doc.border("menu"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitRestored(ctx))
	assert.Equal(t, "1px solid red", doc.border("menu"))
}

func TestOverlappingHighlightsDifferentScreens(t *testing.T) {
	first := screen("home", 0, "screen", "active")
	second := screen("menu", 1, "screen", "active")
	doc := newFakeDocument(first, second)
	doc.borders["home"] = "1px dashed blue"
	svc := &fakeService{active: &first}
	c, _ := newTestConsole(t, &fakeFacade{svc: svc}, doc)

	_, err := c.ShowActiveScreen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3px solid #ff4081", doc.border("home"))

	svc.active = &second
	_, err = c.ShowActiveScreen(context.Background())
	require.NoError(t, err)

	// The first screen is restored as soon as the second is highlighted.
	assert.Equal(t, "1px dashed blue", doc.border("home"))
	assert.Equal(t, "3px solid #ff4081", doc.border("menu"))

	c.Close()
	assert.Equal(t, "", doc.border("menu"))
}

func TestCloseRestoresImmediately(t *testing.T) {
	active := screen("menu", 0, "screen", "active")
	doc := newFakeDocument(active)
	doc.borders["menu"] = "2px solid green"
	buf := &syncBuffer{}
	opts := testOptions()
	opts.HighlightDuration = time.Hour
	c := New(&fakeFacade{svc: &fakeService{active: &active}}, doc, zerolog.New(buf), opts)

	_, err := c.ShowActiveScreen(context.Background())
	require.NoError(t, err)

	c.Close()
	assert.Equal(t, "2px solid green", doc.border("menu"))
	require.NoError(t, c.WaitRestored(context.Background()))
}

func TestShowActiveScreenNone(t *testing.T) {
	c, buf := newTestConsole(t, &fakeFacade{svc: &fakeService{}}, newFakeDocument())

	got, err := c.ShowActiveScreen(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Contains(t, buf.String(), "No active screen found")
}

func TestShowContentPreview(t *testing.T) {
	svc := &fakeService{summary: &Summary{
		ContentLength: 42,
		Preview:       "Hello there",
		Extra:         map[string]interface{}{"sections": float64(2)},
	}}
	rec := &fakeRecorder{}
	c, buf := newTestConsole(t, &fakeFacade{svc: svc}, newFakeDocument())
	c.SetRecorder(rec)

	summary, err := c.ShowContentPreview(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 42, summary.ContentLength)

	out := buf.String()
	assert.Contains(t, out, "Content summary")
	assert.Contains(t, out, "Hello there")
	assert.Equal(t, []string{"diag.content_preview"}, rec.types)
}

func TestShowContentPreviewMissing(t *testing.T) {
	c, buf := newTestConsole(t, &fakeFacade{svc: &fakeService{}}, newFakeDocument())

	summary, err := c.ShowContentPreview(context.Background())
	require.NoError(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, buf.String(), "No content summary available")
}

func TestNotInitializedLogsOnce(t *testing.T) {
	tests := []struct {
		name   string
		facade Facade
	}{
		{"nil facade", nil},
		{"missing service", &fakeFacade{}},
		{"facade reports not initialized", &fakeFacade{initErr: ErrNotInitialized}},
	}

	calls := map[string]func(c *Console) error{
		"active": func(c *Console) error {
			_, err := c.ShowActiveScreen(context.Background())
			return err
		},
		"preview": func(c *Console) error {
			_, err := c.ShowContentPreview(context.Background())
			return err
		},
		"read": func(c *Console) error {
			return c.TestRead(context.Background(), "")
		},
		"raw": func(c *Console) error {
			_, _, err := c.ShowRawText(context.Background())
			return err
		},
		"compare": func(c *Console) error {
			_, err := c.CompareAllScreens(context.Background())
			return err
		},
		"stats": func(c *Console) error {
			_, err := c.ShowStats(context.Background())
			return err
		},
	}

	for _, tt := range tests {
		for name, call := range calls {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				c, buf := newTestConsole(t, tt.facade, newFakeDocument(screen("home", 0, "screen")))

				require.NoError(t, call(c))
				assert.Equal(t, 1, strings.Count(buf.String(), "TTS UI not initialized"))
			})
		}
	}
}

func TestServiceTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	c, _ := newTestConsole(t, &fakeFacade{initErr: boom}, newFakeDocument())

	_, err := c.ShowStats(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestTestScreenByIDMissing(t *testing.T) {
	svc := &fakeService{texts: map[string]string{"home": "hi"}}
	c, buf := newTestConsole(t, &fakeFacade{svc: svc}, newFakeDocument(screen("home", 0, "screen")))

	require.NoError(t, c.TestScreenByID(context.Background(), "missing", "en"))

	assert.Contains(t, buf.String(), "Screen not found")
	assert.Zero(t, svc.extractCount("missing"))
	assert.Empty(t, svc.spokenTexts())
}

func TestTestScreenByIDEmptyText(t *testing.T) {
	svc := &fakeService{texts: map[string]string{}}
	c, buf := newTestConsole(t, &fakeFacade{svc: svc}, newFakeDocument(screen("blank", 0, "screen")))

	require.NoError(t, c.TestScreenByID(context.Background(), "blank", ""))

	assert.Equal(t, 1, svc.extractCount("blank"))
	assert.Empty(t, svc.spokenTexts())
	assert.Contains(t, buf.String(), "No readable text on screen")
}

func TestTestScreenByIDSpeaks(t *testing.T) {
	svc := &fakeService{texts: map[string]string{"home": "Welcome"}}
	c, _ := newTestConsole(t, &fakeFacade{svc: svc}, newFakeDocument(screen("home", 0, "screen")))

	require.NoError(t, c.TestScreenByID(context.Background(), "home", ""))
	assert.Equal(t, []string{"en:Welcome"}, svc.spokenTexts())

	require.NoError(t, c.TestScreenByID(context.Background(), "home", "de"))
	assert.Equal(t, []string{"en:Welcome", "de:Welcome"}, svc.spokenTexts())
}

func TestTestScreenByIDCancelled(t *testing.T) {
	svc := &fakeService{
		texts: map[string]string{"home": "Welcome"},
		speak: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	c, _ := newTestConsole(t, &fakeFacade{svc: svc}, newFakeDocument(screen("home", 0, "screen")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.TestScreenByID(ctx, "home", "en")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTestReadCancelled(t *testing.T) {
	active := screen("home", 0, "screen", "active")
	facade := &fakeFacade{
		svc: &fakeService{active: &active, summary: &Summary{Preview: "hi"}},
		read: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	c, _ := newTestConsole(t, facade, newFakeDocument(active))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.TestRead(ctx, "en") }()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("TestRead did not return after cancellation")
	}
}

func TestTestReadRunsInspections(t *testing.T) {
	active := screen("home", 0, "screen", "active")
	facade := &fakeFacade{svc: &fakeService{active: &active, summary: &Summary{Preview: "hi"}}}
	c, buf := newTestConsole(t, facade, newFakeDocument(active))

	require.NoError(t, c.TestRead(context.Background(), ""))

	out := buf.String()
	activeAt := strings.Index(out, "Active screen")
	preview := strings.Index(out, "Content summary")
	done := strings.Index(out, "Read finished")
	require.True(t, activeAt >= 0 && preview >= 0 && done >= 0, out)
	assert.Less(t, activeAt, preview)
	assert.Less(t, preview, done)
	assert.Equal(t, 1, facade.reads)
}

func TestShowStats(t *testing.T) {
	svc := &fakeService{
		summary: &Summary{ContentLength: 12},
		state:   &ServiceState{CurrentScreenID: "menu", IsSpeaking: true, PipelineCacheSize: 3},
	}
	c, _ := newTestConsole(t, &fakeFacade{svc: svc, lang: "es"}, newFakeDocument())

	stats, err := c.ShowStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Stats{
		CurrentScreenID:   "menu",
		ContentLength:     12,
		IsSpeaking:        true,
		Language:          "es",
		PipelineCacheSize: 3,
	}, stats)
}

func TestStartMonitoring(t *testing.T) {
	svc := &fakeService{summary: &Summary{Preview: "new screen"}}
	doc := newFakeDocument()
	rec := &fakeRecorder{}
	c, buf := newTestConsole(t, &fakeFacade{svc: svc}, doc)
	c.SetRecorder(rec)

	unsub, err := c.StartMonitoring(context.Background())
	require.NoError(t, err)

	require.True(t, doc.fire("settings"))
	out := buf.String()
	assert.Contains(t, out, "Screen changed")
	assert.Contains(t, out, "settings")
	assert.Contains(t, out, "new screen")
	assert.Equal(t, []string{"diag.screen_changed", "diag.content_preview"}, rec.types)

	unsub()
	assert.False(t, doc.fire("home"), "handler must be removed")
}

func TestShortcutMatches(t *testing.T) {
	tests := []struct {
		name string
		ev   KeyEvent
		want bool
	}{
		{"ctrl shift D", KeyEvent{Key: "D", Ctrl: true, Shift: true}, true},
		{"meta shift D", KeyEvent{Key: "D", Meta: true, Shift: true}, true},
		{"ctrl meta shift D", KeyEvent{Key: "D", Ctrl: true, Meta: true, Shift: true}, true},
		{"lowercase d", KeyEvent{Key: "d", Ctrl: true, Shift: true}, false},
		{"no shift", KeyEvent{Key: "D", Ctrl: true}, false},
		{"no modifier", KeyEvent{Key: "D", Shift: true}, false},
		{"other key", KeyEvent{Key: "E", Ctrl: true, Shift: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShortcutMatches(tt.ev))
		})
	}
}

func TestHandleKeyPreventsDefaultFirst(t *testing.T) {
	active := screen("home", 0, "screen", "active")
	svc := &fakeService{
		active:  &active,
		summary: &Summary{Preview: "hi"},
		state:   &ServiceState{},
	}
	c, buf := newTestConsole(t, &fakeFacade{svc: svc}, newFakeDocument(active))

	var before string
	prevented := false
	handled := c.HandleKey(context.Background(), KeyEvent{
		Key:   "D",
		Ctrl:  true,
		Shift: true,
		PreventDefault: func() {
			prevented = true
			before = buf.String()
		},
	})

	require.True(t, handled)
	assert.True(t, prevented)
	assert.Empty(t, before, "nothing may be logged before the default is prevented")

	out := buf.String()
	stats := strings.Index(out, "TTS stats")
	activeAt := strings.Index(out, "Active screen")
	preview := strings.Index(out, "Content summary")
	require.True(t, stats >= 0 && activeAt >= 0 && preview >= 0, out)
	assert.Less(t, stats, activeAt)
	assert.Less(t, activeAt, preview)
}

func TestHandleKeyIgnoresOtherKeys(t *testing.T) {
	c, buf := newTestConsole(t, &fakeFacade{svc: &fakeService{}}, newFakeDocument())

	called := false
	handled := c.HandleKey(context.Background(), KeyEvent{
		Key:            "D",
		Ctrl:           true,
		PreventDefault: func() { called = true },
	})

	assert.False(t, handled)
	assert.False(t, called)
	assert.Empty(t, buf.String())
}

type fakeKeySource struct {
	fn func(KeyEvent)
}

func (s *fakeKeySource) OnShortcut(ctx context.Context, fn func(KeyEvent)) (Unsubscribe, error) {
	s.fn = fn
	return func() { s.fn = nil }, nil
}

func TestBindShortcut(t *testing.T) {
	svc := &fakeService{state: &ServiceState{CurrentScreenID: "home"}}
	src := &fakeKeySource{}
	c, buf := newTestConsole(t, &fakeFacade{svc: svc}, newFakeDocument())

	unsub, err := c.BindShortcut(context.Background(), src)
	require.NoError(t, err)
	require.NotNil(t, src.fn)

	src.fn(KeyEvent{Key: "D", Meta: true, Shift: true})
	assert.Contains(t, buf.String(), "TTS stats")

	unsub()
	assert.Nil(t, src.fn)
}

func TestSummaryFromMap(t *testing.T) {
	assert.Nil(t, SummaryFromMap(nil))

	s := SummaryFromMap(map[string]interface{}{
		"contentLength": float64(120),
		"preview":       "Intro text",
		"headings":      []interface{}{"A", "B"},
	})
	require.NotNil(t, s)
	assert.Equal(t, 120, s.ContentLength)
	assert.Equal(t, "Intro text", s.Preview)
	assert.Equal(t, map[string]interface{}{"headings": []interface{}{"A", "B"}}, s.Extra)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", truncate("héllo", 4))
	assert.Equal(t, "hi", truncate("hi", 80))
	assert.Equal(t, "abc", truncate("abc", 0))
}
