package browser

import (
	"encoding/json"
	"fmt"

	"github.com/ajsharma/tts_inspect/internal/config"
	"github.com/ajsharma/tts_inspect/internal/diag"
	"github.com/ajsharma/tts_inspect/internal/monitor"
)

// Binding names exposed to the page.
const (
	ScreenChangedBinding = "__ttsInspectScreen"
	ShortcutBinding      = "__ttsInspectShortcut"
)

// prelude resolves the façade and service and defines element helpers.
// Placeholders: %[1]s façade expression, %[2]s service field, %[3]s selector,
// %[4]s body.
const prelude = `(async () => {
  const facade = (() => { try { return %[1]s; } catch (e) { return undefined; } })();
  const service = facade ? facade[%[2]s] : undefined;
  const all = () => Array.from(document.querySelectorAll(%[3]s));
  const describe = (el) => {
    if (!el) return null;
    const style = getComputedStyle(el);
    const cls = typeof el.className === 'string' ? el.className : (el.getAttribute('class') || '');
    return {
      id: el.id || '',
      className: cls,
      classes: Array.from(el.classList),
      hasLayoutParent: el.offsetParent !== null,
      display: style.display,
      visibility: style.visibility,
      index: all().indexOf(el),
    };
  };
  const locate = (ref) => {
    if (ref.index >= 0) {
      const el = all()[ref.index];
      if (el && (el.id || '') === ref.id) return el;
    }
    return ref.id ? document.getElementById(ref.id) : null;
  };
%[4]s
})()`

const requireService = `  if (!facade || !service) return { initialized: false };
`

// Scripts builds the page scripts for one page contract.
type Scripts struct {
	facade       string
	serviceField string
	selector     string
	event        string
}

// NewScripts creates scripts for the façade, selector and event in cfg.
func NewScripts(cfg *config.Config) *Scripts {
	return &Scripts{
		facade:       cfg.FacadeExpr,
		serviceField: cfg.ServiceField,
		selector:     cfg.ScreenSelector,
		event:        cfg.ScreenChangedEvent,
	}
}

func (s *Scripts) wrap(body string) string {
	return fmt.Sprintf(prelude, s.facade, jsString(s.serviceField), jsString(s.selector), body)
}

// ServiceCheck reports whether façade and service are present.
func (s *Scripts) ServiceCheck() string {
	return s.wrap(`  return { initialized: !!(facade && service) };`)
}

// ActiveScreen describes service.getActiveScreen().
func (s *Scripts) ActiveScreen() string {
	return s.wrap(requireService + `  return { initialized: true, screen: describe(service.getActiveScreen()) };`)
}

// Summary returns service.getCurrentScreenSummary() as plain data.
func (s *Scripts) Summary() string {
	return s.wrap(requireService + `  const summary = service.getCurrentScreenSummary();
  return { initialized: true, summary: summary == null ? null : JSON.parse(JSON.stringify(summary)) };`)
}

// ExtractText runs service.extractReadableText on the referenced screen.
func (s *Scripts) ExtractText(screen diag.Screen) string {
	return s.wrap(requireService + fmt.Sprintf(`  const el = locate(%s);
  if (!el) return { initialized: true, found: false };
  const text = service.extractReadableText(el);
  return { initialized: true, found: true, text: text == null ? '' : String(text) };`, screenRef(screen)))
}

// Speak awaits service.speak(text, language).
func (s *Scripts) Speak(text, language string) string {
	return s.wrap(requireService + fmt.Sprintf(`  await service.speak(%s, %s);
  return { initialized: true };`, jsString(text), jsString(language)))
}

// State reads the service's current screen, speaking flag and cache size.
func (s *Scripts) State() string {
	return s.wrap(requireService + `  const cache = service.pipelineCache;
  let size = 0;
  if (cache) {
    size = typeof cache.size === 'number' ? cache.size
      : typeof cache.length === 'number' ? cache.length
      : Object.keys(cache).length;
  }
  return {
    initialized: true,
    state: {
      currentScreenId: service.currentScreenId == null ? '' : String(service.currentScreenId),
      isSpeaking: !!service.isSpeaking,
      pipelineCacheSize: size,
    },
  };`)
}

// Language reads the façade's language setting.
func (s *Scripts) Language() string {
	return s.wrap(`  if (!facade) return { initialized: false };
  return { initialized: true, language: facade.language == null ? '' : String(facade.language) };`)
}

// TestCurrentScreen awaits facade.testCurrentScreen().
func (s *Scripts) TestCurrentScreen() string {
	return s.wrap(`  if (!facade) return { initialized: false };
  await facade.testCurrentScreen();
  return { initialized: true };`)
}

// Screens describes every element matching the screen selector.
func (s *Scripts) Screens() string {
	return s.wrap(`  return { screens: all().map(describe) };`)
}

// ScreenByID describes the element with the given id, if any.
func (s *Scripts) ScreenByID(id string) string {
	return s.wrap(fmt.Sprintf(`  return { screen: describe(document.getElementById(%s)) };`, jsString(id)))
}

// Border reads the inline border of the referenced screen.
func (s *Scripts) Border(screen diag.Screen) string {
	return s.wrap(fmt.Sprintf(`  const el = locate(%s);
  if (!el) return { found: false };
  return { found: true, border: el.style.border };`, screenRef(screen)))
}

// SetBorder writes the inline border of the referenced screen.
func (s *Scripts) SetBorder(screen diag.Screen, value string) string {
	return s.wrap(fmt.Sprintf(`  const el = locate(%s);
  if (!el) return { found: false };
  el.style.border = %s;
  return { found: true };`, screenRef(screen), jsString(value)))
}

// listenerScript registers fn under window.__ttsInspect[name] on target.
func listenerScript(name, target, eventName, fn string) monitor.Binding {
	key := jsString(name)
	install := fmt.Sprintf(`(() => {
  const reg = window.__ttsInspect = window.__ttsInspect || {};
  if (reg[%[1]s]) return;
  reg[%[1]s] = %[4]s;
  %[2]s.addEventListener(%[3]s, reg[%[1]s]);
})()`, key, target, jsString(eventName), fn)
	teardown := fmt.Sprintf(`(() => {
  const reg = window.__ttsInspect || {};
  if (!reg[%[1]s]) return;
  %[2]s.removeEventListener(%[3]s, reg[%[1]s]);
  delete reg[%[1]s];
})()`, key, target, jsString(eventName))

	return monitor.Binding{Name: name, Install: install, Teardown: teardown}
}

// ScreenChanged forwards the screen-changed event's screen id.
func (s *Scripts) ScreenChanged() monitor.Binding {
	fn := fmt.Sprintf(`(e) => {
    const d = (e && e.detail) || {};
    const id = d.screenId != null ? d.screenId : (d.id != null ? d.id : '');
    window[%s](JSON.stringify({ screenId: String(id) }));
  }`, jsString(ScreenChangedBinding))
	return listenerScript(ScreenChangedBinding, "window", s.event, fn)
}

// Shortcut forwards Ctrl/Cmd+Shift+D, preventing the browser default first.
func (s *Scripts) Shortcut() monitor.Binding {
	fn := fmt.Sprintf(`(e) => {
    if (!(e.shiftKey && (e.ctrlKey || e.metaKey) && e.key === %s)) return;
    e.preventDefault();
    window[%s](JSON.stringify({ key: e.key, ctrlKey: e.ctrlKey, metaKey: e.metaKey, shiftKey: e.shiftKey }));
  }`, jsString(diag.ShortcutKey), jsString(ShortcutBinding))
	return listenerScript(ShortcutBinding, "document", "keydown", fn)
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func screenRef(screen diag.Screen) string {
	return fmt.Sprintf(`{ id: %s, index: %d }`, jsString(screen.ID), screen.Index)
}
