package cdp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/ajsharma/tts_inspect/internal/config"
)

// ErrNoMatchingTab is returned when no open page matches the URL filter.
var ErrNoMatchingTab = errors.New("no matching tab")

// Session is one attachment to one Chrome tab.
type Session struct {
	config        *config.Config
	chromeProcess *ChromeProcess
	tab           *Tab
	demoTargetID  string

	allocatorCancel context.CancelFunc
	browserCancel   context.CancelFunc
	targetCtx       context.Context
	targetCancel    context.CancelFunc
}

// NewSession creates a session for cfg. Nothing is connected until Open.
func NewSession(cfg *config.Config) *Session {
	return &Session{config: cfg}
}

// Open launches Chrome if requested, opens the demo page if requested,
// selects a tab and attaches to it with the Page and Runtime domains enabled.
func (s *Session) Open(ctx context.Context) error {
	port := s.config.ChromePort

	if s.config.AutoLaunch {
		var err error
		s.chromeProcess, err = LaunchChrome(port, "")
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		if err := WaitForChrome(ctx, port, s.config.Timeout); err != nil {
			_ = s.chromeProcess.Stop()
			s.chromeProcess = nil
			return fmt.Errorf("chrome not ready: %w", err)
		}
		log.Info().Int("pid", s.chromeProcess.PID()).Str("port", port).Msg("Launched Chrome")
	}

	tab, err := s.pickTab(ctx)
	if err != nil {
		return err
	}
	s.tab = tab

	info, err := DiscoverBrowserInfo(ctx, port)
	if err != nil {
		return fmt.Errorf("failed to get browser info: %w", err)
	}

	// The allocator and browser contexts outlive ctx; Close releases them.
	allocatorCtx, allocatorCancel := chromedp.NewRemoteAllocator(context.Background(), info.WebSocketDebuggerURL)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	targetCtx, targetCancel := chromedp.NewContext(browserCtx,
		chromedp.WithTargetID(target.ID(tab.TargetID)),
	)
	s.allocatorCancel = allocatorCancel
	s.browserCancel = browserCancel
	s.targetCtx = targetCtx
	s.targetCancel = targetCancel

	// Attaching must run on the chromedp contexts themselves, so ctx only
	// bounds it through cancellation.
	stop := context.AfterFunc(ctx, allocatorCancel)
	defer stop()
	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	if err := chromedp.Run(targetCtx, page.Enable(), runtime.Enable()); err != nil {
		s.Close()
		return fmt.Errorf("failed to attach to tab %s: %w", tab.TargetID, err)
	}

	log.Info().
		Str("target", tab.TargetID).
		Str("title", tab.Title).
		Str("url", tab.URL).
		Msg("Attached to tab")
	return nil
}

func (s *Session) pickTab(ctx context.Context) (*Tab, error) {
	port := s.config.ChromePort

	if s.config.Demo {
		tab, err := OpenNewTab(ctx, port, DemoPageURL())
		if err != nil {
			return nil, fmt.Errorf("failed to open demo page: %w", err)
		}
		s.demoTargetID = tab.TargetID
		log.Info().Str("target", tab.TargetID).Msg("Opened demo page")
		return tab, nil
	}

	tabs, err := DiscoverTabs(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("failed to discover tabs: %w", err)
	}
	log.Debug().Int("count", len(tabs)).Msg("Discovered tabs")

	tab := SelectTab(tabs, s.config.URLMatch)
	if tab == nil {
		if s.config.URLMatch != "" {
			return nil, fmt.Errorf("%w: no page URL contains %q", ErrNoMatchingTab, s.config.URLMatch)
		}
		return nil, fmt.Errorf("%w: chrome has no open pages", ErrNoMatchingTab)
	}
	return tab, nil
}

// TargetContext is the chromedp context of the attached tab.
func (s *Session) TargetContext() context.Context {
	return s.targetCtx
}

// Tab is the attached tab, or nil before Open.
func (s *Session) Tab() *Tab {
	return s.tab
}

// Close detaches, closes the demo tab if one was opened and stops Chrome if
// it was launched by this session.
func (s *Session) Close() {
	if s.targetCancel != nil {
		s.targetCancel()
	}
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
	}
	s.targetCancel, s.browserCancel, s.allocatorCancel = nil, nil, nil

	if s.demoTargetID != "" && s.chromeProcess == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := CloseTab(ctx, s.config.ChromePort, s.demoTargetID); err != nil {
			log.Debug().Err(err).Msg("failed to close demo tab")
		}
		cancel()
		s.demoTargetID = ""
	}

	if s.chromeProcess != nil {
		if err := s.chromeProcess.Stop(); err != nil {
			log.Warn().Err(err).Msg("Error stopping Chrome")
		}
		s.chromeProcess = nil
	}
}
