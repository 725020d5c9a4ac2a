package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TargetTypePage is the CDP target type for browser pages.
const TargetTypePage = "page"

// Tab represents a Chrome tab/target discovered via CDP.
type Tab struct {
	TargetID string
	Type     string
	Title    string
	URL      string
}

// BrowserInfo holds information about the connected Chrome instance.
type BrowserInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// targetJSON represents one entry of the /json endpoint.
type targetJSON struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func (t targetJSON) tab() *Tab {
	return &Tab{
		TargetID: t.ID,
		Type:     t.Type,
		Title:    t.Title,
		URL:      t.URL,
	}
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

func endpoint(port, path string) string {
	return fmt.Sprintf("http://localhost:%s%s", port, path)
}

// call issues a request against the debugging endpoint and decodes the JSON
// reply into out when out is non-nil.
func call(ctx context.Context, method, port, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint(port, path), nil)
	if err != nil {
		return err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Chrome on port %s: %w", port, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// DiscoverBrowserInfo queries the /json/version endpoint to get browser info.
func DiscoverBrowserInfo(ctx context.Context, port string) (*BrowserInfo, error) {
	var info BrowserInfo
	if err := call(ctx, http.MethodGet, port, "/json/version", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DiscoverTabs queries the /json endpoint and returns the page targets.
func DiscoverTabs(ctx context.Context, port string) ([]*Tab, error) {
	var targets []targetJSON
	if err := call(ctx, http.MethodGet, port, "/json", &targets); err != nil {
		return nil, err
	}

	var tabs []*Tab
	for _, target := range targets {
		if target.Type == TargetTypePage {
			tabs = append(tabs, target.tab())
		}
	}
	return tabs, nil
}

// SelectTab returns the first tab whose URL contains match, or the first tab
// when match is empty. Nil means nothing matched.
func SelectTab(tabs []*Tab, match string) *Tab {
	for _, tab := range tabs {
		if match == "" || strings.Contains(tab.URL, match) {
			return tab
		}
	}
	return nil
}

// WaitForChrome waits for both the /json/version endpoint and at least one
// page target.
func WaitForChrome(ctx context.Context, port string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	versionReady := false
	for {
		if !versionReady {
			versionReady = call(ctx, http.MethodGet, port, "/json/version", nil) == nil
		}
		if versionReady {
			tabs, err := DiscoverTabs(ctx, port)
			if err == nil && len(tabs) > 0 {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if !versionReady {
				return fmt.Errorf("chrome not available on port %s after %v", port, timeout)
			}
			return fmt.Errorf("chrome available but no page targets after %v", timeout)
		case <-ticker.C:
		}
	}
}

// OpenNewTab opens a new tab in Chrome using the HTTP debugging API.
func OpenNewTab(ctx context.Context, port, targetURL string) (*Tab, error) {
	var target targetJSON
	if err := call(ctx, http.MethodPut, port, "/json/new?"+url.QueryEscape(targetURL), &target); err != nil {
		return nil, err
	}
	return target.tab(), nil
}

// CloseTab closes a Chrome tab using the HTTP debugging API.
func CloseTab(ctx context.Context, port, targetID string) error {
	return call(ctx, http.MethodPut, port, "/json/close/"+targetID, nil)
}
