// Package cdp finds, launches and attaches to Chrome over the DevTools Protocol.
package cdp

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ChromePathEnv overrides the Chrome executable lookup.
const ChromePathEnv = "CHROME_PATH"

// ChromeProcess represents a launched Chrome instance.
type ChromeProcess struct {
	Cmd         *exec.Cmd
	Port        string
	UserDataDir string
}

// LaunchChrome starts Chrome with remote debugging on port and a throwaway
// profile. startURL, when set, is opened as the first tab.
func LaunchChrome(port, startURL string) (*ChromeProcess, error) {
	chromePath := findChrome()
	if chromePath == "" {
		return nil, errors.New("chrome executable not found (set " + ChromePathEnv + ")")
	}

	userDataDir, err := os.MkdirTemp("", "tts_inspect_chrome_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	cmd := exec.Command(chromePath, launchArgs(port, userDataDir, startURL)...)
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(userDataDir)
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &ChromeProcess{
		Cmd:         cmd,
		Port:        port,
		UserDataDir: userDataDir,
	}, nil
}

func launchArgs(port, userDataDir, startURL string) []string {
	args := []string{
		"--remote-debugging-port=" + port,
		"--user-data-dir=" + userDataDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-features=TranslateUI",
		"--disable-background-networking",
		"--disable-sync",
		// Speech must start without a user gesture.
		"--autoplay-policy=no-user-gesture-required",
	}
	if startURL != "" {
		args = append(args, startURL)
	}
	return args
}

// Stop kills the Chrome process and removes its profile.
func (cp *ChromeProcess) Stop() error {
	if cp.Cmd != nil && cp.Cmd.Process != nil {
		if err := cp.Cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill chrome: %w", err)
		}
		_ = cp.Cmd.Wait()
	}

	if cp.UserDataDir != "" {
		_ = os.RemoveAll(cp.UserDataDir)
	}
	return nil
}

// PID returns the process ID of the Chrome instance.
func (cp *ChromeProcess) PID() int {
	if cp.Cmd != nil && cp.Cmd.Process != nil {
		return cp.Cmd.Process.Pid
	}
	return 0
}

func chromeCandidates(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			filepath.Join(os.Getenv("HOME"), "Applications/Google Chrome.app/Contents/MacOS/Google Chrome"),
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		return []string{
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("PROGRAMFILES"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("PROGRAMFILES(X86)"), "Google", "Chrome", "Application", "chrome.exe"),
		}
	}
	return nil
}

// findChrome locates the Chrome executable, honoring CHROME_PATH first.
func findChrome() string {
	if p := os.Getenv(ChromePathEnv); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	for _, path := range chromeCandidates(runtime.GOOS) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, name := range []string{"google-chrome", "chrome", "chromium"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
