package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ajsharma/tts_inspect/internal/browser"
	"github.com/ajsharma/tts_inspect/internal/cdp"
	"github.com/ajsharma/tts_inspect/internal/config"
	"github.com/ajsharma/tts_inspect/internal/diag"
	"github.com/ajsharma/tts_inspect/internal/logger"
	"github.com/ajsharma/tts_inspect/internal/monitor"
	"github.com/ajsharma/tts_inspect/internal/redact"
)

// inspection is everything a command needs once attached to a tab.
type inspection struct {
	console *diag.Console
	doc     *browser.Document
	bridge  *monitor.Bridge
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "Show and briefly highlight the active screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd.Context(), false, func(ctx context.Context, in *inspection) error {
			if _, err := in.console.ShowActiveScreen(ctx); err != nil {
				return err
			}
			// Keep the session until the highlight has been undone.
			return in.console.WaitRestored(ctx)
		})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the content summary of the active screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd.Context(), false, func(ctx context.Context, in *inspection) error {
			_, err := in.console.ShowContentPreview(ctx)
			return err
		})
	},
}

var screensCmd = &cobra.Command{
	Use:   "screens",
	Short: "List every screen with its active and visible flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd.Context(), false, func(ctx context.Context, in *inspection) error {
			_, err := in.console.ListAllScreens(ctx)
			return err
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the current screen aloud through the app",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd.Context(), false, func(ctx context.Context, in *inspection) error {
			return in.console.TestRead(ctx, cfg.Language)
		})
	},
}

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Print the full readable text of the active screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd.Context(), false, func(ctx context.Context, in *inspection) error {
			_, _, err := in.console.ShowRawText(ctx)
			return err
		})
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the readable text of every screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd.Context(), false, func(ctx context.Context, in *inspection) error {
			_, err := in.console.CompareAllScreens(ctx)
			return err
		})
	},
}

var screenCmd = &cobra.Command{
	Use:   "screen ID",
	Short: "Extract and speak the text of one screen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd.Context(), false, func(ctx context.Context, in *inspection) error {
			return in.console.TestScreenByID(ctx, args[0], cfg.Language)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the speech service state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd.Context(), false, func(ctx context.Context, in *inspection) error {
			_, err := in.console.ShowStats(ctx)
			return err
		})
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow screen changes and answer Ctrl/Cmd+Shift+D in the page",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConsole(cmd.Context(), true, func(ctx context.Context, in *inspection) error {
			stopScreens, err := in.console.StartMonitoring(ctx)
			if err != nil {
				return err
			}
			defer stopScreens()

			stopShortcut, err := in.console.BindShortcut(ctx, in.doc)
			if err != nil {
				return err
			}
			defer stopShortcut()

			select {
			case <-ctx.Done():
				log.Info().Msg("Received shutdown signal...")
			case <-in.bridge.Done():
				log.Warn().Msg("Tab went away")
			}
			return nil
		})
	},
}

// withConsole attaches to the configured tab, wires the console and runs fn.
// SIGINT and SIGTERM cancel the context passed to fn.
func withConsole(parent context.Context, echo bool, fn func(ctx context.Context, in *inspection) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug().
		Str("version", config.Version).
		Str("port", cfg.ChromePort).
		Bool("launch", cfg.AutoLaunch).
		Msg("tts_inspect starting")

	redactor, err := redact.NewFromRules(cfg.Redact, cfg.RedactFields, cfg.RedactPatterns)
	if err != nil {
		return err
	}

	session := cdp.NewSession(cfg)
	defer session.Close()
	if err := session.Open(ctx); err != nil {
		return err
	}

	targetCtx := session.TargetContext()
	page := browser.NewPage(targetCtx, cfg.Timeout)
	scripts := browser.NewScripts(cfg)
	bridge := monitor.NewBridge(targetCtx, log.Logger, echo)
	doc := browser.NewDocument(page, scripts, bridge)

	console := diag.New(
		browser.NewFacade(page, scripts),
		doc,
		log.Logger,
		consoleOptions(cfg),
	)
	defer console.Close()
	console.SetRedactor(redactor)

	if title, err := page.Title(ctx); err == nil {
		log.Info().Str("title", title).Msg("Inspecting page")
	}

	if cfg.RecordDir != "" {
		pageURL, err := page.URL(ctx)
		if err != nil {
			pageURL = session.Tab().URL
		}
		rec, err := logger.NewRecorder(cfg, session.Tab().TargetID, pageURL)
		if err != nil {
			return fmt.Errorf("failed to open report file: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing report file")
			}
		}()
		console.SetRecorder(rec)
		bridge.SetRecorder(rec)
		log.Info().Str("path", rec.Path()).Str("session", rec.SessionID()).Msg("Recording reports")
	}

	return fn(ctx, &inspection{
		console: console,
		doc:     doc,
		bridge:  bridge,
	})
}

func consoleOptions(c *config.Config) diag.Options {
	opts := diag.DefaultOptions()
	opts.ActiveClass = c.ActiveClass
	opts.HighlightBorder = c.HighlightBorder
	opts.HighlightDuration = c.HighlightDuration
	opts.PreviewLength = c.PreviewLength
	opts.CompareLength = c.CompareLength
	opts.Language = c.Language
	opts.CallTimeout = c.Timeout
	return opts
}
