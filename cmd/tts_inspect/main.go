// tts_inspect inspects the text-to-speech state of a web app running in
// Chrome: which screen is active, what would be read, and what the speech
// service is doing.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajsharma/tts_inspect/internal/config"
)

var (
	cfg        = config.DefaultConfig()
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "tts_inspect",
	Short: "Inspect the TTS state of a web app over the DevTools Protocol",
	Long: `tts_inspect attaches to a Chrome tab running a text-to-speech enabled app
and reports which screen is active, what text would be read, and the state
of the speech service.

Example:
  # Connect to existing Chrome (must be started with --remote-debugging-port=9222)
  tts_inspect stats --url-match localhost:3000

  # Try it against the built-in demo app
  tts_inspect monitor --launch --demo

  # Compare the readable text of every screen and keep a report
  tts_inspect compare --record ./reports`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&configPath, "config", "", "YAML config file; flags override its values")

	// Connection flags
	flags.StringVarP(&cfg.ChromePort, "port", "p", cfg.ChromePort, "Chrome remote debugging port")
	flags.BoolVar(&cfg.AutoLaunch, "launch", cfg.AutoLaunch, "Auto-launch Chrome with debugging enabled")
	flags.BoolVar(&cfg.Demo, "demo", cfg.Demo, "Open and inspect the built-in demo app")
	flags.StringVar(&cfg.URLMatch, "url-match", cfg.URLMatch, "Attach to the first tab whose URL contains this")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout for connecting and for each page call; speech waits until it finishes")

	// Page contract flags
	flags.StringVar(&cfg.FacadeExpr, "facade", cfg.FacadeExpr, "JavaScript expression for the TTS UI object")
	flags.StringVar(&cfg.ServiceField, "service-field", cfg.ServiceField, "Field of the TTS UI object holding the service")
	flags.StringVar(&cfg.ScreenSelector, "selector", cfg.ScreenSelector, "CSS selector matching screen elements")
	flags.StringVar(&cfg.ActiveClass, "active-class", cfg.ActiveClass, "Class marking the active screen")
	flags.StringVar(&cfg.ScreenChangedEvent, "event", cfg.ScreenChangedEvent, "Window event fired on screen changes")
	flags.StringVar(&cfg.Language, "lang", cfg.Language, "Language for test reads")

	// Recording flags
	flags.StringVar(&cfg.RecordDir, "record", cfg.RecordDir, "Write JSONL reports under this directory")
	flags.BoolVar(&cfg.Redact, "redact", cfg.Redact, "Redact sensitive values in logs and reports")

	// Logging flags
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (trace, debug, info, warn, error)")
	flags.BoolVar(&cfg.JSONLogs, "json-logs", cfg.JSONLogs, "Log JSON lines instead of console output")

	rootCmd.Version = config.Version

	rootCmd.AddCommand(
		activeCmd,
		previewCmd,
		screensCmd,
		readCmd,
		rawCmd,
		compareCmd,
		screenCmd,
		statsCmd,
		monitorCmd,
	)
}

// setup loads the config file, re-applies explicitly set flags on top of it,
// validates the result and configures logging.
func setup(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		if err := loadConfig(cmd.Flags(), configPath); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(os.Stderr)
	return nil
}

func loadConfig(flags *pflag.FlagSet, path string) error {
	loaded, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}

	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	*cfg = *loaded
	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("re-apply --%s: %w", name, err)
		}
	}
	return nil
}

func setupLogging(out io.Writer) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	w := out
	if !cfg.JSONLogs {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
