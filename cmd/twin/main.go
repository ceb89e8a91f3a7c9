// Package main provides the digital twin CLI: the HTTP server, an interactive console
// and one-shot commands for asking questions and reading stored conversations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"digitaltwin/internal/config"
	"digitaltwin/internal/logger"
	"digitaltwin/internal/repl"
	"digitaltwin/internal/server"
	"digitaltwin/internal/version"
)

var (
	logLevel  string
	logFile   string
	testMode  bool
	configDir string
	sessionID string

	versionJSON  bool
	versionCheck string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twin",
	Short: "AI digital twin backend",
	Long: `twin answers questions as a persona. Every reply is drafted by a tool-enabled agent,
checked by an evaluator model and regenerated once when it is rejected.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the twin in an interactive console",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run a single chat turn and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.ask(ctx, cmd.OutOrStdout(), args[0], sessionID)
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <session_id>",
	Short: "Print the stored conversation of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return a.history(ctx, cmd.OutOrStdout(), args[0])
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

// configFlags are bound to configuration keys and override the environment.
var configFlags = []struct {
	name, key, usage string
}{
	{"provider", "PROVIDER", "Model provider (openrouter|openai|anthropic|gemini)"},
	{"model", "MODEL_NAME", "Model used to draft and regenerate replies"},
	{"evaluator-model", "EVALUATION_MODEL_NAME", "Model used to evaluate drafts [default: --model]"},
	{"base-url", "BASE_URL", "Override the provider API base URL"},
	{"data-dir", "DATA_DIR", "Directory holding the persona sources"},
	{"storage", "STORAGE", "Conversation storage backend (local|s3|bolt|sqlite|memory)"},
	{"memory-dir", "MEMORY_DIR", "Directory for local conversation files"},
	{"listen", "LISTEN_ADDR", "HTTP listen address"},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	flags.BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode (ignores the process environment)")
	flags.StringVar(&configDir, "config-dir", "", "Directory holding the user .env file [default: ~/.config/digitaltwin]")

	for _, f := range configFlags {
		flags.String(f.name, "", f.usage)
		if err := viper.BindPFlag(f.key, flags.Lookup(f.name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", f.name, err)
			os.Exit(1)
		}
	}

	askCmd.Flags().StringVar(&sessionID, "session", "", "Continue an existing session")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print the full build report as JSON")
	versionCmd.Flags().StringVar(&versionCheck, "check", "", "Fail unless the version satisfies a constraint such as \">= 1.2\"")

	rootCmd.AddCommand(serveCmd, chatCmd, askCmd, historyCmd, versionCmd)

	// Configure logger before any command execution
	cobra.OnInitialize(initLogger)
}

func initLogger() {
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.LoadOptions{
		Viper:     viper.GetViper(),
		ConfigDir: configDir,
		TestMode:  testMode,
	})
}

// withApp wires the application, runs fn with a context cancelled on SIGINT/SIGTERM
// and releases the application afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Failed to close conversation store", "error", err)
		}
	}()

	return fn(ctx, a)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if versionCheck != "" {
		ok, err := version.Satisfies(versionCheck)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("version %s does not satisfy %s", version.GetVersion(), versionCheck)
		}
	}
	if !versionJSON {
		fmt.Fprintln(out, version.GetFormattedVersion())
		return nil
	}

	info, err := version.GetInfo()
	if err != nil {
		return err
	}
	return writeJSON(out, info)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := version.ValidateVersion(); err != nil {
		return fmt.Errorf("refusing to serve: %w", err)
	}
	if version.IsDevelopment() {
		logger.Warn("Serving a development build", "version", version.GetVersion())
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		logger.Info("Starting digital twin API", "version", version.GetVersion(), "addr", a.cfg.ListenAddr, "use_s3", a.cfg.UsesS3())
		srv := server.New(a.controller, server.Options{
			Addr:        a.cfg.ListenAddr,
			Model:       a.cfg.ModelName,
			CORSOrigins: a.cfg.CORSOrigins,
		})
		return srv.Run(ctx)
	})
}

func runChat(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		renderer := repl.NewPlainRenderer()
		if !testMode {
			r, err := repl.NewRenderer(repl.DetectStyle(), repl.DefaultWordWrap)
			if err != nil {
				logger.Warn("Falling back to plain output", "error", err)
			} else {
				renderer = r
			}
		}

		console := repl.NewConsole(a.controller, renderer, cmd.OutOrStdout(), "")
		console.Run(ctx, fmt.Sprintf("%s - digital twin of %s", version.GetFormattedVersion(), a.persona.FullName()))
		return nil
	})
}
