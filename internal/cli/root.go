package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"richsync/internal/config"
	"richsync/internal/format"
	"richsync/internal/store"

	"github.com/spf13/cobra"
)

type App struct {
	PrettyJSON bool
	Format     string
	LogLevel   string
	Dialect    string

	cfg config.Config
	log *slog.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "richsync",
		Short:        "Keep rich-text editors and their plain-text fields in sync",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Edit a markdown file with a live rich preview
  richsync edit notes.md

  # Serve the browser editor backed by the local database
  richsync web --addr 127.0.0.1:3336

  # Scriptable conversions
  echo '# hi' | richsync convert --to doc -
  richsync diff before.md after.md
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return writeErr(cmd, err)
		}
		if v := strings.ToLower(strings.TrimSpace(app.Dialect)); v != "" {
			cfg.Dialect = v
		}
		if v := strings.ToLower(strings.TrimSpace(app.LogLevel)); v != "" {
			cfg.LogLevel = v
		}
		if err := cfg.Validate(); err != nil {
			return writeErr(cmd, err)
		}
		logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
		if err != nil {
			return writeErr(cmd, err)
		}
		app.cfg = cfg
		app.log = logger
		return nil
	}

	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("RICHSYNC_FORMAT", "json"), "Output format (json|edn|text)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level (debug|info|warn|error; default from config)")
	cmd.PersistentFlags().StringVar(&app.Dialect, "dialect", "", "DocumentText dialect (markdown|html; default from config)")

	cmd.AddCommand(newSanitizeCmd(app))
	cmd.AddCommand(newConvertCmd(app))
	cmd.AddCommand(newDiffCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDocumentsCmd(app))
	cmd.AddCommand(newEventsCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newWebCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if strings.TrimSpace(level) != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", level)
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func openStore(ctx context.Context, app *App) (*store.Store, error) {
	return store.Open(ctx, app.cfg.DBPath)
}

// readInput reads a file argument, or stdin for "-" or no argument.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(args[0])
	return string(b), err
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
