package cli

import (
	"log/slog"
	"os"
	"strings"

	"richsync/internal/syncer"
	"richsync/internal/tui"

	"github.com/spf13/cobra"
)

func newEditCmd(app *App) *cobra.Command {
	var watch bool
	var autoSave bool
	var record bool
	var logFile string

	cmd := &cobra.Command{
		Use:   "edit [file]",
		Short: "Edit a document in the terminal",
		Long: strings.TrimSpace(`
Edit a document in the terminal: a rich pane rendering the document and a
plain pane holding its text, kept in sync. Changes other programs make to the
file are applied until you edit it yourself.

Keys: tab switches pane, ctrl+s saves, ctrl+z undoes in the rich pane, ctrl+q quits.
`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			// The terminal belongs to the editor; logs go to a file or nowhere.
			logger := slog.New(slog.DiscardHandler)
			if strings.TrimSpace(logFile) != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return writeErr(cmd, err)
				}
				defer f.Close()
				logger, err = newLogger(f, app.cfg.LogLevel)
				if err != nil {
					return writeErr(cmd, err)
				}
			}

			var rec syncer.Recorder
			if record {
				st, err := openStore(cmd.Context(), app)
				if err != nil {
					return writeErr(cmd, err)
				}
				defer st.Close()
				rec = st
			}

			return tui.Run(cmd.Context(), tui.Options{
				Path:     path,
				Config:   app.cfg,
				Watch:    watch && path != "",
				AutoSave: autoSave,
				Recorder: rec,
				Logger:   logger,
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "Apply changes other programs make to the file")
	cmd.Flags().BoolVar(&autoSave, "autosave", false, "Write the file every time the editor propagates a change")
	cmd.Flags().BoolVar(&record, "record", true, "Record transitions in the local database (see: richsync events)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Append logs to this file")
	return cmd
}
