package cli

import (
	"fmt"

	"richsync/internal/publish"

	"github.com/spf13/cobra"
)

func newDocumentsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"doc"},
		Short:   "Read and write documents in the local database",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents (ordered by id)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer st.Close()
			docs, err := st.ListDocuments(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": docs})
		},
	}

	var raw bool
	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer st.Close()
			d, err := st.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if raw {
				_, err := fmt.Fprint(cmd.OutOrStdout(), d.Text)
				return err
			}
			return writeOut(cmd, app, map[string]any{"data": d})
		},
	}
	getCmd.Flags().BoolVar(&raw, "raw", false, "Print the text only (no envelope)")

	var base int64
	putCmd := &cobra.Command{
		Use:   "put <id> [file|-]",
		Short: "Store a document's text",
		Long: `Store a document's text. With --base the write only succeeds while the
stored version still equals base. Sessions of a running ` + "`richsync web`" + ` are not
notified; POST to its /docs/<id>/remote endpoint for that.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[1:])
			if err != nil {
				return writeErr(cmd, err)
			}
			st, err := openStore(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer st.Close()
			d, err := st.PutDocument(cmd.Context(), args[0], app.cfg.Dialect, text, base)
			if err != nil {
				return writeErr(cmd, err)
			}
			app.log.Debug("document stored", "id", d.ID, "version", d.Version)
			return writeOut(cmd, app, map[string]any{"data": d})
		},
	}
	putCmd.Flags().Int64Var(&base, "base", -1, "Expected current version (-1 = unconditional)")

	var toDir string
	var asHTML, overwrite bool
	publishCmd := &cobra.Command{
		Use:   "publish --to <dir>",
		Short: "Write every stored document to a directory, with a markdown index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer st.Close()
			docs, err := st.ListDocuments(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			res, err := publish.WriteDocuments(docs, toDir, publish.WriteOptions{
				HTML:      asHTML,
				Overwrite: overwrite,
				Config:    app.cfg,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": res})
		},
	}
	publishCmd.Flags().StringVar(&toDir, "to", "", "Output directory")
	publishCmd.Flags().BoolVar(&asHTML, "html", false, "Render sanitized HTML pages instead of copying the text")
	publishCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")

	cmd.AddCommand(listCmd, getCmd, putCmd, publishCmd)
	return cmd
}
