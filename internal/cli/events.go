package cli

import (
	"github.com/spf13/cobra"
)

func newEventsCmd(app *App) *cobra.Command {
	var widget string
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded sync transitions (oldest-first)",
		Long: `List the transitions widgets recorded while running under ` + "`richsync edit`" + `
or ` + "`richsync web`" + `: one row per operation with its outcome and, for
skipped or failed operations, the reason.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer st.Close()
			recs, err := st.Transitions(cmd.Context(), widget, limit)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": recs})
		},
	}

	cmd.Flags().StringVar(&widget, "widget", "", "Only show transitions of this widget id")
	cmd.Flags().IntVar(&limit, "limit", 200, "Max transitions to return (0 = all)")
	return cmd
}
