package cli

import (
	"fmt"
	"os"
	"strings"

	"richsync/internal/change"
	"richsync/internal/markup"
	"richsync/internal/sanitize"

	"github.com/spf13/cobra"
)

func newSanitizer(app *App) *sanitize.Sanitizer {
	return sanitize.New(sanitize.Options{
		Capabilities: app.cfg.Capabilities,
		MaxBytes:     app.cfg.MaxDocumentBytes,
	})
}

func newSanitizeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize [file|-]",
		Short: "Print HTML as it would be allowed into the rich editor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, args)
			if err != nil {
				return writeErr(cmd, err)
			}
			out, err := newSanitizer(app).Sanitize(in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}
}

func newConvertCmd(app *App) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "convert [file|-]",
		Short: "Convert between DocumentText and editor HTML",
		Long: strings.TrimSpace(`
Convert DocumentText to the HTML the rich editor is given (--to doc), or
editor HTML back to DocumentText (--to text). Both directions go through the
sanitizer, the same way a widget does.
`),
		Example: strings.TrimSpace(`
echo '# hi *there*' | richsync convert --to doc --format text -
richsync --dialect html convert --to doc page.html
`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, args)
			if err != nil {
				return writeErr(cmd, err)
			}
			codec, err := markup.FromConfig(app.cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			san := newSanitizer(app)

			var out string
			switch strings.ToLower(strings.TrimSpace(to)) {
			case "doc":
				html, err := codec.ToDoc(in)
				if err != nil {
					return writeErr(cmd, err)
				}
				out, err = san.Sanitize(html)
				if err != nil {
					return writeErr(cmd, err)
				}
			case "text":
				clean, err := san.Sanitize(in)
				if err != nil {
					return writeErr(cmd, err)
				}
				out, err = codec.ToText(clean)
				if err != nil {
					return writeErr(cmd, err)
				}
			default:
				return writeErr(cmd, fmt.Errorf("convert: invalid --to %q (expected text|doc)", to))
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}

	cmd.Flags().StringVar(&to, "to", "doc", "Target form (text|doc)")
	return cmd
}

func newDiffCmd(app *App) *cobra.Command {
	var inline bool

	cmd := &cobra.Command{
		Use:   "diff A B",
		Short: "Report whether two texts differ in a way a widget would act on",
		Long: strings.TrimSpace(`
Compare two DocumentTexts (or editor HTML) after normalization. Leading
zero-width markers, empty paragraphs and extra blank lines do not count as
changes.
`),
		Example: strings.TrimSpace(`
richsync diff before.md after.md
richsync diff --inline '<p>a</p><p><br></p>' '<p>a</p>'
`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b := args[0], args[1]
			if !inline {
				ab, err := os.ReadFile(a)
				if err != nil {
					return writeErr(cmd, err)
				}
				bb, err := os.ReadFile(b)
				if err != nil {
					return writeErr(cmd, err)
				}
				a, b = string(ab), string(bb)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{
				"meaningful": change.IsMeaningfullyDifferent(a, b),
				"a":          change.Normalize(a),
				"b":          change.Normalize(b),
			}})
		},
	}

	cmd.Flags().BoolVar(&inline, "inline", false, "Treat A and B as the texts themselves instead of file paths")
	return cmd
}
