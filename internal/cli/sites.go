package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mvp-joe/stubgen/internal/sites"
	"github.com/spf13/cobra"
)

var sitesMarker string

// sitesCmd represents the sites command
var sitesCmd = &cobra.Command{
	Use:   "sites FILE...",
	Short: "List the marker call sites in source files",
	Long: `Sites parses source files without preprocessing them and lists every
marker call with its line, column and first argument. Markers inside
preprocessor conditions are listed regardless of flavour.

Examples:
  stubgen sites src/pyunrealsdk/logging.cpp
  stubgen sites --marker CLASS src/unreal_bindings/*.cpp
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		p, err := loadProject(rootDir, "", logger)
		if err != nil {
			return err
		}
		return runSites(ctx, p, args, sitesMarker, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
	sitesCmd.Flags().StringVar(&sitesMarker, "marker", "", "only list this marker, e.g. CLASS or FUNC_N")
}

func runSites(ctx context.Context, p *project, files []string, marker string, out io.Writer) error {
	locator := sites.New(p.cfg.Source.MarkerPrefix)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, file := range files {
		found, err := locator.ScanFile(ctx, file)
		if err != nil {
			return err
		}
		if marker != "" {
			found = sites.Find(found, marker, "")
		}
		for _, s := range found {
			fmt.Fprintf(tw, "%s:%d:%d\t%s\t%s\n", file, s.Line, s.Column, s.Marker, s.FirstArg)
		}
	}
	return tw.Flush()
}
