package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var flavourFormat string

// flavourCmd represents the flavour command
var flavourCmd = &cobra.Command{
	Use:   "flavour",
	Short: "Print the constants the config header defines for a flavour",
	Long: `Flavour expands the configured config header with the flavour macro set and
prints every integer constant it defines. These are the values available
to templates through flavour_const.

Examples:
  stubgen flavour
  stubgen flavour -f OAK2 --format json
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		p, err := loadProject(rootDir, flavourFlag, logger)
		if err != nil {
			return err
		}
		return runFlavour(ctx, p, flavourFormat, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(flavourCmd)
	flavourCmd.Flags().StringVar(&flavourFormat, "format", "text", "output format (text, json or yaml)")
}

func runFlavour(ctx context.Context, p *project, format string, out io.Writer) error {
	flavour, err := p.flavour()
	if err != nil {
		return err
	}
	x, loader, err := p.newExtractor()
	if err != nil {
		return err
	}
	defer loader.Close()

	constants, err := x.ResolveFlavour(ctx, flavour)
	if err != nil {
		return err
	}

	if format != "text" {
		if format != "json" && format != "yaml" {
			return ErrUnknownFormat
		}
		return writeDump(out, format, map[string]any{
			"flavour":   string(flavour),
			"constants": constants,
		})
	}

	fmt.Fprintf(out, "# %s\n", flavour)
	for _, name := range sortedKeys(constants) {
		fmt.Fprintf(out, "%s = %d\n", name, constants[name])
	}
	return nil
}
