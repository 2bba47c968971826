package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/logging"
	"github.com/spf13/cobra"
)

var (
	rootDir     string
	flavourFlag string
	verbose     bool
	logJSON     bool

	logger = logging.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stubgen",
	Short: "Generate Python type stubs from pybind annotation markers",
	Long: `stubgen reads the PYUNREALSDK_STUBGEN_* markers embedded in native
binding sources, rebuilds the Python-visible symbol tree for one build
flavour, and renders it into .pyi stubs through a directory of templates.

Configuration is read from .stubgen/config.yml in the project root, with
STUBGEN_* environment variables taking precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.New(logging.Options{Verbose: verbose, JSON: logJSON})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root containing .stubgen/ (default is the working directory)")
	rootCmd.PersistentFlags().StringVarP(&flavourFlag, "flavour", "f", "", "build flavour, overriding the configured one")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
}

// printError writes err followed by any details and hints attached to it.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	for _, detail := range errors.GetAllDetails(err) {
		fmt.Fprintf(w, "  %s\n", indentContinuation(detail))
	}
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "  hint: %s\n", indentContinuation(hint))
	}
}

func indentContinuation(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}
