package cli

import (
	"context"
	"encoding/json"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/info"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat indicates an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

var extractFormat string

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract FILE...",
	Short: "Dump the symbols extracted from source files",
	Long: `Extract runs the marker extractor and symbol tree builder over the given
source files for one flavour and prints the merged symbol dict.

Examples:
  # Dump one file as JSON
  stubgen extract src/pyunrealsdk/base_bindings.cpp

  # Dump several files for the WILLOW flavour as YAML
  stubgen extract -f WILLOW --format yaml src/unreal_bindings/*.cpp
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		p, err := loadProject(rootDir, flavourFlag, logger)
		if err != nil {
			return err
		}
		return runExtract(ctx, p, args, extractFormat, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVar(&extractFormat, "format", "json", "output format (json or yaml)")
}

// symbolDump is the serialised form of a run.
type symbolDump struct {
	Flavour   string           `json:"flavour" yaml:"flavour"`
	Constants map[string]int64 `json:"constants" yaml:"constants"`
	Symbols   []symbolEntry    `json:"symbols" yaml:"symbols"`
}

type symbolEntry struct {
	Name   string      `json:"name" yaml:"name"`
	Type   string      `json:"type" yaml:"type"`
	Record info.Record `json:"record" yaml:"record"`
}

func runExtract(ctx context.Context, p *project, files []string, format string, out io.Writer) error {
	if format != "json" && format != "yaml" {
		return errors.Wrapf(ErrUnknownFormat, "%q (use json or yaml)", format)
	}

	x, loader, err := p.newExtractor()
	if err != nil {
		return err
	}
	defer loader.Close()

	pl, err := p.newPipeline(x, nil)
	if err != nil {
		return err
	}
	result, err := pl.Run(ctx, files)
	if err != nil {
		return err
	}

	dump := symbolDump{
		Flavour:   string(result.Flavour),
		Constants: result.Constants,
		Symbols:   make([]symbolEntry, 0, len(result.Symbols)),
	}
	for _, name := range result.Symbols.Names() {
		rec := result.Symbols[name]
		dump.Symbols = append(dump.Symbols, symbolEntry{Name: name, Type: recordType(rec), Record: rec})
	}
	return writeDump(out, format, dump)
}

// recordType names the record kind in dumps.
func recordType(rec info.Record) string {
	switch r := rec.(type) {
	case *info.Module:
		return "module"
	case *info.Attribute:
		return "attribute"
	case *info.Function:
		return r.Kind.String()
	case *info.Class:
		return "class"
	case *info.Enum:
		return "enum"
	default:
		return "unknown"
	}
}

func writeDump(out io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "failed to encode yaml")
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "failed to encode json")
	}
}

// sortedKeys returns the keys of m in order.
func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
