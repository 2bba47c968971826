package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mvp-joe/stubgen/internal/builder"
	"github.com/mvp-joe/stubgen/internal/config"
	"github.com/mvp-joe/stubgen/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for CLI commands:
// - loadProject reads .stubgen/config.yml and applies --flavour
// - extract dumps the merged dict as JSON or YAML and rejects other formats
// - extract surfaces builder errors
// - flavour prints the resolved constants
// - sites lists marker call sites, optionally filtered by marker
// - generate renders the templates for the selected flavour
// - generate --watch regenerates after a source change and stops on cancel
// - printError shows hints under the message
// - the version command prints through cobra

const projectDir = "testdata/project"

func testProject(t *testing.T, flavour string) *project {
	t.Helper()
	p, err := loadProject(projectDir, flavour, nil)
	require.NoError(t, err)
	return p
}

func source(parts ...string) string {
	return filepath.Join(append([]string{projectDir, "native", "src"}, parts...)...)
}

func TestLoadProject(t *testing.T) {
	t.Parallel()

	p := testProject(t, "")
	assert.True(t, filepath.IsAbs(p.root))
	assert.Equal(t, "OAK", p.cfg.Flavour)
	assert.Equal(t, 16, p.cfg.Cache.Capacity)

	// Test: --flavour is case-insensitive and validated
	p = testProject(t, "willow")
	flavour, err := p.flavour()
	require.NoError(t, err)
	assert.Equal(t, "WILLOW", string(flavour))

	_, err = loadProject(projectDir, "OAK3", nil)
	assert.ErrorIs(t, err, config.ErrInvalidFlavour)
}

func TestRunExtract_JSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := runExtract(context.Background(), testProject(t, ""),
		[]string{source("widget.cpp"), source("helpers.cpp")}, "json", &out)
	require.NoError(t, err)

	var dump struct {
		Flavour   string           `json:"flavour"`
		Constants map[string]int64 `json:"constants"`
		Symbols   []struct {
			Name   string         `json:"name"`
			Type   string         `json:"type"`
			Record map[string]any `json:"record"`
		} `json:"symbols"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &dump))

	assert.Equal(t, "OAK", dump.Flavour)
	assert.Equal(t, int64(2), dump.Constants["UNREALSDK_FLAVOUR"])
	require.Len(t, dump.Symbols, 3)

	var names, types []string
	for _, s := range dump.Symbols {
		names = append(names, s.Name)
		types = append(types, s.Type)
	}
	assert.Equal(t, []string{"pkg", "pkg.Widget", "pkg.native_helper"}, names)
	assert.Equal(t, []string{"module", "class", "function"}, types)
	assert.Equal(t, "native_helper", dump.Symbols[2].Record["name"])
}

func TestRunExtract_YAML(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := runExtract(context.Background(), testProject(t, "WILLOW"),
		[]string{source("helpers.cpp")}, "yaml", &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "flavour: WILLOW\n")
	assert.Contains(t, out.String(), "- name: pkg.emulated_helper\n")
	assert.Contains(t, out.String(), "kind: function\n")
}

func TestRunExtract_Errors(t *testing.T) {
	t.Parallel()

	err := runExtract(context.Background(), testProject(t, ""), []string{source("widget.cpp")}, "xml", io.Discard)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	err = runExtract(context.Background(), testProject(t, ""), []string{source("broken", "orphan.cpp")}, "json", io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, builder.ErrInvalidContext))
}

func TestRunFlavour(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, runFlavour(context.Background(), testProject(t, "oak2"), "text", &out))

	assert.True(t, strings.HasPrefix(out.String(), "# OAK2\n"))
	assert.Contains(t, out.String(), "UNREALSDK_FLAVOUR = 3\n")
	assert.Contains(t, out.String(), "UNREALSDK_HAS_NATIVE_WEAK_POINTERS = 1\n")

	out.Reset()
	require.NoError(t, runFlavour(context.Background(), testProject(t, "WILLOW"), "json", &out))
	var dump struct {
		Flavour   string           `json:"flavour"`
		Constants map[string]int64 `json:"constants"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &dump))
	assert.Equal(t, "WILLOW", dump.Flavour)
	assert.Equal(t, int64(0), dump.Constants["UNREALSDK_HAS_NATIVE_WEAK_POINTERS"])

	assert.ErrorIs(t, runFlavour(context.Background(), testProject(t, ""), "toml", io.Discard), ErrUnknownFormat)
}

func TestRunSites(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	file := source("helpers.cpp")
	require.NoError(t, runSites(context.Background(), testProject(t, ""), []string{file}, "FUNC", &out))

	// Test: both branches of the conditional are listed
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], file+":7:")
	assert.Contains(t, lines[0], `"native_helper"`)
	assert.Contains(t, lines[1], file+":9:")
	assert.Contains(t, lines[1], `"emulated_helper"`)

	err := runSites(context.Background(), testProject(t, ""), []string{source("missing.cpp")}, "", io.Discard)
	assert.Error(t, err)
}

func TestRunGenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		flavour string
		want    []string
	}{
		{flavour: "", want: []string{"# flavour: OAK (2)\n", "\"native_helper\",\n", "class Widget", "def native_helper"}},
		{flavour: "WILLOW", want: []string{"# flavour: WILLOW (1)\n", "def emulated_helper"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run("flavour="+tt.flavour, func(t *testing.T) {
			t.Parallel()
			outDir := t.TempDir()
			var out bytes.Buffer
			err := runGenerate(context.Background(), testProject(t, tt.flavour), generateOptions{outDir: outDir}, &out)
			require.NoError(t, err)

			data, err := os.ReadFile(filepath.Join(outDir, "pkg", "__init__.pyi"))
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, string(data), want)
			}
			assert.Contains(t, out.String(), "✓ Wrote 1 stubs to "+outDir)
		})
	}
}

func TestRunGenerate_UnconsumedRecords(t *testing.T) {
	t.Parallel()

	root := copyProject(t)
	tmpl := filepath.Join(root, "templates", "pkg", "__init__.pyi.tmpl")
	require.NoError(t, os.WriteFile(tmpl, []byte(`{{ declare "pkg.Widget" }}`), 0o644))

	p, err := loadProject(root, "", nil)
	require.NoError(t, err)
	err = runGenerate(context.Background(), p, generateOptions{quiet: true}, io.Discard)
	assert.ErrorIs(t, err, render.ErrUnconsumed)
}

func TestRunGenerate_Watch(t *testing.T) {
	t.Parallel()

	root := copyProject(t)
	p, err := loadProject(root, "", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runGenerate(ctx, p, generateOptions{quiet: true, watch: true}, io.Discard)
	}()

	stub := filepath.Join(root, "stubs", "pkg", "__init__.pyi")
	require.Eventually(t, func() bool {
		_, err := os.Stat(stub)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	// Test: a new function in a source file shows up in the stub
	extra := `#include "pyunrealsdk/stubgen.h"

void register_extra(py::module_& mod) {
    PYUNREALSDK_STUBGEN_MODULE_N("pkg")
    mod.def(PYUNREALSDK_STUBGEN_FUNC("late_helper", "None"), &late_helper);
}
`
	// The watcher may still be starting, so the file is rewritten on every
	// tick until a rebuild picks it up.
	extraPath := filepath.Join(root, "native", "src", "extra.cpp")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(stub)
		if err == nil && strings.Contains(string(data), "def late_helper") {
			return true
		}
		_ = os.WriteFile(extraPath, []byte(extra), 0o644)
		return false
	}, 15*time.Second, time.Second)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch mode did not stop after cancel")
	}
}

func TestPrintError(t *testing.T) {
	t.Parallel()

	err := errors.WithHint(errors.New("boom"), "try again\nslowly")
	var out bytes.Buffer
	printError(&out, err)
	assert.Equal(t, "Error: boom\n  hint: try again\n  slowly\n", out.String())
}

func TestVersionCommand(t *testing.T) {
	// Note: Cannot use t.Parallel() because the command tree is shared
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "stubgen dev\n")
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "7", formatNumber(7))
	assert.Equal(t, "1,234", formatNumber(1234))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-1,000", formatNumber(-1000))
}

// copyProject copies the fixture project into a temp directory.
func copyProject(t *testing.T) string {
	t.Helper()
	dst := t.TempDir()
	err := filepath.WalkDir(projectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(projectDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	require.NoError(t, err)
	return dst
}
