package stitch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func section(id byte, contents ...byte) []byte {
	out := []byte{id, byte(len(contents))}
	return append(out, contents...)
}

func moduleBytes(sections ...[]byte) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

func addModule() []byte {
	return moduleBytes(
		section(1, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f),
		section(3, 0x01, 0x00),
		section(7, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00),
		section(10, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b),
	)
}

func TestCompileModule(t *testing.T) {
	compiled, err := CompileModule(addModule(), &Config{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer compiled.Close()

	fns := compiled.Functions()
	require.Len(t, fns, 1)
	require.Equal(t, uint32(0), fns[0].Index)
	require.NotEmpty(t, fns[0].Instructions())
	require.Empty(t, fns[0].Constants())
	require.Positive(t, fns[0].MaxStackHeight())

	color.NoColor = true
	var sb strings.Builder
	require.NoError(t, fns[0].Dump(&sb))
	require.Contains(t, sb.String(), "i32.add")
}

func TestCompileModule_nilConfigDefaults(t *testing.T) {
	compiled, err := CompileModule(addModule(), nil)
	require.NoError(t, err)
	compiled.Close()
}

func TestCompileModule_decodeError(t *testing.T) {
	_, err := CompileModule([]byte{0xde, 0xad}, nil)
	require.Error(t, err)
}

func TestCompileModule_translationErrorDiscardsArena(t *testing.T) {
	// (func (result i32) end) -- underflows the result copy.
	input := moduleBytes(
		section(1, 0x01, 0x60, 0x00, 0x01, 0x7f),
		section(3, 0x01, 0x00),
		section(10, 0x01, 0x02, 0x00, 0x0b),
	)
	_, err := CompileModule(input, nil)
	require.ErrorContains(t, err, "function 0")
}

func TestCompileModule_validationOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidationOnly = true
	compiled, err := CompileModule(addModule(), cfg)
	require.NoError(t, err)
	compiled.Close()
}

func TestConfig_coder(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.coder()
	require.NoError(t, err)

	cfg.Threading = "direct"
	_, err = cfg.coder()
	require.ErrorContains(t, err, "handler table")

	cfg.Threading = "quantum"
	_, err = cfg.coder()
	require.ErrorContains(t, err, "unknown threading model")
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(
		"threading = \"token\"\nintercept = true\nvalidation_only = true\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.Equal(t, "token", cfg.Threading)
	require.True(t, cfg.Intercept)
	require.True(t, cfg.ValidationOnly)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
