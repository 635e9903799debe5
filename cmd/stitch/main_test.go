package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// (module (func (export "add") (param i32 i32) (result i32)
//
//	local.get 0 local.get 1 i32.add))
var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "dev")
}

func TestCompileCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "add.wasm")
	require.NoError(t, os.WriteFile(path, addWasm, 0o600))

	out, err := runCmd(t, "compile", "--no-color", path)
	require.NoError(t, err)
	require.Contains(t, out, "func[0]")
	require.Contains(t, out, "i32.add")
}

func TestCompileCommand_badInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wasm")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o600))
	_, err := runCmd(t, "compile", path)
	require.Error(t, err)
}

func TestCompileCommand_configFile(t *testing.T) {
	dir := t.TempDir()
	wasmPath := filepath.Join(dir, "add.wasm")
	require.NoError(t, os.WriteFile(wasmPath, addWasm, 0o600))
	cfgPath := filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("threading = \"token\"\nintercept = true\n"), 0o600))

	out, err := runCmd(t, "compile", "--no-color", "--config", cfgPath, wasmPath)
	require.NoError(t, err)
	require.Contains(t, out, "on_enter")
	require.Contains(t, out, "on_exit")
}
