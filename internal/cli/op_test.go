package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverte/equipcore/internal/registry"
	"github.com/mverte/equipcore/internal/schema"
)

// writeTestConfig writes a minimal config into dir and returns its path.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "equipcore.yaml")
	content := fmt.Sprintf("database_path: %s\n", filepath.Join(dir, "app.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}

// runCommand executes the root command with args and returns stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestOpList_GoldenCatalog(t *testing.T) {
	var buf bytes.Buffer
	renderCatalog(&buf, registry.MustNew(schema.Catalog("")))

	g := goldie.New(t)
	g.Assert(t, "op_list", buf.Bytes())
}

func TestOpExec_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	// Startup hook first.
	_, err := runCommand(t, "migrate", "--config", cfg)
	require.NoError(t, err)

	out, err := runCommand(t, "op", "exec", "equipment.create",
		"--config", cfg, "--format", "json",
		"--args", `{"name":"ladder","serial_number":"SN-1","category":"access","location":"bay 2","status":"active"}`)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	out, err = runCommand(t, "op", "exec", "equipment.count",
		"--config", cfg, "--format", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, float64(1), resp.Data)
}

func TestOpExec_RefusesUnmigratedDatabase(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	_, err := runCommand(t, "op", "exec", "equipment.list", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "equipcore migrate")
}

func TestOpExec_ValidationFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	_, err := runCommand(t, "migrate", "--config", cfg)
	require.NoError(t, err)

	out, err := runCommand(t, "op", "exec", "equipment.create",
		"--config", cfg, "--format", "json",
		"--args", `{"name":"ladder","serial_number":"SN-1","category":"access","location":"","status":"broken"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
}

func TestOpExec_UnknownOperation(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	_, err := runCommand(t, "migrate", "--config", cfg)
	require.NoError(t, err)

	out, err := runCommand(t, "op", "exec", "equipment.obliterate",
		"--config", cfg, "--format", "json")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnknownOp, resp.Error.Code)
}

func TestOpExec_RejectsBadArgsJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	_, err := runCommand(t, "op", "exec", "equipment.list",
		"--config", cfg, "--args", "{not json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestOpList_JSONFormat(t *testing.T) {
	out, err := runCommand(t, "op", "list", "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	entries, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, entries, 17)
}
