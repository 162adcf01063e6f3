package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stockscope/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const momentumPrompt = `prompt_id: momentum
name: Momentum
version: 1
template: "Rate {{ context }} on price momentum."
`

// The stub never returns a catalyst field, so this prompt always degrades.
const catalystPrompt = `prompt_id: catalyst
name: Catalyst
version: 2
template: "Name the next catalyst for {{ ticker }}."
schema:
  type: object
  properties:
    catalyst: {type: string}
  required: [catalyst]
`

func resetGlobals() {
	runPromptsDir = ""
	runConcurrency = 0
	runJSON = false
	runStrict = false
	showJSON = false
	showRationale = false
	promptsDir = ""
}

// setupEnv points the CLI at a scratch database and prompt directory.
func setupEnv(t *testing.T, files map[string]string) string {
	t.Helper()
	resetGlobals()
	t.Cleanup(resetGlobals)

	dir := t.TempDir()
	promptDir := filepath.Join(dir, "prompts")
	require.NoError(t, os.MkdirAll(promptDir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(promptDir, name), []byte(body), 0o644))
	}

	t.Setenv("DATABASE_URL", filepath.Join(dir, "results.db"))
	t.Setenv("PROMPTS_DIR", promptDir)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("GO_ENV", "test")
	return promptDir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunRequiresTicker(t *testing.T) {
	setupEnv(t, nil)
	_, err := runCLI(t, "run")
	assert.Error(t, err)
}

func TestRunPrintsSummaryAndShowReadsItBack(t *testing.T) {
	setupEnv(t, map[string]string{"momentum.yaml": momentumPrompt})

	out, err := runCLI(t, "run", "--json", "msft")
	require.NoError(t, err)

	var runs []models.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, "MSFT", run.Ticker)
	assert.Equal(t, 1, run.PromptCount)
	assert.Zero(t, run.DegradedCount)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "momentum", run.Results[0].PromptID)

	resetGlobals()
	out, err = runCLI(t, "show", run.RunID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "MSFT")
	assert.Contains(t, out, "Momentum")
	assert.Contains(t, out, "Overall: "+string(run.OverallRating))
}

func TestRunInvalidTicker(t *testing.T) {
	setupEnv(t, map[string]string{"momentum.yaml": momentumPrompt})

	_, err := runCLI(t, "run", "not a ticker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticker must be")
}

func TestRunStrictReportsDegradedResults(t *testing.T) {
	setupEnv(t, map[string]string{
		"catalyst.yaml": catalystPrompt,
		"momentum.yaml": momentumPrompt,
	})

	out, err := runCLI(t, "run", "--strict", "AAPL")
	require.Error(t, err)
	var degraded *DegradedRunError
	require.ErrorAs(t, err, &degraded)
	assert.Equal(t, "AAPL", degraded.Ticker)
	assert.Equal(t, 1, degraded.Degraded)
	assert.Equal(t, 2, degraded.Total)
	assert.Contains(t, out, "schema_violation")

	resetGlobals()
	_, err = runCLI(t, "run", "AAPL")
	assert.NoError(t, err, "degraded results only fail the command with --strict")
}

func TestShowUnknownRun(t *testing.T) {
	setupEnv(t, nil)

	_, err := runCLI(t, "show", "not-a-uuid")
	assert.Error(t, err)

	_, err = runCLI(t, "show", "9b2f6a7e-8d2c-4d1e-9f3a-2b1c0d9e8f7a")
	assert.ErrorContains(t, err, "not found")
}

func TestPromptsListAndValidate(t *testing.T) {
	dir := setupEnv(t, map[string]string{
		"catalyst.yaml": catalystPrompt,
		"momentum.yaml": momentumPrompt,
	})

	out, err := runCLI(t, "prompts")
	require.NoError(t, err)
	assert.Contains(t, out, "catalyst")
	assert.Contains(t, out, "momentum")

	out, err = runCLI(t, "prompts", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "2 valid, 0 skipped")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "zz-broken.yaml"), []byte("prompt_id: [oops\n"), 0o644))
	out, err = runCLI(t, "prompts", "validate", "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, out, "zz-broken.yaml")
	assert.Contains(t, out, "2 valid, 1 skipped")
}
