package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

const incident = "Host web-01 ran powershell.exe -enc AAAA and connected to 203.0.113.7 over 443."

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// The commands share package-level flag state, so the whole workflow runs
// as one test against a single artifact directory.
func TestWorkflow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISSENT_ENV", filepath.Join(dir, "missing.env"))
	artifacts := filepath.Join(dir, "artifacts")
	global := []string{"--json", "--provider", "mock", "--artifact-dir", artifacts}

	var eventID string

	t.Run("analyze", func(t *testing.T) {
		out, err := run(t, append([]string{"analyze", "--text", incident}, global...)...)
		require.NoError(t, err)

		var result domain.AnalysisResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, domain.LabelUncertain, result.Decision.Label)
		assert.Len(t, result.Summary.Agents, 3)
		eventID = result.EventID.String()
	})
	require.NotEmpty(t, eventID)

	t.Run("events", func(t *testing.T) {
		out, err := run(t, append([]string{"events"}, global...)...)
		require.NoError(t, err)

		var list struct {
			Events []string `json:"events"`
			Total  int      `json:"total"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &list))
		assert.Equal(t, []string{eventID}, list.Events)
		assert.Equal(t, 1, list.Total)
	})

	t.Run("replay writes output file", func(t *testing.T) {
		dest := filepath.Join(dir, "replay.json")
		out, err := run(t, append([]string{"replay", eventID, "--output", dest}, global...)...)
		require.NoError(t, err)

		var result domain.ReplayResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, domain.ReplayRecomputed, result.Status)
		assert.Equal(t, domain.DeterministicPass, result.DeterministicCheck)

		_, err = os.Stat(dest)
		assert.NoError(t, err)
	})

	t.Run("validate", func(t *testing.T) {
		out, err := run(t, append([]string{"validate", eventID}, global...)...)
		require.NoError(t, err)

		var report domain.ValidationReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.True(t, report.Valid)
		assert.True(t, report.HasConvergence)
	})

	t.Run("batch reports failures", func(t *testing.T) {
		out, err := run(t, append([]string{"batch", eventID, "00000000-0000-0000-0000-000000000001"}, global...)...)
		assert.ErrorIs(t, err, errChecksFailed)

		var result domain.BatchResult
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, 2, result.TotalEvents)
		assert.Equal(t, 1, result.SuccessfulReplays)
		assert.Equal(t, 1, result.FailedReplays)
	})

	var manifest string
	t.Run("export", func(t *testing.T) {
		out, err := run(t, append([]string{"export", eventID, "--dest", filepath.Join(dir, "exports")}, global...)...)
		require.NoError(t, err)

		var res map[string]string
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		manifest = res["manifest_path"]
		assert.FileExists(t, manifest)
	})
	require.NotEmpty(t, manifest)

	t.Run("verify", func(t *testing.T) {
		out, err := run(t, append([]string{"verify", filepath.Dir(manifest)}, global...)...)
		require.NoError(t, err)

		var v domain.ExportVerification
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		assert.True(t, v.DirectoryHashOK)
		assert.True(t, v.EngineHashMatches)
		assert.Equal(t, eventID, v.EventID)
	})

	t.Run("verify detects tampering", func(t *testing.T) {
		bundle := filepath.Dir(manifest)
		require.NoError(t, os.WriteFile(filepath.Join(bundle, "incident.txt"), []byte("edited"), 0o644))

		_, err := run(t, append([]string{"verify", bundle}, global...)...)
		assert.ErrorIs(t, err, errChecksFailed)
	})
}

func TestVersion(t *testing.T) {
	t.Setenv("DISSENT_ENV", filepath.Join(t.TempDir(), "missing.env"))
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Engine Hash:")
}

func TestReadIncidentFromStdin(t *testing.T) {
	saved := analyzeFlags
	t.Cleanup(func() { analyzeFlags = saved })

	analyzeFlags.text, analyzeFlags.file = "", "-"
	text, err := readIncident(bytes.NewBufferString(incident))
	require.NoError(t, err)
	assert.Equal(t, incident, text)

	analyzeFlags.text = "inline"
	text, err = readIncident(bytes.NewBufferString(incident))
	require.NoError(t, err)
	assert.Equal(t, "inline", text)
}
