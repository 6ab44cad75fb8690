package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, "./artifacts", ArtifactDir())
	assert.Equal(t, "./exports", ExportDir())
	assert.Equal(t, []string{"benign", "malicious", "skeptic"}, AgentRoles())
	assert.Equal(t, 60*time.Second, AgentTimeout())
	assert.Equal(t, 3, MaxRetries())
	assert.Equal(t, time.Second, BackoffBase())
	assert.Equal(t, 10*time.Second, BackoffMax())
	assert.InDelta(t, 0.3, CalibrationFactor(), 1e-12)
	assert.False(t, EnableCalibration())
	assert.Equal(t, 0, RetentionDays())
	assert.Equal(t, domain.Thresholds{
		ConsensusThreshold: 0.2,
		JaccardThreshold:   0.2,
		ResidualThreshold:  0.35,
		EntropyWeight:      0.55,
		OverlapWeight:      0.30,
		ConflictWeight:     0.15,
		MinMajority:        2,
	}, ConvergenceThresholds())
}

func TestLoadReadsEnvFiles(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(env, []byte("AGENT_ROLES=benign, skeptic ,threat-intel\nLLM_PROVIDER=Anthropic\nAGENT_TIMEOUT=15s\n"), 0o644))
	require.NoError(t, os.WriteFile(env+".secret", []byte("ANTHROPIC_API_KEY=sk-test\n"), 0o644))

	t.Setenv("DISSENT_ENV", env)
	t.Setenv("RESIDUAL_DISAGREEMENT_THRESHOLD", "0.5")
	// godotenv never overrides variables that are already set; register them
	// with t.Setenv so they are cleared after the test.
	t.Setenv("AGENT_ROLES", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("AGENT_TIMEOUT", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	for _, k := range []string{"AGENT_ROLES", "LLM_PROVIDER", "AGENT_TIMEOUT", "ANTHROPIC_API_KEY"} {
		require.NoError(t, os.Unsetenv(k))
	}

	require.NoError(t, Load())
	assert.Equal(t, []string{"benign", "skeptic", "threat-intel"}, AgentRoles())
	assert.Equal(t, "anthropic", LLMProvider())
	assert.Equal(t, "sk-test", LLMAPIKey())
	assert.Equal(t, 15*time.Second, AgentTimeout())
	assert.InDelta(t, 0.5, ConvergenceThresholds().ResidualThreshold, 1e-12)
}
