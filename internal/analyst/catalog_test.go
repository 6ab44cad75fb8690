package analyst

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/dissent/internal/domain"
	"github.com/Harshitk-cp/dissent/internal/llm"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	roster, err := c.Roster(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"benign", "malicious", "skeptic"}, roster.Names())

	ti, ok := c.Get("threat-intel")
	require.True(t, ok)
	assert.Equal(t, 1.2, ti.Weight)
	assert.Equal(t, domain.StanceMalicious, ti.DefaultStance)
	assert.False(t, ti.Enabled)

	for _, r := range c.Roles() {
		assert.NotEmpty(t, r.EvidencePrompt, r.Name)
		assert.NotEmpty(t, r.ClaimsPrompt, r.Name)
	}
}

func TestCatalogRosterByName(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	roster, err := c.Roster([]string{"skeptic", "base-rate", "threat-intel"})
	require.NoError(t, err)
	assert.Equal(t, 3, roster.Len())

	_, err = c.Roster([]string{"benign", "forensic"})
	assert.Error(t, err)

	_, err = c.Roster([]string{"benign", "benign"})
	assert.Error(t, err)
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	yaml := `roles:
  - name: red
    default_stance: MALICIOUS_HYPOTHESIS
    enabled: true
    evidence_prompt: find it
    claims_prompt: judge it
  - name: blue
    default_stance: BENIGN_HYPOTHESIS
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	roster, err := c.Roster(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"blue", "red"}, roster.Names())

	red, _ := roster.Get("red")
	assert.Equal(t, 1.0, red.Weight)
}

func TestParseCatalogRejects(t *testing.T) {
	tests := map[string]string{
		"empty":      "roles: []",
		"bad name":   "roles:\n  - name: base_rate\n    default_stance: SKEPTICAL_HYPOTHESIS\n",
		"bad stance": "roles:\n  - name: x\n    default_stance: MAYBE\n",
		"duplicate":  "roles:\n  - name: x\n    default_stance: SKEPTICAL_HYPOTHESIS\n  - name: x\n    default_stance: SKEPTICAL_HYPOTHESIS\n",
		"not yaml":   "roles: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestBuildPanel(t *testing.T) {
	panel, err := BuildPanel(PanelConfig{Roles: []string{"skeptic", "threat-intel"}, Options: DefaultOptions()}, llm.NewMockClient(), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, panel, 2)
	assert.Equal(t, "skeptic", panel[0].Role().Name)
	assert.Equal(t, 1.2, panel[1].Role().Weight)

	_, err = BuildPanel(PanelConfig{Roles: []string{"nobody"}}, llm.NewMockClient(), zap.NewNop())
	assert.Error(t, err)

	_, err = BuildPanel(PanelConfig{RolesFile: "/does/not/exist.yaml"}, llm.NewMockClient(), zap.NewNop())
	assert.Error(t, err)
}
