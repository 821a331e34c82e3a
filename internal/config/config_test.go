package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview/dealscope/internal/finance"
	"github.com/harborview/dealscope/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engagement.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
engagement:
  company_name: Acme Industrial Holdings
  industry: Industrial Manufacturing
  target_close_date: "2026-11-15"
  team_lead: J. Moreno
  analyst: T. Okafor
  deal_value_mm: 85

documents:
  - name: Trial Balance FY2024
    source: upload
  - name: Audited Financials FY2023-FY2025
    source: "vdr:intralinks"

driver:
  name: mock
  timeout: 5m
  settings:
    model: sonnet

analysis:
  ebitda_multiple: 8
  variance_thresholds:
    critical: 0.25
    high: 0.12
    medium: 0.06

stages:
  fdd_coordinator: agent-fdd-coord-7c1
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "Acme Industrial Holdings", cfg.Engagement.CompanyName)
	assert.Len(t, cfg.Documents, 2)
	assert.Equal(t, "mock", cfg.DriverName())
	assert.Equal(t, 5*time.Minute, cfg.Driver.Timeout.Std())
	assert.InDelta(t, 8.0, cfg.Analysis.EBITDAMultiple, 1e-9)

	thresholds := cfg.Thresholds()
	assert.InDelta(t, 0.25, thresholds.Critical, 1e-9)

	assert.Equal(t, "agent-fdd-coord-7c1", cfg.StageID(models.StageCoordinator))
	assert.Equal(t, string(models.StageReport), cfg.StageID(models.StageReport))

	ids := cfg.StageIDs()
	assert.Equal(t, "agent-fdd-coord-7c1", ids[models.StageCoordinator])
	assert.Len(t, ids, len(models.InvokedStages()))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsNonYAMLPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engagement.txt")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "missing company name",
			mutate:  func(c *Config) { c.Engagement.CompanyName = "" },
			wantErr: "company_name",
		},
		{
			name:    "no documents",
			mutate:  func(c *Config) { c.Documents = nil },
			wantErr: "document",
		},
		{
			name:    "unnamed document",
			mutate:  func(c *Config) { c.Documents = []DocumentConfig{{Source: "upload"}} },
			wantErr: "documents[0].name",
		},
		{
			name:    "bad close date",
			mutate:  func(c *Config) { c.Engagement.TargetCloseDate = "November 15" },
			wantErr: "target_close_date",
		},
		{
			name: "inverted thresholds",
			mutate: func(c *Config) {
				c.Analysis.Thresholds = &finance.Thresholds{Critical: 0.05, High: 0.10, Medium: 0.20}
			},
			wantErr: "variance_thresholds",
		},
		{
			name:    "negative multiple",
			mutate:  func(c *Config) { c.Analysis.EBITDAMultiple = -1 },
			wantErr: "ebitda_multiple",
		},
		{
			name:    "unknown stage name",
			mutate:  func(c *Config) { c.Stages = map[string]string{"market_sizing": "agent-x"} },
			wantErr: "pipeline stage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Engagement: EngagementConfig{CompanyName: "Acme"},
				Documents:  []DocumentConfig{{Name: "Trial Balance FY2024"}},
			}
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToEngagement(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	eng := cfg.ToEngagement()
	require.NoError(t, eng.Validate())
	assert.NotEmpty(t, eng.ID)
	assert.Equal(t, "Industrial Manufacturing", eng.Industry)
	assert.Equal(t, "vdr:intralinks", eng.Documents[1].Source)
	assert.InDelta(t, 85.0, eng.DealValueMM, 1e-9)
}

func TestDefaultsWhenUnset(t *testing.T) {
	cfg := Config{
		Engagement: EngagementConfig{CompanyName: "Acme"},
		Documents:  []DocumentConfig{{Name: "Trial Balance FY2024"}},
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "claude-cli", cfg.DriverName())
	assert.Equal(t, finance.DefaultThresholds, cfg.Thresholds())
}
