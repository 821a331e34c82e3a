// Package config provides configuration loading and validation for an FDD
// engagement run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harborview/dealscope/internal/finance"
	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/pkg/pathutil"
)

// Config is the complete configuration for one engagement run.
type Config struct {
	Engagement EngagementConfig  `yaml:"engagement"`
	Documents  []DocumentConfig  `yaml:"documents"`
	Driver     DriverConfig      `yaml:"driver,omitempty"`
	Analysis   AnalysisConfig    `yaml:"analysis,omitempty"`
	Stages     map[string]string `yaml:"stages,omitempty"`
	DataDir    string            `yaml:"data_dir,omitempty"`
}

// EngagementConfig identifies the deal under diligence.
type EngagementConfig struct {
	CompanyName     string  `yaml:"company_name"`
	Industry        string  `yaml:"industry,omitempty"`
	TargetCloseDate string  `yaml:"target_close_date,omitempty"`
	TeamLead        string  `yaml:"team_lead,omitempty"`
	Analyst         string  `yaml:"analyst,omitempty"`
	DealValueMM     float64 `yaml:"deal_value_mm,omitempty"`
}

// DocumentConfig references one data room document.
type DocumentConfig struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source,omitempty"`
}

// DriverConfig selects and tunes the stage invocation driver.
type DriverConfig struct {
	Name     string         `yaml:"name,omitempty"`
	Settings map[string]any `yaml:"settings,omitempty"`
	Timeout  Duration       `yaml:"timeout,omitempty"`
}

// Duration parses Go duration strings ("5m", "90s") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AnalysisConfig carries policy knobs for derivation and validation.
type AnalysisConfig struct {
	// Thresholds override the default variance severity bands.
	Thresholds *finance.Thresholds `yaml:"variance_thresholds,omitempty"`

	// EBITDAMultiple expresses adjustment impact at the deal multiple.
	EBITDAMultiple float64 `yaml:"ebitda_multiple,omitempty"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	validPath, err := pathutil.ValidateConfigPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(validPath) //nolint:gosec // Path is validated above
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures the configuration can drive a run.
func (c *Config) Validate() error {
	if c.Engagement.CompanyName == "" {
		return fmt.Errorf("engagement.company_name is required")
	}
	if len(c.Documents) == 0 {
		return fmt.Errorf("at least one document must be configured")
	}
	for i, doc := range c.Documents {
		if doc.Name == "" {
			return fmt.Errorf("documents[%d].name is required", i)
		}
	}

	if c.Engagement.TargetCloseDate != "" {
		if _, err := time.Parse("2006-01-02", c.Engagement.TargetCloseDate); err != nil {
			return fmt.Errorf("invalid date format for engagement.target_close_date: %w", err)
		}
	}

	if c.Analysis.Thresholds != nil && !c.Analysis.Thresholds.Valid() {
		return fmt.Errorf("analysis.variance_thresholds must be descending positive bands")
	}
	if c.Analysis.EBITDAMultiple < 0 {
		return fmt.Errorf("analysis.ebitda_multiple must not be negative")
	}

	if c.Driver.Timeout < 0 {
		return fmt.Errorf("driver.timeout must not be negative")
	}
	// Zero timeout means the orchestrator default applies.

	for name := range c.Stages {
		if !knownStage(name) {
			return fmt.Errorf("stages.%s does not name a pipeline stage", name)
		}
	}

	return nil
}

func knownStage(name string) bool {
	for _, stage := range models.Stages() {
		if string(stage) == name {
			return true
		}
	}
	return false
}

// ToEngagement builds the engagement model from the configuration.
func (c *Config) ToEngagement() models.Engagement {
	eng := models.NewEngagement(c.Engagement.CompanyName, c.Engagement.Industry)
	eng.TargetCloseDate = c.Engagement.TargetCloseDate
	eng.TeamLead = c.Engagement.TeamLead
	eng.Analyst = c.Engagement.Analyst
	eng.DealValueMM = c.Engagement.DealValueMM
	for _, doc := range c.Documents {
		eng.Documents = append(eng.Documents, models.DocumentRef{Name: doc.Name, Source: doc.Source})
	}
	return *eng
}

// Thresholds returns the configured severity thresholds, or the defaults.
func (c *Config) Thresholds() finance.Thresholds {
	if c.Analysis.Thresholds != nil {
		return *c.Analysis.Thresholds
	}
	return finance.DefaultThresholds
}

// DriverName returns the configured driver, defaulting to the CLI driver.
func (c *Config) DriverName() string {
	if c.Driver.Name != "" {
		return c.Driver.Name
	}
	return "claude-cli"
}

// StageID maps a pipeline stage to its capability identifier, defaulting to
// the stage name.
func (c *Config) StageID(stage models.Stage) string {
	if id, ok := c.Stages[string(stage)]; ok && id != "" {
		return id
	}
	return string(stage)
}

// StageIDs returns the full stage-to-capability map for the orchestrator.
func (c *Config) StageIDs() map[models.Stage]string {
	ids := make(map[models.Stage]string, len(models.InvokedStages()))
	for _, stage := range models.InvokedStages() {
		ids[stage] = c.StageID(stage)
	}
	return ids
}
