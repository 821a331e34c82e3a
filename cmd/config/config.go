// Package config implements the config command for validating engagement
// configuration files.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/harborview/dealscope/internal/config"
)

// Run executes the config command.
func Run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("subcommand required: validate")
	}

	subcommand := args[0]
	subArgs := args[1:]

	switch subcommand {
	case "validate":
		return runValidate(subArgs)
	default:
		return fmt.Errorf("unknown subcommand: %s", subcommand)
	}
}

func runValidate(args []string) error {
	var configFile string

	fs := flag.NewFlagSet("config validate", flag.ExitOnError)
	fs.StringVar(&configFile, "config", "", "Configuration file to validate (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dealscope config validate [options]

Validate a dealscope engagement configuration file.

Options:`)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, `
Examples:
  dealscope config validate --config engagement-acme.yaml`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if configFile == "" {
		return fmt.Errorf("--config flag is required")
	}

	//nolint:forbidigo
	fmt.Printf("🔍 Validating configuration: %s\n\n", configFile)

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	thresholds := cfg.Thresholds()

	//nolint:forbidigo
	fmt.Printf(`✅ Configuration is valid

Engagement:
  Company:            %s
  Industry:           %s
  Target close date:  %s
  Documents:          %d

Driver:
  Name:               %s
  Stage timeout:      %s

Analysis:
  Variance bands:     critical ≥ %.0f%%, high ≥ %.0f%%, medium ≥ %.0f%%
`,
		cfg.Engagement.CompanyName,
		valueOr(cfg.Engagement.Industry, "(unset)"),
		valueOr(cfg.Engagement.TargetCloseDate, "(unset)"),
		len(cfg.Documents),
		cfg.DriverName(),
		timeoutString(cfg),
		thresholds.Critical*100,
		thresholds.High*100,
		thresholds.Medium*100,
	)
	return nil
}

func timeoutString(cfg *config.Config) string {
	if cfg.Driver.Timeout.Std() <= 0 {
		return "(default)"
	}
	return cfg.Driver.Timeout.Std().String()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
