// Package main is the entry point for the dealscope CLI. Dealscope runs
// AI-assisted financial due diligence: it orchestrates the coordinator,
// interview-prep and report-generation stages for an engagement, validates
// every stage output against strict schemas, aggregates cross-functional
// risk findings, and renders the final report.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/harborview/dealscope/cmd/analyze"
	"github.com/harborview/dealscope/cmd/config"
	"github.com/harborview/dealscope/cmd/list"
	"github.com/harborview/dealscope/cmd/report"
	"github.com/harborview/dealscope/cmd/show"
	"github.com/harborview/dealscope/pkg/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Local .env holds driver credentials during development; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Global flags
	var (
		debug       bool
		logFormat   string
		showVersion bool
	)

	globalFlags := flag.NewFlagSet("dealscope", flag.ExitOnError)
	globalFlags.BoolVar(&debug, "debug", false, "Enable debug logging")
	globalFlags.StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	globalFlags.BoolVar(&showVersion, "version", false, "Show version information")

	if err := globalFlags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if showVersion {
		fmt.Printf("dealscope version %s (built %s)\n", version, buildTime) //nolint:forbidigo
		os.Exit(0)
	}

	logger.SetupLogger(debug, logFormat)

	args := globalFlags.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "analyze":
		if err := analyze.Run(commandArgs); err != nil {
			logger.Error("analysis failed", "error", err)
			os.Exit(1)
		}
	case "report":
		if err := report.Run(commandArgs); err != nil {
			logger.Error("report generation failed", "error", err)
			os.Exit(1)
		}
	case "list":
		if err := list.Run(commandArgs); err != nil {
			logger.Error("list failed", "error", err)
			os.Exit(1)
		}
	case "show":
		if err := show.Run(commandArgs); err != nil {
			logger.Error("show failed", "error", err)
			os.Exit(1)
		}
	case "config":
		if err := config.Run(commandArgs); err != nil {
			logger.Error("config validation failed", "error", err)
			os.Exit(1)
		}
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	//nolint:forbidigo
	fmt.Println(`📊 Dealscope Financial Due Diligence

Usage:
  dealscope [global flags] <command> [command flags]

Commands:
  analyze   Run the due diligence pipeline for an engagement
  report    Render a completed run as markdown, HTML or JSON
  list      List previous engagement runs
  show      Show an indexed run's findings and report figures
  config    Validate an engagement configuration
  help      Show this help message

Global Flags:
  --debug         Enable debug logging
  --log-format    Log format (text or json) (default: text)
  --version       Show version information

Examples:
  dealscope analyze --config engagement-acme.yaml
  dealscope analyze --config engagement-acme.yaml --mock
  dealscope report --run latest --format html
  dealscope list --company acme --limit 10
  dealscope show --run latest
  dealscope config validate --config engagement-acme.yaml

Use "dealscope <command> --help" for more information about a command.`)
}
