package report

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
	"github.com/harborview/dealscope/pkg/logger"
	"github.com/harborview/dealscope/pkg/pathutil"
)

//go:embed templates/*.html
var templateFS embed.FS

// HTMLGenerator renders a completed run as a styled HTML document.
type HTMLGenerator struct {
	logger logger.Logger
	tmpl   *template.Template
}

// NewHTMLGenerator creates a new HTML report generator.
func NewHTMLGenerator(log logger.Logger) (*HTMLGenerator, error) {
	g := &HTMLGenerator{logger: log}

	tmpl, err := template.New("report").Funcs(g.templateFuncs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	g.tmpl = tmpl
	return g, nil
}

// TemplateData holds all data for the report template.
type TemplateData struct {
	GeneratedAt time.Time
	Engagement  models.Engagement
	Report      *schema.ReportResult
	Interview   *schema.InterviewPrepResult
	Findings    *models.AggregatedFindings
	RunID       string
	State       models.WorkflowState
}

// Generate renders the run and writes it to outputPath.
func (g *HTMLGenerator) Generate(snap *models.WorkflowSnapshot, outputPath string) (err error) {
	validPath, err := pathutil.ValidateOutputPath(outputPath)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	rep, err := ReportFromSnapshot(snap)
	if err != nil {
		return err
	}
	prep, err := InterviewFromSnapshot(snap)
	if err != nil {
		return err
	}

	data := &TemplateData{
		GeneratedAt: time.Now(),
		Engagement:  snap.Engagement,
		Report:      rep,
		Interview:   prep,
		Findings:    snap.Findings,
		RunID:       snap.RunID,
		State:       snap.State,
	}

	if err = os.MkdirAll(filepath.Dir(validPath), 0750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	file, err := os.Create(validPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output file: %w", cerr)
		}
	}()

	if err := g.tmpl.ExecuteTemplate(file, "report.html", data); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}

	g.logger.Info("Generated HTML report", "path", outputPath)
	return nil
}

// templateFuncs returns custom template functions.
func (g *HTMLGenerator) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"severityClass": func(severity string) string {
			return fmt.Sprintf("severity-%s", severity)
		},
		"severityIcon": func(severity string) string {
			switch severity {
			case models.SeverityCritical:
				return "🔴"
			case models.SeverityHigh:
				return "🟠"
			case models.SeverityMedium:
				return "🟡"
			case models.SeverityLow:
				return "🔵"
			default:
				return "⚪"
			}
		},
		"money": formatMoney,
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"title": cases.Title(language.English).String,
		"join":  strings.Join,
		"add": func(a, b int) int {
			return a + b
		},
	}
}
