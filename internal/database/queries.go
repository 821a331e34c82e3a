package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

// UpsertEngagement inserts or refreshes an engagement record.
func (db *DB) UpsertEngagement(ctx context.Context, eng models.Engagement) error {
	query := `
		INSERT INTO engagements (id, company_name, industry, target_close_date, team_lead, analyst, deal_value_mm, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_name = excluded.company_name,
			industry = excluded.industry,
			target_close_date = excluded.target_close_date,
			team_lead = excluded.team_lead,
			analyst = excluded.analyst,
			deal_value_mm = excluded.deal_value_mm
	`

	_, err := db.ExecContext(ctx, query,
		eng.ID,
		eng.CompanyName,
		eng.Industry,
		nullString(eng.TargetCloseDate),
		nullString(eng.TeamLead),
		nullString(eng.Analyst),
		eng.DealValueMM,
		eng.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting engagement: %w", err)
	}
	return nil
}

// CreateRun records a new workflow run and returns its row id.
func (db *DB) CreateRun(ctx context.Context, run *RunRow) (int64, error) {
	query := `
		INSERT INTO runs (engagement_id, run_id, run_dir, state, failed_stage, partial, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.ExecContext(ctx, query,
		run.EngagementID,
		run.RunID,
		run.RunDir,
		run.State,
		run.FailedStage,
		run.Partial,
		run.StartedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	return id, nil
}

// UpdateRunState advances a run's indexed status.
func (db *DB) UpdateRunState(ctx context.Context, runID int64, state models.WorkflowState, failedStage models.Stage, partial bool) error {
	query := `UPDATE runs SET state = ?, failed_stage = ?, partial = ?, updated_at = ? WHERE id = ?`

	result, err := db.ExecContext(ctx, query, string(state), nullString(string(failedStage)), partial, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("updating run state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun loads one run by row id.
func (db *DB) GetRun(ctx context.Context, runID int64) (*RunRow, error) {
	query := `
		SELECT id, engagement_id, run_id, run_dir, state, failed_stage, partial, started_at, updated_at
		FROM runs WHERE id = ?
	`
	run, err := db.scanRun(db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	return run, err
}

// GetRunByRunID loads one run by its workflow run identifier.
func (db *DB) GetRunByRunID(ctx context.Context, runID string) (*RunRow, error) {
	query := `
		SELECT id, engagement_id, run_id, run_dir, state, failed_stage, partial, started_at, updated_at
		FROM runs WHERE run_id = ?
	`
	run, err := db.scanRun(db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

func (db *DB) scanRun(row *sql.Row) (*RunRow, error) {
	var run RunRow
	err := row.Scan(
		&run.ID,
		&run.EngagementID,
		&run.RunID,
		&run.RunDir,
		&run.State,
		&run.FailedStage,
		&run.Partial,
		&run.StartedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs newest first, optionally filtered by engagement.
func (db *DB) ListRuns(ctx context.Context, engagementID string, limit int) ([]*RunRow, error) {
	query := `
		SELECT id, engagement_id, run_id, run_dir, state, failed_stage, partial, started_at, updated_at
		FROM runs
	`
	var args []any
	if engagementID != "" {
		query += ` WHERE engagement_id = ?`
		args = append(args, engagementID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*RunRow
	for rows.Next() {
		var run RunRow
		if err := rows.Scan(
			&run.ID,
			&run.EngagementID,
			&run.RunID,
			&run.RunDir,
			&run.State,
			&run.FailedStage,
			&run.Partial,
			&run.StartedAt,
			&run.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// ListRunSummaries returns runs joined with their engagement and finding
// counts, newest first, optionally filtered by company name.
func (db *DB) ListRunSummaries(ctx context.Context, company string, limit int) ([]RunSummary, error) {
	query := `
		SELECT r.id, r.run_id, r.run_dir, r.state, r.partial, r.started_at, r.updated_at,
			e.company_name, e.industry,
			(SELECT COUNT(*) FROM findings f WHERE f.run_id = r.id) AS red_flags
		FROM runs r
		JOIN engagements e ON e.id = r.engagement_id
	`
	var args []any
	if company != "" {
		query += ` WHERE e.company_name = ?`
		args = append(args, company)
	}
	query += ` ORDER BY r.started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing run summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(
			&s.ID,
			&s.RunID,
			&s.RunDir,
			&s.State,
			&s.Partial,
			&s.StartedAt,
			&s.UpdatedAt,
			&s.CompanyName,
			&s.Industry,
			&s.RedFlags,
		); err != nil {
			return nil, fmt.Errorf("scanning run summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ReplaceFindings replaces a run's stored findings with the given set.
// Chunked inserts keep statements under SQLite's parameter limits.
func (db *DB) ReplaceFindings(ctx context.Context, runID int64, findings []models.RiskFinding) error {
	const chunkSize = 500

	return db.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clearing findings: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO findings (run_id, finding_id, risk_type, description, severity, recommended_action, origin, affected_areas, cross_functional)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := 0; i < len(findings); i += chunkSize {
			end := i + chunkSize
			if end > len(findings) {
				end = len(findings)
			}
			for _, f := range findings[i:end] {
				areasJSON, marshalErr := json.Marshal(f.AffectedAreas)
				if marshalErr != nil {
					return fmt.Errorf("marshaling affected areas: %w", marshalErr)
				}
				if _, execErr := stmt.ExecContext(ctx,
					runID,
					f.ID,
					f.RiskType,
					f.Description,
					f.Severity,
					f.RecommendedAction,
					string(f.Origin),
					string(areasJSON),
					f.CrossFunctional(),
				); execErr != nil {
					return fmt.Errorf("inserting finding %s: %w", f.ID, execErr)
				}
			}
		}
		return nil
	})
}

// FindingsByRun loads a run's findings ordered by severity then risk type.
func (db *DB) FindingsByRun(ctx context.Context, runID int64) ([]*FindingRow, error) {
	query := `
		SELECT id, run_id, finding_id, risk_type, description, severity, recommended_action, origin, affected_areas, cross_functional, created_at
		FROM findings
		WHERE run_id = ?
		ORDER BY CASE severity
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END, risk_type
	`

	rows, err := db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var findings []*FindingRow
	for rows.Next() {
		var f FindingRow
		if err := rows.Scan(
			&f.ID,
			&f.RunID,
			&f.FindingID,
			&f.RiskType,
			&f.Description,
			&f.Severity,
			&f.RecommendedAction,
			&f.Origin,
			&f.AffectedAreas,
			&f.CrossFunctional,
			&f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning finding: %w", err)
		}
		findings = append(findings, &f)
	}
	return findings, rows.Err()
}

// SeverityRollup counts a run's findings per severity.
func (db *DB) SeverityRollup(ctx context.Context, runID int64) ([]SeverityCount, error) {
	query := `
		SELECT severity, COUNT(*) FROM findings
		WHERE run_id = ?
		GROUP BY severity
		ORDER BY CASE severity
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END
	`

	rows, err := db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying severity rollup: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []SeverityCount
	for rows.Next() {
		var c SeverityCount
		if err := rows.Scan(&c.Severity, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning severity count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// InsertReport stores a generated report against a run.
func (db *DB) InsertReport(ctx context.Context, runID int64, report *schema.ReportResult) (int64, error) {
	content, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshaling report: %w", err)
	}

	query := `
		INSERT INTO reports (run_id, report_id, report_date, overall_risk_rating, normalized_ebitda, total_price_impact, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.ExecContext(ctx, query,
		runID,
		report.ReportMetadata.ReportID,
		nullString(report.ReportMetadata.ReportDate),
		report.ExecutiveSummary.OverallRiskRating,
		report.EBITDABridge.NormalizedEBITDA,
		report.PriceAdjustments.TotalImpact,
		string(content),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	return id, nil
}

// LatestReport loads the newest report for a run and decodes its content.
func (db *DB) LatestReport(ctx context.Context, runID int64) (*schema.ReportResult, error) {
	query := `
		SELECT content FROM reports
		WHERE run_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var content string
	err := db.QueryRowContext(ctx, query, runID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report for run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading report: %w", err)
	}

	var report schema.ReportResult
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return nil, fmt.Errorf("decoding report content: %w", err)
	}
	return &report, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
