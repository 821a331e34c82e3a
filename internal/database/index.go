package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harborview/dealscope/internal/models"
	"github.com/harborview/dealscope/internal/schema"
)

// IndexSnapshot records a stored run snapshot in the index, inserting a new
// run row or refreshing the existing one. The filesystem snapshot is the
// source of truth; the index only accelerates listing and lookup. Returns
// the run's row id.
func (db *DB) IndexSnapshot(ctx context.Context, runDir string, snap *models.WorkflowSnapshot) (int64, error) {
	if err := db.UpsertEngagement(ctx, snap.Engagement); err != nil {
		return 0, err
	}

	partial := snap.Findings != nil && snap.Findings.Partial

	var rowID int64
	existing, err := db.GetRunByRunID(ctx, snap.RunID)
	switch {
	case err == nil:
		rowID = existing.ID
		if err := db.UpdateRunState(ctx, rowID, snap.State, snap.FailedStage, partial); err != nil {
			return 0, err
		}
	case errors.Is(err, ErrNotFound):
		rowID, err = db.CreateRun(ctx, &RunRow{
			EngagementID: snap.Engagement.ID,
			RunID:        snap.RunID,
			RunDir:       runDir,
			State:        string(snap.State),
			FailedStage:  nullString(string(snap.FailedStage)),
			Partial:      partial,
			StartedAt:    snap.Engagement.CreatedAt,
			UpdatedAt:    snap.UpdatedAt,
		})
		if err != nil {
			return 0, err
		}
	default:
		return 0, err
	}

	if snap.Findings != nil {
		if err := db.ReplaceFindings(ctx, rowID, snap.Findings.AllFindings()); err != nil {
			return 0, err
		}
	}

	result, ok := snap.Result(models.StageReport)
	if !ok || result.Status != models.StageSuccess {
		return rowID, nil
	}
	// Reports are immutable once generated; re-indexing must not duplicate
	// them.
	if _, err := db.LatestReport(ctx, rowID); err == nil {
		return rowID, nil
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	var rep schema.ReportResult
	if err := json.Unmarshal(result.Output, &rep); err != nil {
		return 0, fmt.Errorf("decoding stored report: %w", err)
	}
	if _, err := db.InsertReport(ctx, rowID, &rep); err != nil {
		return 0, err
	}
	return rowID, nil
}
