package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwleong/videosharingflow/internal/models"
	"github.com/cwleong/videosharingflow/internal/remote"
)

// LedgerService persists run ledgers and error logs to the list store. Both
// paths are best-effort: a logging failure must never take down the run it is
// reporting on, so errors are logged locally and folded into the ledger
// details instead of propagating.
type LedgerService struct {
	lists      remote.ListStore
	runLogList string
}

func NewLedgerService(lists remote.ListStore, runLogList string) *LedgerService {
	return &LedgerService{lists: lists, runLogList: runLogList}
}

// Record writes the ledger's current state. A ledger without an ID is
// created and remembers its assigned ID so the run-end write updates the
// same row; if the start write failed and the ID is still empty, a fresh row
// is created rather than losing the final state.
func (s *LedgerService) Record(ctx context.Context, ledger *models.RunLedger) {
	fields := map[string]any{
		"functionName":   ledger.FunctionName,
		"status":         ledger.Status,
		"lastStep":       ledger.LastStep,
		"details":        ledger.Details,
		"totalRecords":   ledger.TotalRecords,
		"updatedRecords": ledger.UpdatedRecords,
		"executionId":    ledger.ExecutionID,
		"startedAt":      ledger.StartedAt,
	}
	if !ledger.FinishedAt.IsZero() {
		fields["finishedAt"] = ledger.FinishedAt
	}

	if ledger.ID == "" {
		id, err := s.lists.CreateItem(ctx, s.runLogList, fields)
		if err != nil {
			slog.Error("Failed to create run ledger entry", "function", ledger.FunctionName, "error", err)
			return
		}
		ledger.ID = id
		return
	}
	if err := s.lists.UpdateItem(ctx, s.runLogList, ledger.ID, fields); err != nil {
		slog.Error("Failed to update run ledger entry", "function", ledger.FunctionName, "id", ledger.ID, "error", err)
	}
}

// WriteErrors bulk-persists the run's error records, one list row each. A
// persistence failure stops the loop and is noted on the ledger; the records
// already written stay.
func (s *LedgerService) WriteErrors(ctx context.Context, errorList string, records []models.ErrorRecord, ledger *models.RunLedger) {
	ledger.LastStep = fmt.Sprintf("Write error log to %s", errorList)
	for _, rec := range records {
		_, err := s.lists.CreateItem(ctx, errorList, map[string]any{
			"functionName": rec.FunctionName,
			"staffName":    rec.SubjectName,
			"staffEmail":   rec.SubjectEmail,
			"details":      rec.Details,
		})
		if err != nil {
			ledger.Details += fmt.Sprintf("Failed to persist error log entries: %v\n", err)
			slog.Error("Failed to persist error log entry", "list", errorList, "error", err)
			return
		}
	}
	slog.Info("Persisted error log entries", "list", errorList, "count", len(records))
}
