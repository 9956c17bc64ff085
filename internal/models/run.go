package models

import "time"

// Run status values persisted to the run ledger collection.
const (
	StatusRunning   = "Running"
	StatusSucceeded = "Succeeded"
	StatusFailed    = "Failed"
)

// RunLedger is the Firestore record for one execution of a batch function.
// It is written once at run start with StatusRunning and updated in place at
// run end. An empty ID means the start write never happened, in which case
// the finalizer creates a fresh document instead of updating one.
type RunLedger struct {
	ID             string
	FunctionName   string
	Status         string
	LastStep       string
	Details        string
	TotalRecords   int
	UpdatedRecords int
	ExecutionID    string // For traceability
	StartedAt      time.Time
	FinishedAt     time.Time
}

// NewRunLedger returns a ledger in its initial Running state.
func NewRunLedger(functionName, executionID string) *RunLedger {
	return &RunLedger{
		FunctionName: functionName,
		Status:       StatusRunning,
		ExecutionID:  executionID,
		StartedAt:    time.Now().UTC(),
	}
}

// Finalize settles the terminal status. A ledger still marked Running at run
// end succeeded; anything else (Succeeded set by a no-op exit, Failed set by
// a top-level fault) is left as is.
func (l *RunLedger) Finalize() {
	if l.Status == StatusRunning {
		l.Status = StatusSucceeded
	}
	l.FinishedAt = time.Now().UTC()
}

// ErrorRecord is one item-level failure captured during a run. Records are
// append-only; their presence marks a terminal, reported failure for that
// item, never a retry candidate.
type ErrorRecord struct {
	FunctionName string
	SubjectName  string
	SubjectEmail string
	Details      string
}
