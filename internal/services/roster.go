package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cwleong/videosharingflow/internal/models"
	"github.com/cwleong/videosharingflow/internal/remote"
)

// Typed empty-result conditions. These terminate the reconcile run as a
// Succeeded no-op, unlike genuine faults.
var (
	// ErrRosterMissing means the roster spreadsheet does not exist.
	ErrRosterMissing = errors.New("roster spreadsheet not found")
	// ErrRosterStale means the spreadsheet saw no update since yesterday
	// 00:00 UTC, so there is nothing to converge.
	ErrRosterStale = errors.New("roster spreadsheet not modified since the day before the run")
	// ErrNoRows means the spreadsheet parsed to zero data rows.
	ErrNoRows = errors.New("no rows found")
)

// ErrHeaderMismatch is a genuine fault: the spreadsheet layout drifted from
// the expected columns. Columns bind by validated name, never silently by
// position.
var ErrHeaderMismatch = errors.New("roster header does not match expected columns")

var rosterColumns = []string{"StaffName", "StaffEmail", "AgentGroup", "CheckerGroup"}

// Archiver stores a named snapshot of the roster content after a run.
type Archiver interface {
	Save(ctx context.Context, objectName string, content []byte) error
}

// RosterService locates, downloads and parses the desired-state spreadsheet,
// and archives a timestamped copy after processing.
type RosterService struct {
	files    remote.FileStore
	archive  Archiver
	owner    string
	fileName string
}

func NewRosterService(files remote.FileStore, archive Archiver, owner, fileName string) *RosterService {
	return &RosterService{files: files, archive: archive, owner: owner, fileName: fileName}
}

// RosterSnapshot is one run's parsed roster plus the raw bytes for archival.
type RosterSnapshot struct {
	Rows    []models.DesiredAssignment
	Content []byte
}

// Fetch resolves the spreadsheet, gates on freshness, downloads and parses
// it. now anchors the freshness cutoff (yesterday 00:00 UTC).
func (s *RosterService) Fetch(ctx context.Context, now time.Time) (*RosterSnapshot, error) {
	file, err := s.files.FindChildByName(ctx, s.owner, "", s.fileName)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrRosterMissing, s.fileName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to locate roster spreadsheet: %w", err)
	}

	y := now.UTC()
	cutoff := time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	if !file.ModifiedAt.IsZero() && file.ModifiedAt.Before(cutoff) {
		return nil, ErrRosterStale
	}

	content, err := s.files.Download(ctx, s.owner, file.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to download roster spreadsheet: %w", err)
	}

	rows, err := ParseRoster(content)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return &RosterSnapshot{Rows: rows, Content: content}, nil
}

// Archive writes a timestamped copy of the roster next to earlier snapshots.
func (s *RosterService) Archive(ctx context.Context, snap *RosterSnapshot, now time.Time) error {
	base := strings.TrimSuffix(s.fileName, ".xlsx")
	name := fmt.Sprintf("%s_%s.xlsx", base, now.UTC().Format("2006-01-02_15-04-05"))
	if err := s.archive.Save(ctx, name, snap.Content); err != nil {
		return fmt.Errorf("failed to archive roster snapshot %s: %w", name, err)
	}
	return nil
}

// ParseRoster reads the first sheet of the workbook. The header row must
// match rosterColumns by name and order; a leading sequence column in the
// data is not expected, row numbers come from sheet position. Rows repeating
// an earlier StaffEmail are dropped silently, first occurrence wins.
func ParseRoster(content []byte) ([]models.DesiredAssignment, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open roster workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("roster workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read roster rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := validateHeader(rows[0]); err != nil {
		return nil, err
	}

	var assignments []models.DesiredAssignment
	seen := make(map[string]struct{})
	for i, row := range rows[1:] {
		rowNo := i + 2 // 1-based sheet position, header is row 1
		a := models.DesiredAssignment{
			SequenceID:    rowNo,
			StaffName:     cell(row, 0),
			StaffEmail:    cell(row, 1),
			UploaderGroup: cell(row, 2),
			ReviewerGroup: cell(row, 3),
		}
		if a.StaffName == "" && a.StaffEmail == "" && a.UploaderGroup == "" && a.ReviewerGroup == "" {
			continue
		}
		if _, dup := seen[a.StaffEmail]; dup {
			continue
		}
		seen[a.StaffEmail] = struct{}{}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

func validateHeader(header []string) error {
	if len(header) < len(rosterColumns) {
		return fmt.Errorf("%w: got %v, want %v", ErrHeaderMismatch, header, rosterColumns)
	}
	for i, want := range rosterColumns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrHeaderMismatch, i+1, header[i], want)
		}
	}
	return nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
