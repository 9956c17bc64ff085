package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwleong/videosharingflow/internal/batch"
	"github.com/cwleong/videosharingflow/internal/config"
	"github.com/cwleong/videosharingflow/internal/models"
	"github.com/cwleong/videosharingflow/internal/remote"
)

const reconcilerFunctionName = "UpdateUserGroup"

// ReconcilerFunction converges actual directory group membership to the
// state the roster spreadsheet declares, one scheduled run at a time.
type ReconcilerFunction struct {
	dir    remote.Directory
	roster *RosterService
	ledger *LedgerService
	mail   *MailService
	cfg    *config.Config
}

func NewReconciler(dir remote.Directory, roster *RosterService, ledger *LedgerService, mail *MailService, cfg *config.Config) *ReconcilerFunction {
	return &ReconcilerFunction{dir: dir, roster: roster, ledger: ledger, mail: mail, cfg: cfg}
}

// Run executes one reconcile pass. Item-level failures are captured per
// staff member and never abort the run; only a top-level fault (roster
// unreadable, group listing failing entirely) does, marking the ledger
// Failed and alerting the operators. The ledger is finalized in all cases.
func (f *ReconcilerFunction) Run(ctx context.Context) (err error) {
	execID := uuid.NewString()
	logger := slog.With("function", reconcilerFunctionName, "executionId", execID)
	logger.Info("Run started.")

	ledger := models.NewRunLedger(reconcilerFunctionName, execID)
	ledger.LastStep = "Initiate run"
	f.ledger.Record(ctx, ledger)

	defer func() {
		if err != nil {
			ledger.Status = models.StatusFailed
			if ledger.Details == "" {
				ledger.Details = err.Error()
			}
			logger.Error("Run terminated.", "step", ledger.LastStep, "error", err)
			if mailErr := f.mail.SendFailureReport(ctx, reconcilerFunctionName, ledger.Details); mailErr != nil {
				logger.Error("Failed to send failure report.", "error", mailErr)
			}
		}
		ledger.Finalize()
		f.ledger.Record(ctx, ledger)
		logger.Info("Run ended.", "status", ledger.Status)
	}()

	ledger.LastStep = "Fetch roster spreadsheet"
	snap, err := f.roster.Fetch(ctx, time.Now())
	if err != nil {
		// Empty-result conditions end the run cleanly; only real faults
		// propagate.
		if errors.Is(err, ErrRosterMissing) || errors.Is(err, ErrRosterStale) || errors.Is(err, ErrNoRows) {
			ledger.Status = models.StatusSucceeded
			ledger.Details = err.Error()
			logger.Info("Nothing to reconcile.", "reason", err)
			return nil
		}
		return err
	}
	ledger.TotalRecords = len(snap.Rows)
	logger.Info("Roster fetched.", "rows", len(snap.Rows))

	ledger.LastStep = "Fetch eligible groups"
	rosters, err := f.fetchEligibleRosters(ctx)
	if err != nil {
		return err
	}
	logger.Info("Eligible groups snapshotted.", "groups", len(rosters))

	ledger.LastStep = "Converge group membership"
	sink := batch.NewErrorSink()
	batch.FanOut(ctx, snap.Rows, f.cfg.StaffWorkers, sink,
		func(row models.DesiredAssignment, err error) models.ErrorRecord {
			return models.ErrorRecord{
				FunctionName: reconcilerFunctionName,
				SubjectName:  row.StaffName,
				SubjectEmail: row.StaffEmail,
				Details:      fmt.Sprintf("%v (userEmail=%q, sheet row %d)", err, row.StaffEmail, row.SequenceID),
			}
		},
		func(ctx context.Context, row models.DesiredAssignment) error {
			return f.reconcileStaff(ctx, logger, row, rosters)
		})

	if sink.Len() > 0 {
		ledger.Details = fmt.Sprintf("One or more usergroup updates failed, see list %q for reference.\n", f.cfg.ReconcilerErrorList)
		f.ledger.WriteErrors(ctx, f.cfg.ReconcilerErrorList, sink.Records(), ledger)
	}
	ledger.UpdatedRecords = ledger.TotalRecords - sink.Len()

	ledger.LastStep = "Archive roster snapshot"
	if archiveErr := f.roster.Archive(ctx, snap, time.Now()); archiveErr != nil {
		// Snapshot archival is bookkeeping; a failure is noted, never fatal.
		ledger.Details += fmt.Sprintf("Failed to archive roster snapshot: %v\n", archiveErr)
		logger.Error("Failed to archive roster snapshot.", "error", archiveErr)
	}
	return nil
}

// fetchEligibleRosters snapshots every group tagged for reconciliation, with
// full member lists. The whole run diffs against this one snapshot.
func (f *ReconcilerFunction) fetchEligibleRosters(ctx context.Context) ([]models.GroupRoster, error) {
	groups, err := batch.CollectAll(ctx, func(ctx context.Context, token string) (batch.Page[remote.Group], error) {
		return f.dir.ListGroups(ctx, token)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list directory groups: %w", err)
	}

	var rosters []models.GroupRoster
	for _, g := range groups {
		if !strings.EqualFold(strings.TrimSpace(g.Description), f.cfg.GroupTag) {
			continue
		}
		members, err := batch.CollectAll(ctx, func(ctx context.Context, token string) (batch.Page[remote.Member], error) {
			return f.dir.ListGroupMembers(ctx, g.ID, token)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list members of group %q: %w", g.Name, err)
		}
		roster := models.GroupRoster{
			GroupID:   g.ID,
			GroupName: g.Name,
			Members:   make(map[string]struct{}, len(members)),
		}
		for _, m := range members {
			roster.Members[m.ID] = struct{}{}
		}
		rosters = append(rosters, roster)
	}
	return rosters, nil
}

// reconcileStaff converges one staff member. Any failure here surfaces as
// exactly one error record for the member; the first failure path wins and
// no further mutation is attempted.
func (f *ReconcilerFunction) reconcileStaff(ctx context.Context, logger *slog.Logger, row models.DesiredAssignment, rosters []models.GroupRoster) error {
	logger.Info("Processing staff row.", "email", row.StaffEmail, "agentGroup", row.UploaderGroup, "checkerGroup", row.ReviewerGroup)

	user, err := f.dir.LookupUserByEmail(ctx, row.StaffEmail)
	if errors.Is(err, remote.ErrNotFound) {
		return errors.New("User not found.")
	}
	if err != nil {
		return err
	}

	if !groupNameValid(row.UploaderGroup, rosters) || !groupNameValid(row.ReviewerGroup, rosters) {
		return fmt.Errorf("invalid usergroup name (%s/%s)", row.UploaderGroup, row.ReviewerGroup)
	}

	for _, op := range PlanMembershipOps(user.ID, row, rosters) {
		switch op.Kind {
		case models.OpAdd:
			if err := f.dir.AddGroupMember(ctx, op.GroupID, op.StaffID); err != nil {
				return err
			}
		case models.OpRemove:
			if err := f.dir.RemoveGroupMember(ctx, op.GroupID, op.StaffID); err != nil {
				return err
			}
		}
	}
	return nil
}

// PlanMembershipOps diffs one staff member's desired groups against the
// roster snapshot. Each eligible group yields at most one op: an Add when the
// row names the group and the member is absent, a Remove when the member is
// present but the row names neither group. A row naming no groups removes the
// member from every eligible group.
func PlanMembershipOps(staffID string, row models.DesiredAssignment, rosters []models.GroupRoster) []models.MembershipOp {
	var ops []models.MembershipOp
	for _, roster := range rosters {
		wanted := nameMatches(row.UploaderGroup, roster.GroupName) || nameMatches(row.ReviewerGroup, roster.GroupName)
		member := roster.HasMember(staffID)
		switch {
		case wanted && !member:
			ops = append(ops, models.MembershipOp{StaffID: staffID, GroupID: roster.GroupID, Kind: models.OpAdd})
		case !wanted && member:
			ops = append(ops, models.MembershipOp{StaffID: staffID, GroupID: roster.GroupID, Kind: models.OpRemove})
		}
	}
	return ops
}

func nameMatches(rowName, groupName string) bool {
	return rowName != "" && rowName == groupName
}

// groupNameValid accepts blank names; a non-blank name must match one of the
// eligible groups fetched this run.
func groupNameValid(name string, rosters []models.GroupRoster) bool {
	if strings.TrimSpace(name) == "" {
		return true
	}
	for _, r := range rosters {
		if r.GroupName == name {
			return true
		}
	}
	return false
}
