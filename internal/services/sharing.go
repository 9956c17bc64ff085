package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cwleong/videosharingflow/internal/batch"
	"github.com/cwleong/videosharingflow/internal/config"
	"github.com/cwleong/videosharingflow/internal/models"
	"github.com/cwleong/videosharingflow/internal/remote"
)

const sharingFunctionName = "ShareVideos"

// SharingFunction fans out over uploader/reviewer pairs, shares each uploader
// group member's new recordings with the paired reviewer, records a tracking
// entry per shared file and notifies each reviewer with one digest.
type SharingFunction struct {
	dir    remote.Directory
	files  remote.FileStore
	lists  remote.ListStore
	ledger *LedgerService
	mail   *MailService
	cfg    *config.Config
}

func NewSharing(dir remote.Directory, files remote.FileStore, lists remote.ListStore, ledger *LedgerService, mail *MailService, cfg *config.Config) *SharingFunction {
	return &SharingFunction{dir: dir, files: files, lists: lists, ledger: ledger, mail: mail, cfg: cfg}
}

// Run executes one sharing pass. Pair, member and file failures are isolated
// at their own fan-out level; only a pair registry that cannot be read at all
// fails the run.
func (f *SharingFunction) Run(ctx context.Context) (err error) {
	execID := uuid.NewString()
	logger := slog.With("function", sharingFunctionName, "executionId", execID)
	logger.Info("Run started.")

	ledger := models.NewRunLedger(sharingFunctionName, execID)
	ledger.LastStep = "Initiate run"
	f.ledger.Record(ctx, ledger)

	defer func() {
		if err != nil {
			ledger.Status = models.StatusFailed
			if ledger.Details == "" {
				ledger.Details = err.Error()
			}
			logger.Error("Run terminated.", "step", ledger.LastStep, "error", err)
			if mailErr := f.mail.SendFailureReport(ctx, sharingFunctionName, ledger.Details); mailErr != nil {
				logger.Error("Failed to send failure report.", "error", mailErr)
			}
		}
		ledger.Finalize()
		f.ledger.Record(ctx, ledger)
		logger.Info("Run ended.", "status", ledger.Status)
	}()

	ledger.LastStep = "Fetch pair registry"
	items, err := batch.CollectAll(ctx, func(ctx context.Context, token string) (batch.Page[remote.ListItem], error) {
		return f.lists.QueryItems(ctx, f.cfg.PairsList, token)
	})
	if err != nil {
		return fmt.Errorf("failed to read pair registry %q: %w", f.cfg.PairsList, err)
	}
	if len(items) == 0 {
		ledger.Status = models.StatusSucceeded
		ledger.Details = "no pairs found"
		logger.Info("Nothing to share.", "reason", ledger.Details)
		return nil
	}

	pairs := make([]models.AgentCheckerPair, 0, len(items))
	for _, item := range items {
		pairs = append(pairs, models.AgentCheckerPair{
			PairID:           item.ID,
			TrackingListName: fieldString(item.Fields, "trackingList"),
			AgentGroupEmail:  fieldString(item.Fields, "agentGroupEmail"),
			CheckerEmail:     fieldString(item.Fields, "checkerEmail"),
		})
	}
	ledger.TotalRecords = len(pairs)
	logger.Info("Pair registry fetched.", "pairs", len(pairs))

	sink := batch.NewErrorSink()
	digests := NewDigestSet()
	var failedPairs atomic.Int64

	ledger.LastStep = "Share recordings"
	batch.FanOut(ctx, pairs, f.cfg.PairWorkers, sink,
		func(pair models.AgentCheckerPair, err error) models.ErrorRecord {
			failedPairs.Add(1)
			return models.ErrorRecord{
				FunctionName: sharingFunctionName,
				SubjectName:  pair.TrackingListName,
				SubjectEmail: pair.CheckerEmail,
				Details:      fmt.Sprintf("%v (pair=%s)", err, pair.PairID),
			}
		},
		func(ctx context.Context, pair models.AgentCheckerPair) error {
			return f.processPair(ctx, logger, pair, digests, sink)
		})
	ledger.UpdatedRecords = ledger.TotalRecords - int(failedPairs.Load())

	ledger.LastStep = "Notify reviewers"
	f.notifyReviewers(ctx, logger, digests, sink)

	if sink.Len() > 0 {
		ledger.Details = fmt.Sprintf("One or more shares failed, see list %q for reference.\n", f.cfg.SharingErrorList)
		f.ledger.WriteErrors(ctx, f.cfg.SharingErrorList, sink.Records(), ledger)
	}
	return nil
}

// processPair shares every group member's recordings with the pair's
// reviewer. Member failures are recorded individually and their texts
// concatenated into the pair-level summary error.
func (f *SharingFunction) processPair(ctx context.Context, logger *slog.Logger, pair models.AgentCheckerPair, digests *DigestSet, sink *batch.ErrorSink) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	logger.Info("Processing pair.", "agentGroup", pair.AgentGroupEmail, "checker", pair.CheckerEmail)

	group, err := f.dir.FindGroupByEmail(ctx, pair.AgentGroupEmail)
	if errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("agent group %q not found", pair.AgentGroupEmail)
	}
	if err != nil {
		return err
	}

	members, err := batch.CollectAll(ctx, func(ctx context.Context, token string) (batch.Page[remote.Member], error) {
		return f.dir.ListGroupMembers(ctx, group.ID, token)
	})
	if err != nil {
		return fmt.Errorf("failed to list members of %q: %w", pair.AgentGroupEmail, err)
	}

	var mu sync.Mutex
	var memberFailures []string
	batch.FanOut(ctx, members, f.cfg.MemberWorkers, sink,
		func(m remote.Member, err error) models.ErrorRecord {
			mu.Lock()
			memberFailures = append(memberFailures, fmt.Sprintf("%s: %v", m.Email, err))
			mu.Unlock()
			return models.ErrorRecord{
				FunctionName: sharingFunctionName,
				SubjectEmail: m.Email,
				Details:      fmt.Sprintf("%v (pair=%s)", err, pair.PairID),
			}
		},
		func(ctx context.Context, m remote.Member) error {
			return f.shareMemberRecordings(ctx, logger, pair, m, digests, sink)
		})

	if len(memberFailures) > 0 {
		return fmt.Errorf("one or more members failed: %s", strings.Join(memberFailures, "; "))
	}
	return nil
}

// shareMemberRecordings walks one uploader's pending recordings. A member
// with no recordings folder has simply never recorded; that is an empty
// result, not a fault.
func (f *SharingFunction) shareMemberRecordings(ctx context.Context, logger *slog.Logger, pair models.AgentCheckerPair, member remote.Member, digests *DigestSet, sink *batch.ErrorSink) error {
	recordings, err := f.files.FindChildByName(ctx, member.Email, "", f.cfg.RecordingsFolder)
	if errors.Is(err, remote.ErrNotFound) {
		logger.Info("Member has no recordings folder, skipping.", "member", member.Email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to locate %q folder: %w", f.cfg.RecordingsFolder, err)
	}

	shared, err := f.ensureSharedFolder(ctx, member.Email)
	if err != nil {
		return err
	}

	files, err := batch.CollectAll(ctx, func(ctx context.Context, token string) (batch.Page[remote.File], error) {
		return f.files.ListChildren(ctx, member.Email, recordings.ID, token)
	})
	if err != nil {
		return fmt.Errorf("failed to list recordings: %w", err)
	}

	var pending []remote.File
	for _, file := range files {
		if !file.Folder {
			pending = append(pending, file)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	logger.Info("Sharing member recordings.", "member", member.Email, "files", len(pending))

	// File failures stand on their own records; they do not fail the member.
	batch.FanOut(ctx, pending, f.cfg.FileWorkers, sink,
		func(file remote.File, err error) models.ErrorRecord {
			return models.ErrorRecord{
				FunctionName: sharingFunctionName,
				SubjectName:  file.Name,
				SubjectEmail: member.Email,
				Details:      fmt.Sprintf("%v (pair=%s)", err, pair.PairID),
			}
		},
		func(ctx context.Context, file remote.File) error {
			return f.shareOneFile(ctx, pair, member, file, recordings.ID, shared.ID, digests)
		})
	return nil
}

// ensureSharedFolder finds or creates the member's destination folder. The
// check-then-create is not transactional; losing the race to a concurrent
// create resolves by looking the folder up again.
func (f *SharingFunction) ensureSharedFolder(ctx context.Context, owner string) (remote.File, error) {
	shared, err := f.files.FindChildByName(ctx, owner, "", f.cfg.SharedFolder)
	if err == nil {
		return shared, nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return remote.File{}, fmt.Errorf("failed to locate %q folder: %w", f.cfg.SharedFolder, err)
	}
	shared, createErr := f.files.CreateFolder(ctx, owner, "", f.cfg.SharedFolder)
	if createErr == nil {
		return shared, nil
	}
	if shared, err = f.files.FindChildByName(ctx, owner, "", f.cfg.SharedFolder); err == nil {
		return shared, nil
	}
	return remote.File{}, fmt.Errorf("failed to create %q folder: %w", f.cfg.SharedFolder, createErr)
}

// shareOneFile runs the per-file sequence. The move into the shared folder
// comes strictly after the tracking entry is created: a moved file without an
// audit row would be an orphaned share.
func (f *SharingFunction) shareOneFile(ctx context.Context, pair models.AgentCheckerPair, member remote.Member, file remote.File, recordingsID, sharedID string, digests *DigestSet) error {
	if err := f.files.GrantRead(ctx, member.Email, file.ID, pair.CheckerEmail, f.cfg.NotifyOnShare); err != nil {
		return fmt.Errorf("failed to grant access: %w", err)
	}

	link := ShareLink(f.cfg.LinkBaseURL, member.Email, f.cfg.SharedFolder, file.Name)
	duration := FormatDuration(file.DurationMillis)

	_, err := f.lists.CreateItem(ctx, pair.TrackingListName, map[string]any{
		"Title":       file.Name,
		"Checked":     false,
		"Duration":    duration,
		"LinkToVideo": link,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracking entry: %w", err)
	}

	digests.Append(pair.CheckerEmail, pair.TrackingListName, models.ShareRecord{
		FileName: file.Name,
		Link:     link,
		Duration: duration,
	})

	if err := f.files.Move(ctx, member.Email, file.ID, recordingsID, sharedID); err != nil {
		return fmt.Errorf("failed to move shared file: %w", err)
	}
	return nil
}

// notifyReviewers sends one digest mail per reviewer that accumulated at
// least one share this run. Send failures are per-reviewer records and touch
// nothing already shared.
func (f *SharingFunction) notifyReviewers(ctx context.Context, logger *slog.Logger, digests *DigestSet, sink *batch.ErrorSink) {
	pending := digests.Digests()
	if len(pending) == 0 {
		return
	}
	logger.Info("Notifying reviewers.", "reviewers", len(pending))
	batch.FanOut(ctx, pending, f.cfg.NotifyWorkers, sink,
		func(d *models.ReviewerDigest, err error) models.ErrorRecord {
			return models.ErrorRecord{
				FunctionName: sharingFunctionName,
				SubjectEmail: d.ReviewerEmail,
				Details:      fmt.Sprintf("failed to notify reviewer: %v", err),
			}
		},
		func(ctx context.Context, d *models.ReviewerDigest) error {
			return f.mail.SendDigest(ctx, d)
		})
}

// ShareLink derives the stable shareable location of a file from the
// uploader's normalized email and the file name.
func ShareLink(baseURL, uploaderEmail, sharedFolder, fileName string) string {
	normalized := strings.NewReplacer(".", "_", "@", "_").Replace(strings.ToLower(uploaderEmail))
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimSuffix(baseURL, "/"), normalized, sharedFolder, fileName)
}

// FormatDuration renders a millisecond duration as zero-padded HH:MM:SS.
func FormatDuration(millis int64) string {
	d := time.Duration(millis) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
