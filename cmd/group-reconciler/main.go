package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/cwleong/videosharingflow/internal/config"
	"github.com/cwleong/videosharingflow/internal/gcp"
	"github.com/cwleong/videosharingflow/internal/services"
)

var (
	reconcilerInstance *services.ReconcilerFunction
	once               sync.Once
	initErr            error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function; Cloud Scheduler publishes to the
	// trigger topic on its cadence.
	functions.CloudEvent("UpdateUserGroup", updateUserGroup)
}

// main is required by the Go Functions Framework.
func main() {}

func updateUserGroup(ctx context.Context, e cloudevents.Event) error {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		reconcilerInstance, initErr = newReconciler(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	slog.Info("Reconcile triggered.", "eventId", e.ID(), "source", e.Source())
	return reconcilerInstance.Run(ctx)
}

func newReconciler(ctx context.Context) (*services.ReconcilerFunction, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}

	fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	lists := gcp.NewFirestoreListStore(fsClient, cfg.QueryPageSize)

	dir, err := gcp.NewDirectoryService(ctx, cfg.ServiceAccount, cfg.AdminSubject)
	if err != nil {
		return nil, err
	}
	drives := gcp.NewDriveStore(cfg.ServiceAccount)

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	archive := gcp.NewSnapshotArchive(storageClient, cfg.ArchiveBucket)

	mailer, err := gcp.NewGmailDispatcher(ctx, cfg.ServiceAccount, cfg.MailSender)
	if err != nil {
		return nil, err
	}

	roster := services.NewRosterService(drives, archive, cfg.RosterOwner, cfg.RosterFileName)
	ledger := services.NewLedgerService(lists, cfg.RunLogList)
	mail := services.NewMailService(mailer, cfg)
	return services.NewReconciler(dir, roster, ledger, mail, cfg), nil
}
