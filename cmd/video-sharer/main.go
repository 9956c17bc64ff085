package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/cwleong/videosharingflow/internal/config"
	"github.com/cwleong/videosharingflow/internal/gcp"
	"github.com/cwleong/videosharingflow/internal/services"
)

var (
	sharingInstance *services.SharingFunction
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the HTTP function; Cloud Scheduler hits this on its cadence.
	// "ShareVideos" is the entry point name configured in GCP.
	functions.HTTP("ShareVideos", handleShareVideos)
}

// main is required by the Go Functions Framework.
func main() {}

func handleShareVideos(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		sharingInstance, initErr = newSharing(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	if err := sharingInstance.Run(r.Context()); err != nil {
		// The run already logged, mailed and finalized its ledger.
		http.Error(w, "Internal Server Error: run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func newSharing(ctx context.Context) (*services.SharingFunction, error) {
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

	mailer, err := gcp.NewGmailDispatcher(ctx, cfg.ServiceAccount, cfg.MailSender)
	if err != nil {
		return nil, err
	}

	ledger := services.NewLedgerService(lists, cfg.RunLogList)
	mail := services.NewMailService(mailer, cfg)
	return services.NewSharing(dir, drives, lists, ledger, mail, cfg), nil
}
