package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/cwleong/videosharingflow/internal/batch"
)

// SnapshotArchive stores timestamped copies of the roster spreadsheet in a
// GCS bucket after each reconcile run. Writes are conditional on the object
// not existing, so a retried run never clobbers an earlier snapshot.
type SnapshotArchive struct {
	bucket *storage.BucketHandle
}

func NewSnapshotArchive(client *storage.Client, bucket string) *SnapshotArchive {
	return &SnapshotArchive{bucket: client.Bucket(bucket)}
}

// Save writes content to objectName only if it doesn't already exist. An
// already-existing object is not a failure in an idempotent workflow.
func (a *SnapshotArchive) Save(ctx context.Context, objectName string, content []byte) error {
	return batch.Retry(ctx, func() error {
		writer := a.bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

		if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
			_ = writer.Close()
			if isPreconditionFailed(err) {
				log.Printf("SKIPPING: Object %s already exists.", objectName)
				return nil
			}
			return fmt.Errorf("failed to write to GCS: %w", err)
		}

		if err := writer.Close(); err != nil {
			if isPreconditionFailed(err) {
				log.Printf("SKIPPING: Object %s already exists.", objectName)
				return nil
			}
			return fmt.Errorf("failed to finalize GCS write: %w", err)
		}
		return nil
	})
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}
