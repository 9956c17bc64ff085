package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/cwleong/videosharingflow/internal/batch"
	"github.com/cwleong/videosharingflow/internal/remote"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreListStore backs remote.ListStore with one Firestore collection per
// list: the pair registry, the per-pair tracking lists, the error log and the
// run ledger all live here.
type FirestoreListStore struct {
	client   *firestore.Client
	pageSize int
}

func NewFirestoreListStore(client *firestore.Client, pageSize int) *FirestoreListStore {
	if pageSize < 1 {
		pageSize = 100
	}
	return &FirestoreListStore{client: client, pageSize: pageSize}
}

func (s *FirestoreListStore) CreateItem(ctx context.Context, list string, fields map[string]any) (string, error) {
	doc := s.client.Collection(list).NewDoc()
	err := batch.Retry(ctx, func() error {
		_, err := doc.Create(ctx, fields)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create item in %s: %w", list, err)
	}
	return doc.ID, nil
}

func (s *FirestoreListStore) UpdateItem(ctx context.Context, list, id string, fields map[string]any) error {
	err := batch.Retry(ctx, func() error {
		_, err := s.client.Collection(list).Doc(id).Set(ctx, fields, firestore.MergeAll)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update item %s in %s: %w", id, list, err)
	}
	return nil
}

// QueryItems pages the collection in document-ID order, using the last ID of
// the previous page as the continuation token.
func (s *FirestoreListStore) QueryItems(ctx context.Context, list, pageToken string) (batch.Page[remote.ListItem], error) {
	q := s.client.Collection(list).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(s.pageSize)
	if pageToken != "" {
		q = q.StartAfter(pageToken)
	}

	var page batch.Page[remote.ListItem]
	err := batch.Retry(ctx, func() error {
		page = batch.Page[remote.ListItem]{}
		it := q.Documents(ctx)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}
			page.Items = append(page.Items, remote.ListItem{
				ID:     snap.Ref.ID,
				Fields: snap.Data(),
			})
		}
		if len(page.Items) == s.pageSize {
			page.NextToken = page.Items[len(page.Items)-1].ID
		}
		return nil
	})
	if err != nil {
		return batch.Page[remote.ListItem]{}, fmt.Errorf("failed to query list %s: %w", list, err)
	}
	return page, nil
}
