package gcp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"

	"github.com/cwleong/videosharingflow/internal/batch"
	"github.com/cwleong/videosharingflow/internal/remote"
)

const folderMIMEType = "application/vnd.google-apps.folder"

const fileFields = "id, name, mimeType, modifiedTime, videoMediaMetadata(durationMillis)"

// DriveStore implements remote.FileStore on Drive v3. Each owner's drive is
// reached through a delegated service impersonating that owner; services are
// cached per subject for the lifetime of the run.
type DriveStore struct {
	serviceAccount string

	mu       sync.Mutex
	services map[string]*drive.Service

	// newService is swapped in tests.
	newService func(ctx context.Context, subject string) (*drive.Service, error)
}

func NewDriveStore(serviceAccount string) *DriveStore {
	s := &DriveStore{
		serviceAccount: serviceAccount,
		services:       make(map[string]*drive.Service),
	}
	s.newService = s.impersonatedService
	return s
}

func (s *DriveStore) impersonatedService(ctx context.Context, subject string) (*drive.Service, error) {
	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: s.serviceAccount,
		Subject:         subject,
		Scopes:          []string{drive.DriveScope},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build drive token source for %s: %w", subject, err)
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service for %s: %w", subject, err)
	}
	return svc, nil
}

func (s *DriveStore) serviceFor(ctx context.Context, owner string) (*drive.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc, ok := s.services[owner]; ok {
		return svc, nil
	}
	svc, err := s.newService(ctx, owner)
	if err != nil {
		return nil, err
	}
	s.services[owner] = svc
	return svc, nil
}

func (s *DriveStore) FindChildByName(ctx context.Context, owner, parentID, name string) (remote.File, error) {
	svc, err := s.serviceFor(ctx, owner)
	if err != nil {
		return remote.File{}, err
	}
	if parentID == "" {
		parentID = "root"
	}
	query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false",
		parentID, escapeQueryValue(name))

	var res *drive.FileList
	err = batch.Retry(ctx, func() error {
		var err error
		res, err = svc.Files.List().
			Q(query).
			PageSize(1).
			Fields("files(" + fileFields + ")").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return remote.File{}, fmt.Errorf("failed to find %q under %s: %w", name, parentID, err)
	}
	if len(res.Files) == 0 {
		return remote.File{}, remote.ErrNotFound
	}
	return toFile(res.Files[0]), nil
}

func (s *DriveStore) CreateFolder(ctx context.Context, owner, parentID, name string) (remote.File, error) {
	svc, err := s.serviceFor(ctx, owner)
	if err != nil {
		return remote.File{}, err
	}
	if parentID == "" {
		parentID = "root"
	}
	var created *drive.File
	err = batch.Retry(ctx, func() error {
		var err error
		created, err = svc.Files.Create(&drive.File{
			Name:     name,
			MimeType: folderMIMEType,
			Parents:  []string{parentID},
		}).Fields(fileFields).Context(ctx).Do()
		return err
	})
	if err != nil {
		return remote.File{}, fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	return toFile(created), nil
}

func (s *DriveStore) ListChildren(ctx context.Context, owner, folderID, pageToken string) (batch.Page[remote.File], error) {
	svc, err := s.serviceFor(ctx, owner)
	if err != nil {
		return batch.Page[remote.File]{}, err
	}
	var res *drive.FileList
	err = batch.Retry(ctx, func() error {
		call := svc.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
			Fields("nextPageToken, files(" + fileFields + ")").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		res, err = call.Do()
		return err
	})
	if err != nil {
		return batch.Page[remote.File]{}, fmt.Errorf("failed to list children of %s: %w", folderID, err)
	}
	page := batch.Page[remote.File]{NextToken: res.NextPageToken}
	for _, f := range res.Files {
		page.Items = append(page.Items, toFile(f))
	}
	return page, nil
}

func (s *DriveStore) GrantRead(ctx context.Context, owner, fileID, granteeEmail string, notify bool) error {
	svc, err := s.serviceFor(ctx, owner)
	if err != nil {
		return err
	}
	err = batch.Retry(ctx, func() error {
		_, err := svc.Permissions.Create(fileID, &drive.Permission{
			Type:         "user",
			Role:         "reader",
			EmailAddress: granteeEmail,
		}).SendNotificationEmail(notify).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to grant read on %s to %s: %w", fileID, granteeEmail, err)
	}
	return nil
}

func (s *DriveStore) Move(ctx context.Context, owner, fileID, oldParentID, newParentID string) error {
	svc, err := s.serviceFor(ctx, owner)
	if err != nil {
		return err
	}
	err = batch.Retry(ctx, func() error {
		_, err := svc.Files.Update(fileID, &drive.File{}).
			AddParents(newParentID).
			RemoveParents(oldParentID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to move %s into %s: %w", fileID, newParentID, err)
	}
	return nil
}

func (s *DriveStore) Download(ctx context.Context, owner, fileID string) ([]byte, error) {
	svc, err := s.serviceFor(ctx, owner)
	if err != nil {
		return nil, err
	}
	var content []byte
	err = batch.Retry(ctx, func() error {
		res, err := svc.Files.Get(fileID).Context(ctx).Download()
		if err != nil {
			return err
		}
		defer res.Body.Close()
		content, err = io.ReadAll(res.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", fileID, err)
	}
	return content, nil
}

func toFile(f *drive.File) remote.File {
	out := remote.File{
		ID:     f.Id,
		Name:   f.Name,
		Folder: f.MimeType == folderMIMEType,
	}
	if f.VideoMediaMetadata != nil {
		out.DurationMillis = f.VideoMediaMetadata.DurationMillis
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			out.ModifiedAt = t
		}
	}
	return out
}

// escapeQueryValue escapes single quotes and backslashes for Drive query
// string literals.
func escapeQueryValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}
