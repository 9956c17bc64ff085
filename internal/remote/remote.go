// Package remote defines the interface boundary to the external services the
// batch runs against: the identity directory, the per-user file store, the
// structured list store and the mail dispatcher. The gcp package provides the
// Google Workspace implementations; tests substitute in-memory stubs.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/cwleong/videosharingflow/internal/batch"
)

// ErrNotFound is returned by point lookups when the backend reports no such
// entity. An absent entity is an expected condition, not a fault.
var ErrNotFound = errors.New("remote: not found")

// User is a directory identity.
type User struct {
	ID          string
	Email       string
	DisplayName string
}

// Group is a directory group. Description carries the eligibility tag.
type Group struct {
	ID          string
	Email       string
	Name        string
	Description string
}

// Member is one group membership reference.
type Member struct {
	ID    string
	Email string
}

// Directory is the identity directory service.
type Directory interface {
	// LookupUserByEmail resolves a user by exact email match.
	// Returns ErrNotFound when no user carries that address.
	LookupUserByEmail(ctx context.Context, email string) (User, error)
	// FindGroupByEmail resolves a group by its address. Returns ErrNotFound
	// when absent.
	FindGroupByEmail(ctx context.Context, email string) (Group, error)
	// ListGroups pages through every group in the tenant.
	ListGroups(ctx context.Context, pageToken string) (batch.Page[Group], error)
	// ListGroupMembers pages through one group's membership.
	ListGroupMembers(ctx context.Context, groupID, pageToken string) (batch.Page[Member], error)
	AddGroupMember(ctx context.Context, groupID, userID string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
}

// File is a file-store item (file or folder) as seen by the pipelines.
type File struct {
	ID             string
	Name           string
	Folder         bool
	DurationMillis int64
	ModifiedAt     time.Time
}

// FileStore is the cloud file storage provider. Every method acts inside the
// drive of owner (the impersonated user for per-member operations, the
// service identity for shared locations).
type FileStore interface {
	// FindChildByName resolves a direct child of parentID (the empty string
	// means the drive root) by exact name. Returns ErrNotFound when absent.
	FindChildByName(ctx context.Context, owner, parentID, name string) (File, error)
	// CreateFolder makes a folder under parentID.
	CreateFolder(ctx context.Context, owner, parentID, name string) (File, error)
	// ListChildren pages through the children of folderID.
	ListChildren(ctx context.Context, owner, folderID, pageToken string) (batch.Page[File], error)
	// GrantRead gives granteeEmail read access to the file, optionally
	// sending the provider's own share notification.
	GrantRead(ctx context.Context, owner, fileID, granteeEmail string, notify bool) error
	// Move reparents the file into newParentID.
	Move(ctx context.Context, owner, fileID, oldParentID, newParentID string) error
	// Download fetches the full file content.
	Download(ctx context.Context, owner, fileID string) ([]byte, error)
}

// ListItem is one row of a structured list with its raw field map.
type ListItem struct {
	ID     string
	Fields map[string]any
}

// ListStore is the structured list storage used for the pair registry, the
// per-pair tracking lists, the error log and the run ledger.
type ListStore interface {
	// CreateItem appends a row and returns its assigned ID.
	CreateItem(ctx context.Context, list string, fields map[string]any) (string, error)
	// UpdateItem overwrites fields of an existing row.
	UpdateItem(ctx context.Context, list, id string, fields map[string]any) error
	// QueryItems pages through a list's rows including field data.
	QueryItems(ctx context.Context, list, pageToken string) (batch.Page[ListItem], error)
}

// Message is one outbound notification.
type Message struct {
	To       []string
	CC       []string
	Subject  string
	HTMLBody string
}

// Mailer dispatches notifications on behalf of the configured sender.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
