package gcp

import (
	"context"
	"errors"
	"fmt"

	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"

	"github.com/cwleong/videosharingflow/internal/batch"
	"github.com/cwleong/videosharingflow/internal/remote"
)

// directoryCustomer scopes group listings to the tenant of the impersonated
// admin.
const directoryCustomer = "my_customer"

// DirectoryService implements remote.Directory on the Admin SDK Directory
// API. All calls run as the configured admin subject through domain-wide
// delegation.
type DirectoryService struct {
	svc *admin.Service
}

func NewDirectoryService(ctx context.Context, serviceAccount, adminSubject string) (*DirectoryService, error) {
	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: serviceAccount,
		Subject:         adminSubject,
		Scopes: []string{
			admin.AdminDirectoryUserReadonlyScope,
			admin.AdminDirectoryGroupScope,
			admin.AdminDirectoryGroupMemberScope,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build directory token source: %w", err)
	}
	svc, err := admin.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create directory service: %w", err)
	}
	return &DirectoryService{svc: svc}, nil
}

func (d *DirectoryService) LookupUserByEmail(ctx context.Context, email string) (remote.User, error) {
	var user *admin.User
	err := batch.Retry(ctx, func() error {
		var err error
		user, err = d.svc.Users.Get(email).Context(ctx).Do()
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return remote.User{}, remote.ErrNotFound
		}
		return remote.User{}, fmt.Errorf("failed to look up user %s: %w", email, err)
	}
	out := remote.User{ID: user.Id, Email: user.PrimaryEmail}
	if user.Name != nil {
		out.DisplayName = user.Name.FullName
	}
	return out, nil
}

func (d *DirectoryService) FindGroupByEmail(ctx context.Context, email string) (remote.Group, error) {
	var group *admin.Group
	err := batch.Retry(ctx, func() error {
		var err error
		group, err = d.svc.Groups.Get(email).Context(ctx).Do()
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return remote.Group{}, remote.ErrNotFound
		}
		return remote.Group{}, fmt.Errorf("failed to look up group %s: %w", email, err)
	}
	return toGroup(group), nil
}

func (d *DirectoryService) ListGroups(ctx context.Context, pageToken string) (batch.Page[remote.Group], error) {
	var res *admin.Groups
	err := batch.Retry(ctx, func() error {
		call := d.svc.Groups.List().Customer(directoryCustomer).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		res, err = call.Do()
		return err
	})
	if err != nil {
		return batch.Page[remote.Group]{}, fmt.Errorf("failed to list groups: %w", err)
	}
	page := batch.Page[remote.Group]{NextToken: res.NextPageToken}
	for _, g := range res.Groups {
		page.Items = append(page.Items, toGroup(g))
	}
	return page, nil
}

func (d *DirectoryService) ListGroupMembers(ctx context.Context, groupID, pageToken string) (batch.Page[remote.Member], error) {
	var res *admin.Members
	err := batch.Retry(ctx, func() error {
		call := d.svc.Members.List(groupID).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		res, err = call.Do()
		return err
	})
	if err != nil {
		return batch.Page[remote.Member]{}, fmt.Errorf("failed to list members of group %s: %w", groupID, err)
	}
	page := batch.Page[remote.Member]{NextToken: res.NextPageToken}
	for _, m := range res.Members {
		page.Items = append(page.Items, remote.Member{ID: m.Id, Email: m.Email})
	}
	return page, nil
}

func (d *DirectoryService) AddGroupMember(ctx context.Context, groupID, userID string) error {
	err := batch.Retry(ctx, func() error {
		_, err := d.svc.Members.Insert(groupID, &admin.Member{Id: userID, Role: "MEMBER"}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add member %s to group %s: %w", userID, groupID, err)
	}
	return nil
}

func (d *DirectoryService) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	err := batch.Retry(ctx, func() error {
		return d.svc.Members.Delete(groupID, userID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to remove member %s from group %s: %w", userID, groupID, err)
	}
	return nil
}

func toGroup(g *admin.Group) remote.Group {
	return remote.Group{
		ID:          g.Id,
		Email:       g.Email,
		Name:        g.Name,
		Description: g.Description,
	}
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 404
}
