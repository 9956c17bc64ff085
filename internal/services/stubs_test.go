package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cwleong/videosharingflow/internal/batch"
	"github.com/cwleong/videosharingflow/internal/config"
	"github.com/cwleong/videosharingflow/internal/remote"
)

// pageOf slices items into token-continued pages so the stubs exercise the
// collector the same way the real adapters do.
func pageOf[T any](items []T, token string, size int) (batch.Page[T], error) {
	start := 0
	if token != "" {
		if _, err := fmt.Sscanf(token, "%d", &start); err != nil {
			return batch.Page[T]{}, err
		}
	}
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	page := batch.Page[T]{Items: items[start:end]}
	if end < len(items) {
		page.NextToken = fmt.Sprintf("%d", end)
	}
	return page, nil
}

type membershipChange struct {
	groupID string
	userID  string
}

type stubDirectory struct {
	mu      sync.Mutex
	users   map[string]remote.User     // by email
	groups  []remote.Group             // all tenant groups
	members map[string][]remote.Member // groupID -> members

	adds    []membershipChange
	removes []membershipChange

	addErr    error
	removeErr error
	pageSize  int
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		users:    make(map[string]remote.User),
		members:  make(map[string][]remote.Member),
		pageSize: 2,
	}
}

func (d *stubDirectory) LookupUserByEmail(_ context.Context, email string) (remote.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[email]; ok {
		return u, nil
	}
	return remote.User{}, remote.ErrNotFound
}

func (d *stubDirectory) FindGroupByEmail(_ context.Context, email string) (remote.Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, g := range d.groups {
		if g.Email == email {
			return g, nil
		}
	}
	return remote.Group{}, remote.ErrNotFound
}

func (d *stubDirectory) ListGroups(_ context.Context, token string) (batch.Page[remote.Group], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return pageOf(d.groups, token, d.pageSize)
}

func (d *stubDirectory) ListGroupMembers(_ context.Context, groupID, token string) (batch.Page[remote.Member], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return pageOf(d.members[groupID], token, d.pageSize)
}

func (d *stubDirectory) AddGroupMember(_ context.Context, groupID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addErr != nil {
		return d.addErr
	}
	d.adds = append(d.adds, membershipChange{groupID: groupID, userID: userID})
	d.members[groupID] = append(d.members[groupID], remote.Member{ID: userID})
	return nil
}

func (d *stubDirectory) RemoveGroupMember(_ context.Context, groupID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removeErr != nil {
		return d.removeErr
	}
	d.removes = append(d.removes, membershipChange{groupID: groupID, userID: userID})
	kept := d.members[groupID][:0]
	for _, m := range d.members[groupID] {
		if m.ID != userID {
			kept = append(kept, m)
		}
	}
	d.members[groupID] = kept
	return nil
}

func (d *stubDirectory) changeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.adds) + len(d.removes)
}

type grantCall struct {
	owner   string
	fileID  string
	grantee string
	notify  bool
}

type moveCall struct {
	owner     string
	fileID    string
	oldParent string
	newParent string
}

type stubFileStore struct {
	mu sync.Mutex

	// rootChildren holds each owner's top-level entries by name.
	rootChildren map[string]map[string]remote.File
	// children holds each folder's contents by folder ID.
	children map[string][]remote.File
	// content holds downloadable bytes by file ID.
	content map[string][]byte

	grants []grantCall
	moves  []moveCall

	createFolderErr error
	nextID          int
	pageSize        int
}

func newStubFileStore() *stubFileStore {
	return &stubFileStore{
		rootChildren: make(map[string]map[string]remote.File),
		children:     make(map[string][]remote.File),
		content:      make(map[string][]byte),
		pageSize:     2,
	}
}

func (s *stubFileStore) addRootEntry(owner string, f remote.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rootChildren[owner] == nil {
		s.rootChildren[owner] = make(map[string]remote.File)
	}
	s.rootChildren[owner][f.Name] = f
}

func (s *stubFileStore) FindChildByName(_ context.Context, owner, parentID, name string) (remote.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parentID == "" {
		if f, ok := s.rootChildren[owner][name]; ok {
			return f, nil
		}
		return remote.File{}, remote.ErrNotFound
	}
	for _, f := range s.children[parentID] {
		if f.Name == name {
			return f, nil
		}
	}
	return remote.File{}, remote.ErrNotFound
}

func (s *stubFileStore) CreateFolder(_ context.Context, owner, parentID, name string) (remote.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createFolderErr != nil {
		return remote.File{}, s.createFolderErr
	}
	s.nextID++
	f := remote.File{ID: fmt.Sprintf("folder-%d", s.nextID), Name: name, Folder: true}
	if parentID == "" {
		if s.rootChildren[owner] == nil {
			s.rootChildren[owner] = make(map[string]remote.File)
		}
		s.rootChildren[owner][name] = f
	} else {
		s.children[parentID] = append(s.children[parentID], f)
	}
	return f, nil
}

func (s *stubFileStore) ListChildren(_ context.Context, _, folderID, token string) (batch.Page[remote.File], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pageOf(s.children[folderID], token, s.pageSize)
}

func (s *stubFileStore) GrantRead(_ context.Context, owner, fileID, granteeEmail string, notify bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, grantCall{owner: owner, fileID: fileID, grantee: granteeEmail, notify: notify})
	return nil
}

func (s *stubFileStore) Move(_ context.Context, owner, fileID, oldParentID, newParentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, moveCall{owner: owner, fileID: fileID, oldParent: oldParentID, newParent: newParentID})
	return nil
}

func (s *stubFileStore) Download(_ context.Context, _, fileID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.content[fileID]; ok {
		return b, nil
	}
	return nil, remote.ErrNotFound
}

type fakeListStore struct {
	mu        sync.Mutex
	lists     map[string][]remote.ListItem
	createErr map[string]error // per-list create failure injection
	updates   int
	nextID    int
	pageSize  int
}

func newFakeListStore() *fakeListStore {
	return &fakeListStore{
		lists:     make(map[string][]remote.ListItem),
		createErr: make(map[string]error),
		pageSize:  2,
	}
}

func (s *fakeListStore) CreateItem(_ context.Context, list string, fields map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[list]; err != nil {
		return "", err
	}
	s.nextID++
	id := fmt.Sprintf("item-%d", s.nextID)
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.lists[list] = append(s.lists[list], remote.ListItem{ID: id, Fields: copied})
	return id, nil
}

func (s *fakeListStore) UpdateItem(_ context.Context, list, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.lists[list] {
		if item.ID == id {
			for k, v := range fields {
				s.lists[list][i].Fields[k] = v
			}
			s.updates++
			return nil
		}
	}
	return fmt.Errorf("no item %s in list %s", id, list)
}

func (s *fakeListStore) QueryItems(_ context.Context, list, token string) (batch.Page[remote.ListItem], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pageOf(s.lists[list], token, s.pageSize)
}

func (s *fakeListStore) items(list string) []remote.ListItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.ListItem, len(s.lists[list]))
	copy(out, s.lists[list])
	return out
}

type stubMailer struct {
	mu   sync.Mutex
	sent []remote.Message
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg remote.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *stubMailer) messages() []remote.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]remote.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

type stubArchiver struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func newStubArchiver() *stubArchiver {
	return &stubArchiver{saved: make(map[string][]byte)}
}

func (a *stubArchiver) Save(_ context.Context, objectName string, content []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.saved[objectName] = content
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Profile:             "test",
		ProjectID:           "test-project",
		GroupTag:            "videosharingflow",
		RosterOwner:         "rosteradmin@example.com",
		RosterFileName:      "UserGroup.xlsx",
		PairsList:           "agentCheckerPairs",
		RecordingsFolder:    "Recordings",
		SharedFolder:        "Shared",
		LinkBaseURL:         "https://files.example.com/personal",
		NotifyOnShare:       false,
		RunLogList:          "functionRunLog",
		SharingErrorList:    "shareVideosErrorLog",
		ReconcilerErrorList: "updateUserGroupErrorLog",
		MailSender:          "noreply@example.com",
		OperatorRecipients:  []string{"ops@example.com"},
		PairWorkers:         2,
		MemberWorkers:       2,
		FileWorkers:         2,
		StaffWorkers:        2,
		NotifyWorkers:       2,
		QueryPageSize:       2,
	}
}

// buildRosterXLSX writes rows (header included) into a single-sheet workbook.
func buildRosterXLSX(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, value := range row {
			cellName, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("failed to name cell: %v", err)
			}
			if err := f.SetCellValue(sheet, cellName, value); err != nil {
				t.Fatalf("failed to set cell: %v", err)
			}
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("failed to serialize workbook: %v", err)
	}
	return buf.Bytes()
}

var rosterHeader = []string{"StaffName", "StaffEmail", "AgentGroup", "CheckerGroup"}

// seedRoster installs a parseable roster spreadsheet in the stub file store.
func seedRoster(t *testing.T, files *stubFileStore, cfg *config.Config, dataRows [][]string, modified time.Time) {
	t.Helper()
	rows := append([][]string{rosterHeader}, dataRows...)
	content := buildRosterXLSX(t, rows)
	files.addRootEntry(cfg.RosterOwner, remote.File{
		ID:         "roster-file",
		Name:       cfg.RosterFileName,
		ModifiedAt: modified,
	})
	files.mu.Lock()
	files.content["roster-file"] = content
	files.mu.Unlock()
}
