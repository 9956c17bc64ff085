package models

// DesiredAssignment is one parsed row of the roster spreadsheet: the groups a
// staff member should belong to. Blank group names mean the member belongs to
// no eligible group. Rows are immutable once parsed and live for one run.
type DesiredAssignment struct {
	SequenceID    int
	StaffName     string
	StaffEmail    string
	UploaderGroup string
	ReviewerGroup string
}

// GroupRoster is the fresh point-in-time snapshot of one eligible directory
// group, taken once at run start. Reconciliation correctness depends on this
// snapshot, not on any incremental history.
type GroupRoster struct {
	GroupID   string
	GroupName string
	Members   map[string]struct{} // member IDs
}

// HasMember reports whether the snapshot contains the given member ID.
func (r GroupRoster) HasMember(id string) bool {
	_, ok := r.Members[id]
	return ok
}

// MembershipOpKind discriminates the two converge mutations.
type MembershipOpKind string

const (
	OpAdd    MembershipOpKind = "add"
	OpRemove MembershipOpKind = "remove"
)

// MembershipOp is a single add/remove derived by the reconciler. Ops are
// computed, applied and discarded; they are never persisted.
type MembershipOp struct {
	StaffID string
	GroupID string
	Kind    MembershipOpKind
}
