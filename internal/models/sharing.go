package models

import "strings"

// AgentCheckerPair links an uploader (agent) group to the reviewer (checker)
// who receives its members' recordings, plus the tracking list the shares are
// logged to. Rows come from the pair registry list store.
type AgentCheckerPair struct {
	PairID           string
	TrackingListName string
	AgentGroupEmail  string
	CheckerEmail     string
}

// Validate reports whether all three fields are usable. Invalid pairs are
// item-level errors, never fatal to the run.
func (p AgentCheckerPair) Validate() error {
	switch {
	case strings.TrimSpace(p.TrackingListName) == "":
		return errBlankField("tracking list name")
	case strings.TrimSpace(p.AgentGroupEmail) == "":
		return errBlankField("agent group email")
	case strings.TrimSpace(p.CheckerEmail) == "":
		return errBlankField("checker email")
	}
	return nil
}

type errBlankField string

func (e errBlankField) Error() string { return "pair registry row has blank " + string(e) }

// ShareRecord captures one successfully shared recording. Created once, never
// mutated, appended to the reviewer's digest.
type ShareRecord struct {
	FileName string
	Link     string
	Duration string // zero-padded HH:MM:SS
}

// ReviewerDigest accumulates every ShareRecord destined for one reviewer
// across the whole run. A digest with no records suppresses notification.
type ReviewerDigest struct {
	ReviewerEmail string
	ListName      string
	Records       []ShareRecord
}
