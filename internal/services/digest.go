package services

import (
	"sort"
	"sync"

	"github.com/cwleong/videosharingflow/internal/models"
)

// DigestSet accumulates per-reviewer share records across the whole run.
// Pairing is nominally 1:1 reviewer-to-pair, but the map guards itself so
// concurrent appends from any pair are safe regardless.
type DigestSet struct {
	mu         sync.Mutex
	byReviewer map[string]*models.ReviewerDigest
}

func NewDigestSet() *DigestSet {
	return &DigestSet{byReviewer: make(map[string]*models.ReviewerDigest)}
}

// Append records one shared file for the reviewer.
func (d *DigestSet) Append(reviewerEmail, listName string, rec models.ShareRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	digest, ok := d.byReviewer[reviewerEmail]
	if !ok {
		digest = &models.ReviewerDigest{ReviewerEmail: reviewerEmail, ListName: listName}
		d.byReviewer[reviewerEmail] = digest
	}
	digest.Records = append(digest.Records, rec)
}

// Digests returns every accumulated digest, ordered by reviewer email for
// stable notification dispatch. Every returned digest has at least one
// record, since only successful shares append.
func (d *DigestSet) Digests() []*models.ReviewerDigest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*models.ReviewerDigest, 0, len(d.byReviewer))
	for _, digest := range d.byReviewer {
		out = append(out, digest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewerEmail < out[j].ReviewerEmail })
	return out
}
