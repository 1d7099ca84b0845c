// Package changeset implements the monitoring pipeline: fetching
// recent changesets of a region, enriching them with their change
// documents, validating them, and aggregating statistics.
package changeset

import (
	"encoding/json"
	"time"

	"github.com/osmwatch/osmwatch/log"
)

var logger = log.NewLogger("changeset")

const (
	StatusValid       = "valid"
	StatusNeedsReview = "needs_review"
)

// BBox is the extent of a changeset. A nil *BBox means the API
// reported none, i.e. the changeset touched no geometry.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Counts holds per element type counts for one action.
type Counts struct {
	Nodes     int `json:"node"`
	Ways      int `json:"way"`
	Relations int `json:"relation"`
}

func (c Counts) Total() int {
	return c.Nodes + c.Ways + c.Relations
}

// Details are derived from a changeset's change document. Sentinels
// counts elements matched per sentinel rule flag.
type Details struct {
	Created   Counts
	Modified  Counts
	Deleted   Counts
	Sentinels map[string]int
}

func (d *Details) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"created":        d.Created,
		"modified":       d.Modified,
		"deleted":        d.Deleted,
		"total_created":  d.Created.Total(),
		"total_modified": d.Modified.Total(),
		"total_deleted":  d.Deleted.Total(),
	})
}

// Validation is the review decision for a single changeset.
type Validation struct {
	Status  string   `json:"status"`
	Reasons []string `json:"reasons"`
	Flags   []string `json:"flags"`
}

func (v *Validation) NeedsReview() bool {
	return v != nil && v.Status == StatusNeedsReview
}

// Changeset is one monitored changeset with everything the dashboard
// and the notification sink need.
type Changeset struct {
	ID         int64             `json:"id"`
	User       string            `json:"user"`
	UID        int64             `json:"uid"`
	CreatedAt  time.Time         `json:"created_at"`
	ClosedAt   time.Time         `json:"closed_at"`
	NumChanges int               `json:"num_changes"`
	Comment    string            `json:"comment"`
	CreatedBy  string            `json:"created_by"`
	BBox       *BBox             `json:"bbox"`
	Tags       map[string]string `json:"tags"`
	Details    *Details          `json:"details,omitempty"`
	Validation *Validation       `json:"validation,omitempty"`
}
