// Package audit keeps a permanent record of changesets that were
// flagged for review, either in a Google Sheet the review team works
// from or in a Postgres table. Audit failures never stop the
// monitoring pipeline, callers log and continue.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/osmwatch/osmwatch/changeset"
	"github.com/osmwatch/osmwatch/log"
)

var logger = log.NewLogger("audit")

// Store records changesets that need review. Implementations skip
// changesets that were recorded before.
type Store interface {
	LogNeedsReview(ctx context.Context, cs *changeset.Changeset, source string) error
}

const statusPending = "Pending"

const (
	maxCommentLen = 100
	maxSourceLen  = 50
)

// header is the fixed column layout shared by all stores.
var header = []string{
	"Logged At",
	"Changeset ID",
	"User",
	"Total Changes",
	"Created",
	"Modified",
	"Deleted",
	"Warning Flags",
	"Comment",
	"Source",
	"Created At",
	"OSM Link",
	"OSMCha Link",
	"Status",
}

func osmLink(id int64) string {
	return fmt.Sprintf("https://www.openstreetmap.org/changeset/%d", id)
}

func osmchaLink(id int64) string {
	return fmt.Sprintf("https://osmcha.org/changesets/%d", id)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func rowCounts(cs *changeset.Changeset) (created, modified, deleted int) {
	if cs.Details == nil {
		return 0, 0, 0
	}
	return cs.Details.Created.Total(), cs.Details.Modified.Total(), cs.Details.Deleted.Total()
}

func warningFlags(cs *changeset.Changeset) string {
	if cs.Validation == nil {
		return ""
	}
	return strings.Join(cs.Validation.Reasons, ", ")
}

func sourceTag(cs *changeset.Changeset) string {
	if s := cs.Tags["source"]; s != "" {
		return truncate(s, maxSourceLen)
	}
	return "Not specified"
}

// buildRow renders one changeset into the column layout of header.
func buildRow(cs *changeset.Changeset, loggedAt time.Time) []string {
	created, modified, deleted := rowCounts(cs)
	return []string{
		loggedAt.Format("2006-01-02 15:04:05"),
		strconv.FormatInt(cs.ID, 10),
		cs.User,
		strconv.Itoa(created + modified + deleted),
		strconv.Itoa(created),
		strconv.Itoa(modified),
		strconv.Itoa(deleted),
		warningFlags(cs),
		truncate(cs.Comment, maxCommentLen),
		sourceTag(cs),
		cs.CreatedAt.Format(time.RFC3339),
		osmLink(cs.ID),
		osmchaLink(cs.ID),
		statusPending,
	}
}

// Multi fans out to several stores, e.g. a sheet for the review team
// and a database for reporting. Errors are collected, every store
// still sees the changeset.
type Multi []Store

func (m Multi) LogNeedsReview(ctx context.Context, cs *changeset.Changeset, source string) error {
	var firstErr error
	for _, s := range m {
		if err := s.LogNeedsReview(ctx, cs, source); err != nil {
			logger.Errorf("audit store: %s", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
