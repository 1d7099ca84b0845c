package changeset

import (
	"fmt"
	"strconv"

	"github.com/osmwatch/osmwatch/config"
)

// Validate decides whether a changeset needs review. It only looks at
// the prefetched details, no network access happens here. Changesets
// without details (the download failed) stay valid.
func Validate(cs *Changeset, massDeletionThreshold int, rules []config.SentinelRule) *Validation {
	v := &Validation{
		Status:  StatusValid,
		Reasons: []string{},
		Flags:   []string{},
	}
	if cs.Details == nil {
		return v
	}

	deleted := cs.Details.Deleted.Total()
	if deleted >= massDeletionThreshold {
		v.Status = StatusNeedsReview
		v.Reasons = append(v.Reasons, fmt.Sprintf("Mass deletion detected: %d deletions", deleted))
		v.Flags = append(v.Flags, "mass_deletion")
	}

	for _, rule := range rules {
		count := cs.Details.Sentinels[rule.Flag]
		if count > 0 {
			v.Status = StatusNeedsReview
			v.Reasons = append(v.Reasons, fmt.Sprintf("%s modification detected: %d %s element(s) modified",
				rule.Label, count, rule.Label))
			v.Flags = append(v.Flags, rule.Flag)
		}
	}
	return v
}

// applyValidation attaches the decision and marks mass deletions in the
// changeset tags so downstream sinks can filter on them.
func applyValidation(cs *Changeset, massDeletionThreshold int, rules []config.SentinelRule) {
	cs.Validation = Validate(cs, massDeletionThreshold, rules)
	if !cs.Validation.NeedsReview() || cs.Details == nil {
		return
	}
	deleted := cs.Details.Deleted.Total()
	if deleted >= massDeletionThreshold {
		if cs.Tags == nil {
			cs.Tags = map[string]string{}
		}
		cs.Tags["mass_deletion"] = "yes"
		cs.Tags["deleted_count"] = strconv.Itoa(deleted)
	}
}
