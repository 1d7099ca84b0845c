package changeset

import "sort"

// Contributor is one entry of the top contributor list.
type Contributor struct {
	User         string `json:"user"`
	Changesets   int    `json:"changesets"`
	TotalChanges int    `json:"total_changes"`
}

type ValidationCounts struct {
	Valid       int `json:"valid"`
	NeedsReview int `json:"needs_review"`
}

type Stats struct {
	TotalChangesets int              `json:"total_changesets"`
	TotalChanges    int              `json:"total_changes"`
	UniqueUsers     int              `json:"unique_users"`
	TopContributors []Contributor    `json:"top_contributors"`
	Validation      ValidationCounts `json:"validation"`
	TimeRangeHours  int              `json:"time_range_hours"`
}

// Statistics aggregates a set of fetched changesets. Contributors are
// ranked by changeset count, the top ten are kept.
func Statistics(changesets []*Changeset, timeRangeHours int) *Stats {
	stats := &Stats{
		TopContributors: []Contributor{},
		TimeRangeHours:  timeRangeHours,
	}
	if len(changesets) == 0 {
		return stats
	}

	byUser := map[string]*Contributor{}
	users := []string{}
	for _, cs := range changesets {
		stats.TotalChanges += cs.NumChanges
		if cs.Validation.NeedsReview() {
			stats.Validation.NeedsReview++
		} else {
			stats.Validation.Valid++
		}
		c, ok := byUser[cs.User]
		if !ok {
			c = &Contributor{User: cs.User}
			byUser[cs.User] = c
			users = append(users, cs.User)
		}
		c.Changesets++
		c.TotalChanges += cs.NumChanges
	}

	stats.TotalChangesets = len(changesets)
	stats.UniqueUsers = len(byUser)

	contributors := make([]Contributor, 0, len(byUser))
	for _, user := range users {
		contributors = append(contributors, *byUser[user])
	}
	sort.SliceStable(contributors, func(i, j int) bool {
		return contributors[i].Changesets > contributors[j].Changesets
	})
	if len(contributors) > 10 {
		contributors = contributors[:10]
	}
	stats.TopContributors = contributors
	return stats
}
