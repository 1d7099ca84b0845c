package changeset

import (
	"sort"
	"time"
)

// Timeline holds hourly buckets of edit activity, oldest bucket first.
type Timeline struct {
	Labels   []string `json:"labels"`
	Created  []int    `json:"created"`
	Modified []int    `json:"modified"`
	Deleted  []int    `json:"deleted"`
}

type EditTotals struct {
	Created  int `json:"created"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
}

type ElementBreakdown struct {
	Created  Counts `json:"created"`
	Modified Counts `json:"modified"`
	Deleted  Counts `json:"deleted"`
}

// ReviewContributor counts the changesets of one user that need review.
type ReviewContributor struct {
	User       string `json:"user"`
	Changesets int    `json:"changesets"`
}

type Summary struct {
	TotalChangesets     int        `json:"total_changesets"`
	TotalEdits          int        `json:"total_edits"`
	Breakdown           EditTotals `json:"breakdown"`
	UniqueContributors  int        `json:"unique_contributors"`
	NeedsReview         int        `json:"needs_review"`
	MostActiveHour      string     `json:"most_active_hour,omitempty"`
	TopContributor      string     `json:"top_contributor,omitempty"`
	TopContributorCount int        `json:"top_contributor_count"`
}

type AnalyticsData struct {
	Timeline     Timeline            `json:"timeline"`
	EditType     EditTotals          `json:"editType"`
	ElementType  ElementBreakdown    `json:"elementType"`
	Contributors []ReviewContributor `json:"contributors"`
	Validation   ValidationCounts    `json:"validation"`
	Summary      Summary             `json:"summary"`
}

func addCounts(dst *Counts, src Counts) {
	dst.Nodes += src.Nodes
	dst.Ways += src.Ways
	dst.Relations += src.Relations
}

// Analytics aggregates a fetched set of changesets into the chart data
// of the dashboard. Only changesets created after cutoff are included,
// bucketed per hour.
func Analytics(changesets []*Changeset, cutoff time.Time) *AnalyticsData {
	recent := []*Changeset{}
	for _, cs := range changesets {
		if !cs.CreatedAt.Before(cutoff) {
			recent = append(recent, cs)
		}
	}

	data := &AnalyticsData{Contributors: []ReviewContributor{}}

	type bucketCounts struct {
		created, modified, deleted int
	}
	buckets := map[time.Time]*bucketCounts{}
	hourly := map[string]int{}

	for _, cs := range recent {
		hour := cs.CreatedAt.UTC().Truncate(time.Hour)
		b, ok := buckets[hour]
		if !ok {
			b = &bucketCounts{}
			buckets[hour] = b
		}
		hourly[hour.Format("15:00")]++

		if cs.Details == nil {
			continue
		}
		b.created += cs.Details.Created.Total()
		b.modified += cs.Details.Modified.Total()
		b.deleted += cs.Details.Deleted.Total()

		data.EditType.Created += cs.Details.Created.Total()
		data.EditType.Modified += cs.Details.Modified.Total()
		data.EditType.Deleted += cs.Details.Deleted.Total()
		addCounts(&data.ElementType.Created, cs.Details.Created)
		addCounts(&data.ElementType.Modified, cs.Details.Modified)
		addCounts(&data.ElementType.Deleted, cs.Details.Deleted)
	}

	hours := make([]time.Time, 0, len(buckets))
	for hour := range buckets {
		hours = append(hours, hour)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	data.Timeline = Timeline{
		Labels:   make([]string, 0, len(hours)),
		Created:  make([]int, 0, len(hours)),
		Modified: make([]int, 0, len(hours)),
		Deleted:  make([]int, 0, len(hours)),
	}
	for _, hour := range hours {
		b := buckets[hour]
		data.Timeline.Labels = append(data.Timeline.Labels, hour.Format("15:04"))
		data.Timeline.Created = append(data.Timeline.Created, b.created)
		data.Timeline.Modified = append(data.Timeline.Modified, b.modified)
		data.Timeline.Deleted = append(data.Timeline.Deleted, b.deleted)
	}

	reviewByUser := map[string]int{}
	reviewUsers := []string{}
	uniqueUsers := map[string]struct{}{}
	for _, cs := range recent {
		uniqueUsers[cs.User] = struct{}{}
		if !cs.Validation.NeedsReview() {
			continue
		}
		data.Validation.NeedsReview++
		if cs.User == "" || cs.User == "Unknown" {
			continue
		}
		if _, ok := reviewByUser[cs.User]; !ok {
			reviewUsers = append(reviewUsers, cs.User)
		}
		reviewByUser[cs.User]++
	}
	data.Validation.Valid = len(recent) - data.Validation.NeedsReview

	sort.SliceStable(reviewUsers, func(i, j int) bool {
		return reviewByUser[reviewUsers[i]] > reviewByUser[reviewUsers[j]]
	})
	if len(reviewUsers) > 10 {
		reviewUsers = reviewUsers[:10]
	}
	for _, user := range reviewUsers {
		data.Contributors = append(data.Contributors, ReviewContributor{User: user, Changesets: reviewByUser[user]})
	}

	mostActiveHour := ""
	mostActive := 0
	for hour, n := range hourly {
		if n > mostActive || (n == mostActive && hour < mostActiveHour) {
			mostActiveHour = hour
			mostActive = n
		}
	}

	data.Summary = Summary{
		TotalChangesets:    len(recent),
		TotalEdits:         data.EditType.Created + data.EditType.Modified + data.EditType.Deleted,
		Breakdown:          data.EditType,
		UniqueContributors: len(uniqueUsers),
		NeedsReview:        data.Validation.NeedsReview,
		MostActiveHour:     mostActiveHour,
	}
	if len(data.Contributors) > 0 {
		data.Summary.TopContributor = data.Contributors[0].User
		data.Summary.TopContributorCount = data.Contributors[0].Changesets
	}
	return data
}
