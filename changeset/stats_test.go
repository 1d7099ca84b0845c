package changeset

import (
	"testing"
	"time"
)

func reviewed(status string) *Validation {
	return &Validation{Status: status}
}

func TestStatisticsEmpty(t *testing.T) {
	stats := Statistics(nil, 24)
	if stats.TotalChangesets != 0 || stats.TotalChanges != 0 || stats.UniqueUsers != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.TopContributors == nil || len(stats.TopContributors) != 0 {
		t.Errorf("expected empty contributor list, got %v", stats.TopContributors)
	}
}

func TestStatisticsAggregation(t *testing.T) {
	changesets := []*Changeset{
		{User: "alice", NumChanges: 10, Validation: reviewed(StatusValid)},
		{User: "alice", NumChanges: 5, Validation: reviewed(StatusNeedsReview)},
		{User: "bob", NumChanges: 20, Validation: reviewed(StatusValid)},
		{User: "carol", NumChanges: 1, Validation: reviewed(StatusValid)},
		{User: "alice", NumChanges: 2, Validation: reviewed(StatusValid)},
	}
	stats := Statistics(changesets, 24)
	if stats.TotalChangesets != 5 || stats.TotalChanges != 38 || stats.UniqueUsers != 3 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.Validation.Valid != 4 || stats.Validation.NeedsReview != 1 {
		t.Errorf("unexpected validation counts: %+v", stats.Validation)
	}
	if stats.TimeRangeHours != 24 {
		t.Errorf("got time range %d", stats.TimeRangeHours)
	}
	if len(stats.TopContributors) != 3 {
		t.Fatalf("got %d contributors", len(stats.TopContributors))
	}
	top := stats.TopContributors[0]
	if top.User != "alice" || top.Changesets != 3 || top.TotalChanges != 17 {
		t.Errorf("unexpected top contributor: %+v", top)
	}
}

func TestAnalyticsTimelineAndContributors(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	details := func(created, modified, deleted int) *Details {
		return &Details{
			Created:   Counts{Nodes: created},
			Modified:  Counts{Ways: modified},
			Deleted:   Counts{Nodes: deleted},
			Sentinels: map[string]int{},
		}
	}
	changesets := []*Changeset{
		{User: "alice", CreatedAt: base.Add(10 * time.Minute), Details: details(3, 1, 0), Validation: reviewed(StatusNeedsReview)},
		{User: "bob", CreatedAt: base.Add(30 * time.Minute), Details: details(1, 0, 2), Validation: reviewed(StatusValid)},
		{User: "alice", CreatedAt: base.Add(90 * time.Minute), Details: details(0, 4, 0), Validation: reviewed(StatusNeedsReview)},
		// before the cutoff, must be ignored
		{User: "mallory", CreatedAt: base.Add(-2 * time.Hour), Details: details(9, 9, 9), Validation: reviewed(StatusNeedsReview)},
	}

	data := Analytics(changesets, base.Add(-time.Hour))
	if data.Summary.TotalChangesets != 3 {
		t.Fatalf("got %d changesets, want 3", data.Summary.TotalChangesets)
	}
	if len(data.Timeline.Labels) != 2 {
		t.Fatalf("got %d timeline buckets, want 2", len(data.Timeline.Labels))
	}
	if data.Timeline.Labels[0] != "10:00" || data.Timeline.Labels[1] != "11:00" {
		t.Errorf("unexpected labels: %v", data.Timeline.Labels)
	}
	if data.Timeline.Created[0] != 4 || data.Timeline.Deleted[0] != 2 || data.Timeline.Modified[1] != 4 {
		t.Errorf("unexpected timeline: %+v", data.Timeline)
	}
	if data.EditType.Created != 4 || data.EditType.Modified != 5 || data.EditType.Deleted != 2 {
		t.Errorf("unexpected edit totals: %+v", data.EditType)
	}
	if data.ElementType.Modified.Ways != 5 {
		t.Errorf("unexpected element breakdown: %+v", data.ElementType)
	}
	if data.Validation.NeedsReview != 2 || data.Validation.Valid != 1 {
		t.Errorf("unexpected validation counts: %+v", data.Validation)
	}
	if len(data.Contributors) != 1 || data.Contributors[0].User != "alice" || data.Contributors[0].Changesets != 2 {
		t.Errorf("unexpected contributors: %v", data.Contributors)
	}
	if data.Summary.MostActiveHour != "10:00" {
		t.Errorf("got most active hour %q", data.Summary.MostActiveHour)
	}
	if data.Summary.TopContributor != "alice" || data.Summary.TopContributorCount != 2 {
		t.Errorf("unexpected summary: %+v", data.Summary)
	}
	if data.Summary.TotalEdits != 11 {
		t.Errorf("got %d total edits", data.Summary.TotalEdits)
	}
}
