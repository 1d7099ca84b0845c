package changeset

import (
	"fmt"
	"testing"

	osm "github.com/omniscale/go-osm"

	"github.com/osmwatch/osmwatch/config"
)

func node(tags map[string]string) osm.Diff {
	return osm.Diff{Node: &osm.Node{Element: osm.Element{Tags: tags}}}
}

func TestBuildDetailsCounts(t *testing.T) {
	elements := []osm.Diff{
		{Create: true, Node: &osm.Node{}},
		{Create: true, Way: &osm.Way{}},
		{Modify: true, Node: &osm.Node{}},
		{Modify: true, Rel: &osm.Relation{}},
		{Delete: true, Node: &osm.Node{}},
		{Delete: true, Node: &osm.Node{}},
		{Delete: true, Way: &osm.Way{}},
	}
	details := BuildDetails(elements, config.DefaultSentinelRules)
	if details.Created.Nodes != 1 || details.Created.Ways != 1 || details.Created.Total() != 2 {
		t.Errorf("unexpected created counts: %+v", details.Created)
	}
	if details.Modified.Relations != 1 || details.Modified.Total() != 2 {
		t.Errorf("unexpected modified counts: %+v", details.Modified)
	}
	if details.Deleted.Nodes != 2 || details.Deleted.Ways != 1 || details.Deleted.Total() != 3 {
		t.Errorf("unexpected deleted counts: %+v", details.Deleted)
	}
}

func TestBuildDetailsSentinels(t *testing.T) {
	modify := func(d osm.Diff) osm.Diff {
		d.Modify = true
		return d
	}
	elements := []osm.Diff{
		modify(node(map[string]string{"name": "ERP", "amenity": "toll"})),
		modify(node(map[string]string{"name": "Some Road"})),
		modify(node(map[string]string{"name": "ERP"})),
		{Delete: true, Way: &osm.Way{Element: osm.Element{Tags: map[string]string{"name": "ERP"}}}},
	}
	details := BuildDetails(elements, config.DefaultSentinelRules)
	if details.Sentinels["erp"] != 3 {
		t.Errorf("got %d sentinel matches, want 3", details.Sentinels["erp"])
	}
}

func TestValidateMassDeletionBoundary(t *testing.T) {
	for _, tt := range []struct {
		deleted     int
		needsReview bool
	}{
		{0, false},
		{49, false},
		{50, true},
		{120, true},
	} {
		cs := &Changeset{ID: 1, Details: &Details{
			Deleted:   Counts{Nodes: tt.deleted},
			Sentinels: map[string]int{},
		}}
		v := Validate(cs, 50, config.DefaultSentinelRules)
		if v.NeedsReview() != tt.needsReview {
			t.Errorf("deleted=%d: needsReview=%v, want %v", tt.deleted, v.NeedsReview(), tt.needsReview)
		}
		if tt.needsReview {
			want := fmt.Sprintf("Mass deletion detected: %d deletions", tt.deleted)
			if len(v.Reasons) != 1 || v.Reasons[0] != want {
				t.Errorf("deleted=%d: unexpected reasons %v", tt.deleted, v.Reasons)
			}
			if len(v.Flags) != 1 || v.Flags[0] != "mass_deletion" {
				t.Errorf("deleted=%d: unexpected flags %v", tt.deleted, v.Flags)
			}
		}
	}
}

func TestValidateSentinel(t *testing.T) {
	cs := &Changeset{ID: 2, Details: &Details{
		Sentinels: map[string]int{"erp": 2},
	}}
	v := Validate(cs, 50, config.DefaultSentinelRules)
	if !v.NeedsReview() {
		t.Fatal("sentinel match did not trigger review")
	}
	if v.Reasons[0] != "ERP modification detected: 2 ERP element(s) modified" {
		t.Errorf("unexpected reason %q", v.Reasons[0])
	}
	if v.Flags[0] != "erp" {
		t.Errorf("unexpected flag %q", v.Flags[0])
	}
}

func TestValidateWithoutDetails(t *testing.T) {
	cs := &Changeset{ID: 3}
	v := Validate(cs, 50, config.DefaultSentinelRules)
	if v.NeedsReview() {
		t.Error("changeset without details must stay valid")
	}
}

func TestValidateIsPure(t *testing.T) {
	cs := &Changeset{ID: 4, Details: &Details{
		Deleted:   Counts{Nodes: 60},
		Sentinels: map[string]int{"erp": 1},
	}}
	first := Validate(cs, 50, config.DefaultSentinelRules)
	second := Validate(cs, 50, config.DefaultSentinelRules)
	if len(first.Reasons) != len(second.Reasons) || first.Status != second.Status {
		t.Error("repeated validation differs")
	}
	if cs.Validation != nil || len(cs.Tags) != 0 {
		t.Error("Validate mutated the changeset")
	}
}

func TestApplyValidationTags(t *testing.T) {
	cs := &Changeset{ID: 5, Details: &Details{
		Deleted:   Counts{Nodes: 70, Ways: 5},
		Sentinels: map[string]int{},
	}}
	applyValidation(cs, 50, config.DefaultSentinelRules)
	if !cs.Validation.NeedsReview() {
		t.Fatal("expected needs_review")
	}
	if cs.Tags["mass_deletion"] != "yes" || cs.Tags["deleted_count"] != "75" {
		t.Errorf("unexpected tags: %v", cs.Tags)
	}
}
