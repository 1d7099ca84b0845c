package region

import (
	"os"
	"path/filepath"
	"testing"
)

const testRegions = `{
  "defaultRegion": "singapore",
  "regions": {
    "singapore": {
      "name": "Singapore",
      "bbox": "103.56,1.13,104.14,1.48",
      "polygonShapely": [[103.6,1.15],[104.1,1.15],[104.1,1.45],[103.6,1.45]]
    },
    "splitland": {
      "name": "Splitland",
      "bbox": "0,0,20,10",
      "isMultiPolygon": true,
      "polygonShapely": [
        [[0,0],[5,0],[5,5],[0,5]],
        [[10,0],[15,0],[15,5],[10,5]]
      ]
    },
    "nopoly": {
      "name": "No Polygon",
      "bbox": "10,10,20,20"
    }
  }
}`

func loadTestSet(t *testing.T) *Set {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "regions.json")
	if err := os.WriteFile(fname, []byte(testRegions), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(fname)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoadDefaultRegion(t *testing.T) {
	s := loadTestSet(t)
	if s.DefaultID() != "singapore" {
		t.Errorf("got default %q, want singapore", s.DefaultID())
	}
	r, ok := s.Get("")
	if !ok || r.ID != "singapore" {
		t.Errorf("empty id did not resolve to default region")
	}
	if _, ok := s.Get("atlantis"); ok {
		t.Error("unknown region resolved")
	}
}

func TestRegionBBox(t *testing.T) {
	s := loadTestSet(t)
	r, _ := s.Get("singapore")
	minLon, minLat, maxLon, maxLat, err := r.BBox()
	if err != nil {
		t.Fatal(err)
	}
	if minLon != 103.56 || minLat != 1.13 || maxLon != 104.14 || maxLat != 1.48 {
		t.Errorf("got bbox %v,%v,%v,%v", minLon, minLat, maxLon, maxLat)
	}
}

func TestContainsMidpoint(t *testing.T) {
	s := loadTestSet(t)
	r, _ := s.Get("singapore")

	// midpoint inside even though the bounds poke out of the polygon
	if !r.Contains(103.5, 1.2, 104.0, 1.3) {
		t.Error("midpoint inside polygon not contained")
	}
	// bounds overlap the polygon but the midpoint is outside
	if r.Contains(104.05, 1.4, 104.5, 1.6) {
		t.Error("midpoint outside polygon contained")
	}
}

func TestContainsMultiPolygon(t *testing.T) {
	s := loadTestSet(t)
	r, _ := s.Get("splitland")

	if !r.Contains(1, 1, 3, 3) {
		t.Error("midpoint in first part not contained")
	}
	if !r.Contains(11, 1, 13, 3) {
		t.Error("midpoint in second part not contained")
	}
	// midpoint in the gap between the parts
	if r.Contains(6, 1, 9, 3) {
		t.Error("midpoint between parts contained")
	}
}

func TestContainsWithoutPolygon(t *testing.T) {
	s := loadTestSet(t)
	r, _ := s.Get("nopoly")
	if r.HasPolygon() {
		t.Fatal("expected no polygon")
	}
	if !r.Contains(50, 50, 60, 60) {
		t.Error("region without polygon must contain everything")
	}
}

func TestUnknownDefaultFallsBack(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "regions.json")
	content := `{"defaultRegion": "missing", "regions": {"only": {"name": "Only", "bbox": "0,0,1,1"}}}`
	if err := os.WriteFile(fname, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(fname)
	if err != nil {
		t.Fatal(err)
	}
	if s.DefaultID() != "only" {
		t.Errorf("got default %q, want only", s.DefaultID())
	}
}

func TestSetDefault(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "regions.json")
	if err := os.WriteFile(fname, []byte(testRegions), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(fname)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetDefault("atlantis"); err == nil {
		t.Error("unknown region accepted as default")
	}
	if err := s.SetDefault("nopoly"); err != nil {
		t.Fatal(err)
	}
	if s.DefaultID() != "nopoly" {
		t.Errorf("got default %q, want nopoly", s.DefaultID())
	}
	r, ok := s.Get("")
	if !ok || r.ID != "nopoly" {
		t.Error("empty id did not resolve to overridden default")
	}

	// the override must survive a reload of the file
	if err := s.reload(); err != nil {
		t.Fatal(err)
	}
	if s.DefaultID() != "nopoly" {
		t.Errorf("got default %q after reload, want nopoly", s.DefaultID())
	}
}

func TestLoadRejectsInvalidBBox(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "regions.json")
	content := `{"defaultRegion": "bad", "regions": {"bad": {"name": "Bad", "bbox": "103.56,1.13,104.14"}}}`
	if err := os.WriteFile(fname, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(fname); err == nil {
		t.Fatal("expected error for invalid bbox")
	}
}

func TestReload(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "regions.json")
	if err := os.WriteFile(fname, []byte(testRegions), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(fname)
	if err != nil {
		t.Fatal(err)
	}
	updated := `{"defaultRegion": "jakarta", "regions": {"jakarta": {"name": "Jakarta", "bbox": "106.6,-6.4,107.0,-6.0"}}}`
	if err := os.WriteFile(fname, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.reload(); err != nil {
		t.Fatal(err)
	}
	if s.DefaultID() != "jakarta" {
		t.Errorf("got default %q after reload, want jakarta", s.DefaultID())
	}
	if _, ok := s.Get("singapore"); ok {
		t.Error("stale region survived reload")
	}
}
