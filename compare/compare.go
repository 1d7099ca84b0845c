// Package compare builds before/after views of a changeset: every
// element action with its tags and a mappable location, old versions of
// modified elements, and reconstructed geometry for deleted ways.
package compare

import (
	"time"

	osm "github.com/omniscale/go-osm"

	"github.com/osmwatch/osmwatch/log"
)

var logger = log.NewLogger("compare")

const (
	// Old versions of modified elements are fetched for the first
	// maxPreviousVersions elements only to keep large changesets
	// responsive.
	maxPreviousVersions = 100

	resultTTL = time.Hour
)

// Member mirrors a relation member of the change document.
type Member struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

func memberType(t osm.MemberType) string {
	switch t {
	case osm.WayMember:
		return "way"
	case osm.RelationMember:
		return "relation"
	}
	return "node"
}

// Element is one changed element. Lat/Lon is the map marker position,
// nil when it could not be determined. Geometry is a lat/lon vertex
// list and only set when at least two vertices are known. The Old
// fields are only set on modified elements whose previous version was
// fetched.
type Element struct {
	Type    string            `json:"type"`
	ID      int64             `json:"id"`
	Action  string            `json:"action"`
	Version int               `json:"version"`
	Lat     *float64          `json:"lat"`
	Lon     *float64          `json:"lon"`
	Tags    map[string]string `json:"tags"`
	Nodes   []int64           `json:"nodes"`
	Members []Member          `json:"members"`

	Geometry    [][2]float64      `json:"geometry,omitempty"`
	OldTags     map[string]string `json:"old_tags,omitempty"`
	OldLat      *float64          `json:"old_lat,omitempty"`
	OldLon      *float64          `json:"old_lon,omitempty"`
	OldNodes    []int64           `json:"old_nodes,omitempty"`
	OldGeometry [][2]float64      `json:"old_geometry,omitempty"`
}

type Comparison struct {
	Created  []*Element `json:"created"`
	Modified []*Element `json:"modified"`
	Deleted  []*Element `json:"deleted"`
}

func fromDiff(d osm.Diff, action string) *Element {
	e := &Element{
		Action:  action,
		Tags:    map[string]string{},
		Nodes:   []int64{},
		Members: []Member{},
	}
	var elem *osm.Element
	switch {
	case d.Node != nil:
		e.Type = "node"
		e.ID = d.Node.ID
		lat, lon := d.Node.Lat, d.Node.Long
		if lat != 0 || lon != 0 {
			e.Lat, e.Lon = &lat, &lon
		}
		elem = &d.Node.Element
	case d.Way != nil:
		e.Type = "way"
		e.ID = d.Way.ID
		e.Nodes = append(e.Nodes, d.Way.Refs...)
		elem = &d.Way.Element
	case d.Rel != nil:
		e.Type = "relation"
		e.ID = d.Rel.ID
		for _, m := range d.Rel.Members {
			e.Members = append(e.Members, Member{Type: memberType(m.Type), Ref: m.ID, Role: m.Role})
		}
		elem = &d.Rel.Element
	default:
		return nil
	}
	for k, v := range elem.Tags {
		e.Tags[k] = v
	}
	if elem.Metadata != nil {
		e.Version = int(elem.Metadata.Version)
	}
	return e
}

// nodeCoords collects the position of every node that appears in the
// change document. Deleted elements in the document carry no
// coordinates, everything else does.
func nodeCoords(elements []osm.Diff) map[int64][2]float64 {
	coords := map[int64][2]float64{}
	for _, d := range elements {
		if d.Node == nil {
			continue
		}
		if d.Node.Lat == 0 && d.Node.Long == 0 {
			continue
		}
		coords[d.Node.ID] = [2]float64{d.Node.Lat, d.Node.Long}
	}
	return coords
}

// wayGeometry resolves a way's node refs against known coordinates and
// returns the vertex list with the unweighted centroid. Geometry is nil
// unless at least two vertices resolved.
func wayGeometry(refs []int64, coords map[int64][2]float64) (geometry [][2]float64, lat, lon float64, ok bool) {
	vertices := [][2]float64{}
	sumLat, sumLon := 0.0, 0.0
	for _, ref := range refs {
		c, found := coords[ref]
		if !found {
			continue
		}
		vertices = append(vertices, c)
		sumLat += c[0]
		sumLon += c[1]
	}
	if len(vertices) == 0 {
		return nil, 0, 0, false
	}
	lat = sumLat / float64(len(vertices))
	lon = sumLon / float64(len(vertices))
	if len(vertices) > 1 {
		geometry = vertices
	}
	return geometry, lat, lon, true
}

func applyWayGeometry(e *Element, coords map[int64][2]float64) {
	if e.Lat != nil || e.Type != "way" || len(e.Nodes) == 0 {
		return
	}
	geometry, lat, lon, ok := wayGeometry(e.Nodes, coords)
	if !ok {
		return
	}
	e.Lat, e.Lon = &lat, &lon
	e.Geometry = geometry
}
