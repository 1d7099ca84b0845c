// Package region resolves which monitoring region a changeset belongs
// to. Regions are loaded from a JSON file and carry a bounding box for
// API queries plus an optional polygon for precise containment checks.
package region

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"

	"github.com/osmwatch/osmwatch/log"
)

var logger = log.NewLogger("region")

// Info is the serializable part of a region's configuration, as stored
// in the regions file and exposed over the HTTP API.
type Info struct {
	Name           string          `json:"name"`
	BBox           string          `json:"bbox"`
	Polygon        json.RawMessage `json:"polygonShapely,omitempty"`
	IsMultiPolygon bool            `json:"isMultiPolygon,omitempty"`
}

type regionsFile struct {
	DefaultRegion string          `json:"defaultRegion"`
	Regions       map[string]Info `json:"regions"`
}

// Region is a single monitoring area. The polygon is nil when the
// configuration provides none or fewer than three vertices, in which
// case the region accepts every changeset.
type Region struct {
	ID      string
	Info    Info
	polygon orb.Geometry
}

// BBox returns the region's query bounding box as
// minLon, minLat, maxLon, maxLat.
func (r *Region) BBox() (minLon, minLat, maxLon, maxLat float64, err error) {
	parts := strings.Split(r.Info.BBox, ",")
	if len(parts) != 4 {
		err = errors.Errorf("region %s: invalid bbox %q", r.ID, r.Info.BBox)
		return
	}
	vals := [4]float64{}
	for i, p := range parts {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			err = errors.Wrapf(err, "region %s: invalid bbox %q", r.ID, r.Info.BBox)
			return
		}
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

// Contains reports whether the midpoint of the given bounds lies within
// the region's polygon. A region without polygon contains everything.
func (r *Region) Contains(minLon, minLat, maxLon, maxLat float64) bool {
	if r.polygon == nil {
		return true
	}
	p := orb.Point{(minLon + maxLon) / 2, (minLat + maxLat) / 2}
	switch geom := r.polygon.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p)
	}
	return true
}

// HasPolygon reports whether containment checks are effective for this
// region.
func (r *Region) HasPolygon() bool {
	return r.polygon != nil
}

func buildPolygon(info Info) (orb.Geometry, error) {
	if len(info.Polygon) == 0 {
		return nil, nil
	}
	if info.IsMultiPolygon {
		var coords [][][2]float64
		if err := json.Unmarshal(info.Polygon, &coords); err != nil {
			return nil, errors.Wrap(err, "parsing multipolygon coordinates")
		}
		mp := orb.MultiPolygon{}
		for _, polyCoords := range coords {
			if len(polyCoords) < 3 {
				continue
			}
			mp = append(mp, orb.Polygon{ring(polyCoords)})
		}
		if len(mp) == 0 {
			return nil, nil
		}
		return mp, nil
	}
	var coords [][2]float64
	if err := json.Unmarshal(info.Polygon, &coords); err != nil {
		return nil, errors.Wrap(err, "parsing polygon coordinates")
	}
	if len(coords) < 3 {
		return nil, nil
	}
	return orb.Polygon{ring(coords)}, nil
}

func ring(coords [][2]float64) orb.Ring {
	r := make(orb.Ring, 0, len(coords)+1)
	for _, c := range coords {
		r = append(r, orb.Point{c[0], c[1]})
	}
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// Set holds all configured regions. It is safe for concurrent use and
// can be reloaded while requests are in flight.
type Set struct {
	filename string

	mu        sync.RWMutex
	regions   map[string]*Region
	defaultID string
	override  string
}

// Load reads the regions file. An unparsable bounding box is an
// error, every API query needs it. Regions with unparsable polygons
// are kept without polygon so a single bad entry does not take down
// the whole set.
func Load(filename string) (*Set, error) {
	s := &Set{filename: filename}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) reload() error {
	b, err := os.ReadFile(s.filename)
	if err != nil {
		return errors.Wrap(err, "reading regions file")
	}
	conf := regionsFile{}
	if err := json.Unmarshal(b, &conf); err != nil {
		return errors.Wrap(err, "parsing regions file")
	}
	if len(conf.Regions) == 0 {
		return errors.Errorf("no regions in %s", s.filename)
	}

	regions := make(map[string]*Region, len(conf.Regions))
	for id, info := range conf.Regions {
		poly, err := buildPolygon(info)
		if err != nil {
			logger.Warnf("region %s: %s, containment disabled", id, err)
		}
		if poly == nil {
			logger.Warnf("region %s has no polygon, all changesets match", id)
		}
		r := &Region{ID: id, Info: info, polygon: poly}
		if _, _, _, _, err := r.BBox(); err != nil {
			return err
		}
		regions[id] = r
	}

	defaultID := conf.DefaultRegion
	if _, ok := regions[defaultID]; !ok {
		for id := range regions {
			defaultID = id
			break
		}
		logger.Warnf("default region %q not configured, using %q", conf.DefaultRegion, defaultID)
	}

	s.mu.Lock()
	s.regions = regions
	s.defaultID = defaultID
	if s.override != "" {
		if _, ok := regions[s.override]; ok {
			s.defaultID = s.override
		} else {
			logger.Warnf("default region override %q not configured, using %q", s.override, defaultID)
		}
	}
	s.mu.Unlock()
	logger.Printf("loaded %d regions from %s", len(regions), s.filename)
	return nil
}

// SetDefault overrides the default region of the regions file. The
// override survives reloads.
func (s *Set) SetDefault(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regions[id]; !ok {
		return errors.Errorf("unknown region %q", id)
	}
	s.override = id
	s.defaultID = id
	return nil
}

// Get returns the region with the given id, or the default region for
// an empty id.
func (s *Set) Get(id string) (*Region, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == "" {
		id = s.defaultID
	}
	r, ok := s.regions[id]
	return r, ok
}

// Default returns the configured default region.
func (s *Set) Default() *Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regions[s.defaultID]
}

// DefaultID returns the id of the default region.
func (s *Set) DefaultID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultID
}

// All returns the configuration of every region, keyed by id.
func (s *Set) All() map[string]Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make(map[string]Info, len(s.regions))
	for id, r := range s.regions {
		all[id] = r.Info
	}
	return all
}
