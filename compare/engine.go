package compare

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/osmwatch/osmwatch/cache"
	"github.com/osmwatch/osmwatch/config"
	"github.com/osmwatch/osmwatch/osmapi"
	"github.com/osmwatch/osmwatch/util"
)

type Options struct {
	OldVersionWorkers int
	GeometryWorkers   int
}

// Engine builds comparisons. Finished comparisons are kept for an hour,
// fetched element versions are persisted in the store since versions
// never change once written.
type Engine struct {
	client  *osmapi.Client
	store   *cache.BadgerDB
	opts    Options
	results *cache.Memory[int64, *Comparison]
}

func NewEngine(client *osmapi.Client, store *cache.BadgerDB, opts Options) *Engine {
	if opts.OldVersionWorkers <= 0 {
		opts.OldVersionWorkers = 15
	}
	if opts.GeometryWorkers <= 0 {
		opts.GeometryWorkers = 10
	}
	return &Engine{
		client:  client,
		store:   store,
		opts:    opts,
		results: cache.NewMemory[int64, *Comparison](resultTTL),
	}
}

// ClearCache drops finished comparisons. The persistent element version
// store stays, its entries cannot go stale.
func (e *Engine) ClearCache() {
	e.results.Clear()
}

// Compare returns the before/after view of a changeset.
func (e *Engine) Compare(ctx context.Context, changesetID int64) (*Comparison, error) {
	if result, ok := e.results.Get(changesetID); ok {
		return result, nil
	}

	done := logger.Step(fmt.Sprintf("comparison for changeset %d", changesetID))
	defer done()

	dlCtx, cancel := context.WithTimeout(ctx, config.DownloadTimeout)
	elements, err := e.client.Download(dlCtx, changesetID)
	cancel()
	if err != nil {
		return nil, errors.Wrapf(err, "downloading changeset %d", changesetID)
	}

	coords := nodeCoords(elements)
	result := &Comparison{
		Created:  []*Element{},
		Modified: []*Element{},
		Deleted:  []*Element{},
	}
	for _, d := range elements {
		switch {
		case d.Create:
			item := fromDiff(d, "created")
			applyWayGeometry(item, coords)
			result.Created = append(result.Created, item)
		case d.Modify:
			item := fromDiff(d, "modified")
			applyWayGeometry(item, coords)
			result.Modified = append(result.Modified, item)
		case d.Delete:
			result.Deleted = append(result.Deleted, fromDiff(d, "deleted"))
		}
	}

	e.attachOldVersions(ctx, result.Modified, coords)
	e.attachDeletedGeometry(ctx, result.Deleted)

	e.results.Set(changesetID, result)
	return result, nil
}

// oldElement is the persisted form of a fetched element version.
type oldElement struct {
	Version int               `json:"version"`
	Lat     *float64          `json:"lat,omitempty"`
	Lon     *float64          `json:"lon,omitempty"`
	Tags    map[string]string `json:"tags"`
	Nodes   []int64           `json:"nodes,omitempty"`
}

func (e *Engine) storedVersion(key []byte) *oldElement {
	if e.store == nil {
		return nil
	}
	data, err := e.store.Get(key)
	if err != nil || data == nil {
		return nil
	}
	old := &oldElement{}
	if err := json.Unmarshal(data, old); err != nil {
		return nil
	}
	return old
}

func (e *Engine) storeVersion(key []byte, old *oldElement) {
	if e.store == nil {
		return
	}
	data, err := json.Marshal(old)
	if err != nil {
		return
	}
	if err := e.store.Put(key, data); err != nil {
		logger.Warnf("storing %s: %s", key, err)
	}
}

// previousVersion fetches version-1 of an element, nil when there is no
// previous version or it is unavailable.
func (e *Engine) previousVersion(ctx context.Context, typ string, id int64, version int) (*oldElement, error) {
	prev := version - 1
	if prev < 1 {
		return nil, nil
	}
	key := []byte(fmt.Sprintf("%s/%d/%d", typ, id, prev))
	if old := e.storedVersion(key); old != nil {
		return old, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, config.ElementTimeout)
	defer cancel()

	old := &oldElement{Version: prev, Tags: map[string]string{}}
	switch typ {
	case "node":
		node, err := e.client.Node(fetchCtx, id, prev)
		if err != nil {
			return nil, err
		}
		lat, lon := node.Lat, node.Lon
		old.Lat, old.Lon = &lat, &lon
		for _, t := range node.Tags {
			old.Tags[t.Key] = t.Value
		}
	case "way":
		way, err := e.client.Way(fetchCtx, id, prev)
		if err != nil {
			return nil, err
		}
		old.Nodes = way.Refs()
		for _, t := range way.Tags {
			old.Tags[t.Key] = t.Value
		}
	case "relation":
		rel, err := e.client.Relation(fetchCtx, id, prev)
		if err != nil {
			return nil, err
		}
		for _, t := range rel.Tags {
			old.Tags[t.Key] = t.Value
		}
	default:
		return nil, errors.Errorf("unknown element type %q", typ)
	}

	e.storeVersion(key, old)
	return old, nil
}

// attachOldVersions loads the previous version of modified elements so
// the UI can diff tags and draw the old shape.
func (e *Engine) attachOldVersions(ctx context.Context, modified []*Element, coords map[int64][2]float64) {
	items := modified
	if len(items) > maxPreviousVersions {
		logger.Printf("large changeset: fetching old versions for first %d of %d modified elements",
			maxPreviousVersions, len(items))
		items = items[:maxPreviousVersions]
	}
	if len(items) == 0 {
		return
	}

	batchCtx, cancel := context.WithTimeout(ctx, config.BatchTimeout)
	defer cancel()

	results := util.ParallelMap(batchCtx, e.opts.OldVersionWorkers, items,
		func(ctx context.Context, item *Element) (*oldElement, error) {
			return e.previousVersion(ctx, item.Type, item.ID, item.Version)
		})

	for i, r := range results {
		if r.Err != nil || r.Value == nil {
			continue
		}
		item := items[i]
		old := r.Value
		item.OldTags = old.Tags
		item.OldLat, item.OldLon = old.Lat, old.Lon
		item.OldNodes = old.Nodes
		if item.Type == "way" && len(old.Nodes) > 0 {
			if geometry, _, _, ok := wayGeometry(old.Nodes, coords); ok && geometry != nil {
				item.OldGeometry = geometry
			}
		}
	}
}

type resolvedGeometry struct {
	lat, lon float64
	geometry [][2]float64
}

// deletedGeometry reconstructs the last position of a deleted element.
// The change document strips coordinates from deleted elements, so
// nodes come from their previous version and ways from the previous
// version's refs resolved against current nodes, falling back to the
// node history when a node is gone as well.
func (e *Engine) deletedGeometry(ctx context.Context, item *Element) (*resolvedGeometry, error) {
	switch item.Type {
	case "node":
		old, err := e.previousVersion(ctx, "node", item.ID, item.Version)
		if err != nil || old == nil || old.Lat == nil {
			return nil, err
		}
		return &resolvedGeometry{lat: *old.Lat, lon: *old.Lon}, nil
	case "way":
		way, err := e.previousVersion(ctx, "way", item.ID, item.Version)
		if err != nil || way == nil {
			return nil, err
		}
		vertices := [][2]float64{}
		sumLat, sumLon := 0.0, 0.0
		for _, ref := range way.Nodes {
			nodeCtx, cancel := context.WithTimeout(ctx, config.NodeTimeout)
			node, err := e.client.Node(nodeCtx, ref, 0)
			if err != nil && errors.Cause(err) == osmapi.ErrGone {
				node, err = e.client.NodeLastVisible(nodeCtx, ref)
			}
			cancel()
			if err != nil {
				continue
			}
			vertices = append(vertices, [2]float64{node.Lat, node.Lon})
			sumLat += node.Lat
			sumLon += node.Lon
		}
		if len(vertices) == 0 {
			return nil, nil
		}
		resolved := &resolvedGeometry{
			lat: sumLat / float64(len(vertices)),
			lon: sumLon / float64(len(vertices)),
		}
		if len(vertices) > 1 {
			resolved.geometry = vertices
		}
		return resolved, nil
	}
	return nil, nil
}

// attachDeletedGeometry resolves positions for deleted elements that
// have none.
func (e *Engine) attachDeletedGeometry(ctx context.Context, deleted []*Element) {
	pending := []*Element{}
	for _, item := range deleted {
		if item.Lat == nil {
			pending = append(pending, item)
		}
	}
	if len(pending) == 0 {
		return
	}
	logger.Printf("resolving geometry for %d deleted elements", len(pending))

	batchCtx, cancel := context.WithTimeout(ctx, config.BatchTimeout)
	defer cancel()

	results := util.ParallelMap(batchCtx, e.opts.GeometryWorkers, pending,
		func(ctx context.Context, item *Element) (*resolvedGeometry, error) {
			return e.deletedGeometry(ctx, item)
		})

	failed := 0
	for i, r := range results {
		if r.Err != nil || r.Value == nil {
			failed++
			continue
		}
		item := pending[i]
		lat, lon := r.Value.lat, r.Value.lon
		item.Lat, item.Lon = &lat, &lon
		item.Geometry = r.Value.geometry
	}
	if failed > 0 {
		logger.Warnf("%d of %d deleted elements without geometry", failed, len(pending))
	}
}
