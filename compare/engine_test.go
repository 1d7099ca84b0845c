package compare

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/osmwatch/osmwatch/cache"
	"github.com/osmwatch/osmwatch/osmapi"
)

const testChange = `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6">
  <create>
    <node id="10" lat="1.30" lon="103.80" version="1" changeset="77"><tag k="amenity" v="bench"/></node>
    <node id="11" lat="1.32" lon="103.82" version="1" changeset="77"/>
    <way id="20" version="1" changeset="77"><nd ref="10"/><nd ref="11"/><tag k="highway" v="path"/></way>
  </create>
  <modify>
    <node id="30" lat="1.35" lon="103.85" version="3" changeset="77"><tag k="name" v="New Name"/></node>
  </modify>
  <delete>
    <node id="40" version="2" changeset="77"/>
    <way id="50" version="4" changeset="77"/>
  </delete>
</osmChange>`

type compareAPI struct {
	mu    sync.Mutex
	calls map[string]int
}

func (a *compareAPI) count(path string) {
	a.mu.Lock()
	a.calls[path]++
	a.mu.Unlock()
}

func (a *compareAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.count(r.URL.Path)
	switch r.URL.Path {
	case "/changeset/77/download":
		w.Write([]byte(testChange))
	case "/node/30/2":
		w.Write([]byte(`<osm version="0.6"><node id="30" lat="1.34" lon="103.84" version="2"><tag k="name" v="Old Name"/><tag k="wheelchair" v="yes"/></node></osm>`))
	case "/node/40/1":
		w.Write([]byte(`<osm version="0.6"><node id="40" lat="1.36" lon="103.86" version="1"/></osm>`))
	case "/way/50/3":
		w.Write([]byte(`<osm version="0.6"><way id="50" version="3"><nd ref="60"/><nd ref="61"/><tag k="building" v="yes"/></way></osm>`))
	case "/node/60":
		w.Write([]byte(`<osm version="0.6"><node id="60" lat="1.40" lon="103.90" version="5"/></osm>`))
	case "/node/61":
		// deleted together with the way, only history still works
		w.WriteHeader(http.StatusGone)
	case "/node/61/history":
		w.Write([]byte(`<osm version="0.6">` +
			`<node id="61" visible="true" version="1" lat="1.42" lon="103.92"/>` +
			`<node id="61" visible="false" version="2"/></osm>`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestEngine(t *testing.T, withStore bool) (*Engine, *compareAPI, func()) {
	t.Helper()
	api := &compareAPI{calls: map[string]int{}}
	ts := httptest.NewServer(api)
	closers := []func(){ts.Close}

	var store *cache.BadgerDB
	if withStore {
		var err error
		store, err = cache.OpenBadger(t.TempDir())
		if err != nil {
			ts.Close()
			t.Fatal(err)
		}
		closers = append(closers, func() { store.Close() })
	}

	engine := NewEngine(osmapi.New(ts.URL, 1000), store, Options{
		OldVersionWorkers: 4,
		GeometryWorkers:   4,
	})
	return engine, api, func() {
		for _, c := range closers {
			c()
		}
	}
}

func TestCompareChangeset(t *testing.T) {
	engine, _, cleanup := newTestEngine(t, false)
	defer cleanup()

	result, err := engine.Compare(context.Background(), 77)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Created) != 3 || len(result.Modified) != 1 || len(result.Deleted) != 2 {
		t.Fatalf("got %d/%d/%d elements", len(result.Created), len(result.Modified), len(result.Deleted))
	}

	// created way resolves against nodes from the same payload
	way := result.Created[2]
	if way.Type != "way" || way.Lat == nil {
		t.Fatalf("created way unresolved: %+v", way)
	}
	if !almost(*way.Lat, 1.31) || !almost(*way.Lon, 103.81) {
		t.Errorf("got way center %v, %v", *way.Lat, *way.Lon)
	}
	if len(way.Geometry) != 2 {
		t.Errorf("got way geometry %v", way.Geometry)
	}

	// modified node carries its previous tags
	mod := result.Modified[0]
	if mod.OldTags["name"] != "Old Name" || mod.OldTags["wheelchair"] != "yes" {
		t.Errorf("unexpected old tags: %v", mod.OldTags)
	}
	if mod.OldLat == nil || !almost(*mod.OldLat, 1.34) {
		t.Errorf("unexpected old position: %+v", mod)
	}

	// deleted node from its previous version
	delNode := result.Deleted[0]
	if delNode.Lat == nil || !almost(*delNode.Lat, 1.36) {
		t.Errorf("deleted node unresolved: %+v", delNode)
	}

	// deleted way from previous refs, one node via history fallback
	delWay := result.Deleted[1]
	if delWay.Lat == nil {
		t.Fatalf("deleted way unresolved: %+v", delWay)
	}
	if !almost(*delWay.Lat, 1.41) || !almost(*delWay.Lon, 103.91) {
		t.Errorf("got deleted way center %v, %v", *delWay.Lat, *delWay.Lon)
	}
	if len(delWay.Geometry) != 2 {
		t.Errorf("got deleted way geometry %v", delWay.Geometry)
	}
}

func TestCompareCachesResult(t *testing.T) {
	engine, api, cleanup := newTestEngine(t, false)
	defer cleanup()

	if _, err := engine.Compare(context.Background(), 77); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Compare(context.Background(), 77); err != nil {
		t.Fatal(err)
	}
	if api.calls["/changeset/77/download"] != 1 {
		t.Errorf("downloaded %d times, want 1", api.calls["/changeset/77/download"])
	}

	engine.ClearCache()
	if _, err := engine.Compare(context.Background(), 77); err != nil {
		t.Fatal(err)
	}
	if api.calls["/changeset/77/download"] != 2 {
		t.Errorf("downloaded %d times after clear, want 2", api.calls["/changeset/77/download"])
	}
}

func TestComparePersistsElementVersions(t *testing.T) {
	engine, api, cleanup := newTestEngine(t, true)
	defer cleanup()

	if _, err := engine.Compare(context.Background(), 77); err != nil {
		t.Fatal(err)
	}
	engine.ClearCache()
	if _, err := engine.Compare(context.Background(), 77); err != nil {
		t.Fatal(err)
	}

	// old versions are immutable, the second run must hit the store
	if api.calls["/node/30/2"] != 1 {
		t.Errorf("fetched node 30 v2 %d times, want 1", api.calls["/node/30/2"])
	}
	if api.calls["/way/50/3"] != 1 {
		t.Errorf("fetched way 50 v3 %d times, want 1", api.calls["/way/50/3"])
	}
}
