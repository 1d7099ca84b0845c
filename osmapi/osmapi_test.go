package osmapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	return New(ts.URL, 1000), ts
}

func TestChangesetsListing(t *testing.T) {
	var gotQuery map[string][]string
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <changeset id="101" user="alice" uid="7" created_at="2026-05-01T10:00:00Z" closed_at="2026-05-01T10:05:00Z" open="false" num_changes="12" min_lon="103.8" min_lat="1.3" max_lon="103.9" max_lat="1.4">
    <tag k="comment" v="add bus stop"/>
    <tag k="created_by" v="iD 2.27"/>
  </changeset>
  <changeset id="102" user="bob" uid="8" created_at="2026-05-01T09:00:00Z" open="false" num_changes="1"/>
</osm>`))
	}))
	defer ts.Close()

	changesets, err := client.Changesets(context.Background(), ListOptions{
		BBox:   "103.56,1.13,104.14,1.48",
		Closed: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery["bbox"][0] != "103.56,1.13,104.14,1.48" || gotQuery["closed"][0] != "true" {
		t.Errorf("unexpected query: %v", gotQuery)
	}
	if len(changesets) != 2 {
		t.Fatalf("got %d changesets, want 2", len(changesets))
	}

	cs := changesets[0]
	if cs.ID != 101 || cs.User != "alice" || cs.NumChanges != 12 {
		t.Errorf("unexpected changeset: %+v", cs)
	}
	if cs.CreatedAt.IsZero() || cs.ClosedAt.IsZero() {
		t.Error("timestamps not parsed")
	}
	if cs.Tag("comment") != "add bus stop" {
		t.Errorf("got comment %q", cs.Tag("comment"))
	}
	minLon, _, _, maxLat, ok := cs.BBox()
	if !ok || minLon != 103.8 || maxLat != 1.4 {
		t.Errorf("unexpected bbox: %v %v ok=%v", minLon, maxLat, ok)
	}

	// second changeset has no extent attributes at all
	if _, _, _, _, ok := changesets[1].BBox(); ok {
		t.Error("changeset without extent attributes reported a bbox")
	}
}

func TestDownloadChangeDocument(t *testing.T) {
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/changeset/42/download" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6">
  <create>
    <node id="1" lat="1.30" lon="103.80" version="1" changeset="42"/>
  </create>
  <modify>
    <way id="2" version="3" changeset="42">
      <nd ref="1"/>
      <nd ref="5"/>
      <tag k="highway" v="residential"/>
    </way>
  </modify>
  <delete>
    <node id="9" lat="1.31" lon="103.81" version="4" changeset="42"/>
  </delete>
</osmChange>`))
	}))
	defer ts.Close()

	elements, err := client.Download(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 3 {
		t.Fatalf("got %d elements, want 3", len(elements))
	}
	if !elements[0].Create || elements[0].Node == nil || elements[0].Node.ID != 1 {
		t.Errorf("unexpected first element: %+v", elements[0])
	}
	if !elements[1].Modify || elements[1].Way == nil || len(elements[1].Way.Refs) != 2 {
		t.Errorf("unexpected second element: %+v", elements[1])
	}
	if !elements[2].Delete || elements[2].Node == nil || elements[2].Node.Metadata.Version != 4 {
		t.Errorf("unexpected third element: %+v", elements[2])
	}
}

func TestNodeNotFoundAndGone(t *testing.T) {
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/node/1":
			w.WriteHeader(http.StatusNotFound)
		case "/node/2":
			w.WriteHeader(http.StatusGone)
		}
	}))
	defer ts.Close()

	_, err := client.Node(context.Background(), 1, 0)
	if errors.Cause(err) != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	_, err = client.Node(context.Background(), 2, 0)
	if errors.Cause(err) != ErrGone {
		t.Errorf("got %v, want ErrGone", err)
	}
}

func TestNodeLastVisible(t *testing.T) {
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/node/7/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <node id="7" visible="true" version="1" lat="1.10" lon="103.70"/>
  <node id="7" visible="true" version="2" lat="1.11" lon="103.71"/>
  <node id="7" visible="false" version="3"/>
</osm>`))
	}))
	defer ts.Close()

	n, err := client.NodeLastVisible(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if n.Version != 2 || n.Lat != 1.11 || n.Lon != 103.71 {
		t.Errorf("unexpected node: %+v", n)
	}
}

func TestWayRefs(t *testing.T) {
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/way/3/2" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <way id="3" version="2">
    <nd ref="10"/><nd ref="11"/><nd ref="12"/>
    <tag k="building" v="yes"/>
  </way>
</osm>`))
	}))
	defer ts.Close()

	way, err := client.Way(context.Background(), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	refs := way.Refs()
	if len(refs) != 3 || refs[0] != 10 || refs[2] != 12 {
		t.Errorf("unexpected refs: %v", refs)
	}
}

func TestPostChangesetComment(t *testing.T) {
	var gotAuth, gotText string
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/changeset/55/comment" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		r.ParseForm()
		gotText = r.PostForm.Get("text")
	}))
	defer ts.Close()

	err := client.PostChangesetComment(context.Background(), 55, "please add a source", "tok123")
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("got auth %q", gotAuth)
	}
	if gotText != "please add a source" {
		t.Errorf("got text %q", gotText)
	}
}

func TestUserDetails(t *testing.T) {
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"user": {"id": 7, "display_name": "alice", "account_created": "2019-01-01T00:00:00Z", "img": {"href": "https://example.org/a.png"}, "changesets": {"count": 321}, "traces": {"count": 2}}}`))
	}))
	defer ts.Close()

	u, err := client.UserDetails(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != 7 || u.DisplayName != "alice" || u.Changesets != 321 || u.ImageURL != "https://example.org/a.png" {
		t.Errorf("unexpected user: %+v", u)
	}
}
