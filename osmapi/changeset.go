package osmapi

import (
	"context"
	"encoding/xml"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Time parses the RFC 3339 timestamp attributes of the API's XML.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, attr.Value)
	if err != nil {
		return errors.Wrapf(err, "parsing timestamp %q", attr.Value)
	}
	t.Time = parsed
	return nil
}

type Tag struct {
	Key   string `xml:"k,attr"`
	Value string `xml:"v,attr"`
}

// Changeset is a single entry of a changeset listing. The extent
// attributes are pointers as the API omits them for changesets without
// any geometry, which is different from an extent at 0,0.
type Changeset struct {
	ID         int64    `xml:"id,attr"`
	User       string   `xml:"user,attr"`
	UID        int64    `xml:"uid,attr"`
	CreatedAt  Time     `xml:"created_at,attr"`
	ClosedAt   Time     `xml:"closed_at,attr"`
	Open       bool     `xml:"open,attr"`
	NumChanges int      `xml:"num_changes,attr"`
	MinLon     *float64 `xml:"min_lon,attr"`
	MinLat     *float64 `xml:"min_lat,attr"`
	MaxLon     *float64 `xml:"max_lon,attr"`
	MaxLat     *float64 `xml:"max_lat,attr"`
	Tags       []Tag    `xml:"tag"`
}

// Tag returns the value of the given changeset tag, or "".
func (cs *Changeset) Tag(key string) string {
	for _, t := range cs.Tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

// BBox returns the changeset extent. ok is false when the API reported
// no extent.
func (cs *Changeset) BBox() (minLon, minLat, maxLon, maxLat float64, ok bool) {
	if cs.MinLon == nil || cs.MinLat == nil || cs.MaxLon == nil || cs.MaxLat == nil {
		return 0, 0, 0, 0, false
	}
	return *cs.MinLon, *cs.MinLat, *cs.MaxLon, *cs.MaxLat, true
}

type changesetsResponse struct {
	XMLName    xml.Name    `xml:"osm"`
	Changesets []Changeset `xml:"changeset"`
}

// ListOptions filters a changeset listing. Zero values are omitted from
// the query.
type ListOptions struct {
	BBox        string
	From, To    time.Time
	Closed      bool
	DisplayName string
}

// Changesets fetches one page of the changeset listing. The API caps a
// page at 100 entries, newest first.
func (c *Client) Changesets(ctx context.Context, opts ListOptions) ([]Changeset, error) {
	query := url.Values{}
	if opts.BBox != "" {
		query.Set("bbox", opts.BBox)
	}
	if opts.Closed {
		query.Set("closed", "true")
	}
	if !opts.From.IsZero() && !opts.To.IsZero() {
		query.Set("time", opts.From.UTC().Format(time.RFC3339)+","+opts.To.UTC().Format(time.RFC3339))
	}
	if opts.DisplayName != "" {
		query.Set("display_name", opts.DisplayName)
	}

	resp, err := c.get(ctx, "/changesets", query)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := changesetsResponse{}
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "parsing changeset listing")
	}
	return result.Changesets, nil
}

// Changeset fetches the metadata of a single changeset.
func (c *Client) Changeset(ctx context.Context, id int64) (*Changeset, error) {
	resp, err := c.get(ctx, "/changeset/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := changesetsResponse{}
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrapf(err, "parsing changeset %d", id)
	}
	if len(result.Changesets) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "changeset %d", id)
	}
	return &result.Changesets[0], nil
}
