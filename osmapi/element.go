package osmapi

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// Node is a node as returned by the element endpoints. Visible is only
// set by the history endpoint.
type Node struct {
	ID        int64    `xml:"id,attr"`
	Lat       float64  `xml:"lat,attr"`
	Lon       float64  `xml:"lon,attr"`
	Version   int      `xml:"version,attr"`
	Visible   *bool    `xml:"visible,attr"`
	Timestamp Time     `xml:"timestamp,attr"`
	Tags      []Tag    `xml:"tag"`
}

type NodeRef struct {
	Ref int64 `xml:"ref,attr"`
}

type Way struct {
	ID        int64     `xml:"id,attr"`
	Version   int       `xml:"version,attr"`
	Visible   *bool     `xml:"visible,attr"`
	Timestamp Time      `xml:"timestamp,attr"`
	Nds       []NodeRef `xml:"nd"`
	Tags      []Tag     `xml:"tag"`
}

// Refs returns the way's node ids in order.
func (w *Way) Refs() []int64 {
	refs := make([]int64, len(w.Nds))
	for i, nd := range w.Nds {
		refs[i] = nd.Ref
	}
	return refs
}

type Member struct {
	Type string `xml:"type,attr"`
	Ref  int64  `xml:"ref,attr"`
	Role string `xml:"role,attr"`
}

type Relation struct {
	ID        int64    `xml:"id,attr"`
	Version   int      `xml:"version,attr"`
	Visible   *bool    `xml:"visible,attr"`
	Timestamp Time     `xml:"timestamp,attr"`
	Members   []Member `xml:"member"`
	Tags      []Tag    `xml:"tag"`
}

type elementsResponse struct {
	XMLName   xml.Name   `xml:"osm"`
	Nodes     []Node     `xml:"node"`
	Ways      []Way      `xml:"way"`
	Relations []Relation `xml:"relation"`
}

func tagMap(tags []Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Key] = t.Value
	}
	return m
}

func elementPath(typ string, id int64, version int) string {
	path := fmt.Sprintf("/%s/%d", typ, id)
	if version > 0 {
		path += "/" + strconv.Itoa(version)
	}
	return path
}

func (c *Client) elements(ctx context.Context, path string) (*elementsResponse, error) {
	resp, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := elementsResponse{}
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrapf(err, "parsing response of %s", path)
	}
	return &result, nil
}

// Node fetches a node, the current version for version <= 0.
func (c *Client) Node(ctx context.Context, id int64, version int) (*Node, error) {
	result, err := c.elements(ctx, elementPath("node", id, version))
	if err != nil {
		return nil, err
	}
	if len(result.Nodes) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "node %d v%d", id, version)
	}
	return &result.Nodes[0], nil
}

// Way fetches a way, the current version for version <= 0.
func (c *Client) Way(ctx context.Context, id int64, version int) (*Way, error) {
	result, err := c.elements(ctx, elementPath("way", id, version))
	if err != nil {
		return nil, err
	}
	if len(result.Ways) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "way %d v%d", id, version)
	}
	return &result.Ways[0], nil
}

// Relation fetches a relation, the current version for version <= 0.
func (c *Client) Relation(ctx context.Context, id int64, version int) (*Relation, error) {
	result, err := c.elements(ctx, elementPath("relation", id, version))
	if err != nil {
		return nil, err
	}
	if len(result.Relations) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "relation %d v%d", id, version)
	}
	return &result.Relations[0], nil
}

// WayFull fetches a way's current version together with the current
// versions of all its nodes.
func (c *Client) WayFull(ctx context.Context, id int64) (*Way, []Node, error) {
	result, err := c.elements(ctx, fmt.Sprintf("/way/%d/full", id))
	if err != nil {
		return nil, nil, err
	}
	if len(result.Ways) == 0 {
		return nil, nil, errors.Wrapf(ErrNotFound, "way %d", id)
	}
	return &result.Ways[0], result.Nodes, nil
}

// NodeLastVisible returns the last visible version from a node's
// history. Deleted nodes answer the plain endpoint with 410, but their
// history still carries the old coordinates.
func (c *Client) NodeLastVisible(ctx context.Context, id int64) (*Node, error) {
	result, err := c.elements(ctx, fmt.Sprintf("/node/%d/history", id))
	if err != nil {
		return nil, err
	}
	for i := len(result.Nodes) - 1; i >= 0; i-- {
		n := result.Nodes[i]
		if n.Visible == nil || *n.Visible {
			return &result.Nodes[i], nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "no visible version of node %d", id)
}
