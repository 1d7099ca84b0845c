package osmapi

import (
	"context"
	"strconv"

	osm "github.com/omniscale/go-osm"
	"github.com/omniscale/go-osm/parser/diff"
	"github.com/pkg/errors"
)

// Download fetches the full change document of a changeset. Every
// element action (create, modify, delete) becomes one osm.Diff, in
// document order.
func (c *Client) Download(ctx context.Context, changesetID int64) ([]osm.Diff, error) {
	resp, err := c.get(ctx, "/changeset/"+strconv.FormatInt(changesetID, 10)+"/download", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	diffs := make(chan osm.Diff)
	parser := diff.New(resp.Body, diff.Config{
		IncludeMetadata: true,
		Diffs:           diffs,
	})

	parseErr := make(chan error, 1)
	go func() {
		parseErr <- parser.Parse(ctx)
	}()

	elements := []osm.Diff{}
	for d := range diffs {
		elements = append(elements, d)
	}
	if err := <-parseErr; err != nil {
		return nil, errors.Wrapf(err, "parsing change document of changeset %d", changesetID)
	}
	return elements, nil
}
