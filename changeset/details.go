package changeset

import (
	osm "github.com/omniscale/go-osm"

	"github.com/osmwatch/osmwatch/config"
)

func diffTags(d osm.Diff) map[string]string {
	switch {
	case d.Node != nil:
		return d.Node.Tags
	case d.Way != nil:
		return d.Way.Tags
	case d.Rel != nil:
		return d.Rel.Tags
	}
	return nil
}

func countElement(c *Counts, d osm.Diff) {
	switch {
	case d.Node != nil:
		c.Nodes++
	case d.Way != nil:
		c.Ways++
	case d.Rel != nil:
		c.Relations++
	}
}

// BuildDetails counts the actions of a change document and scans every
// element for sentinel tags. Each element counts once per rule even if
// it matches multiple times.
func BuildDetails(elements []osm.Diff, rules []config.SentinelRule) *Details {
	details := &Details{Sentinels: map[string]int{}}
	for _, d := range elements {
		switch {
		case d.Create:
			countElement(&details.Created, d)
		case d.Modify:
			countElement(&details.Modified, d)
		case d.Delete:
			countElement(&details.Deleted, d)
		}
		tags := diffTags(d)
		if len(tags) == 0 {
			continue
		}
		for _, rule := range rules {
			if tags[rule.Key] == rule.Value {
				details.Sentinels[rule.Flag]++
			}
		}
	}
	return details
}
