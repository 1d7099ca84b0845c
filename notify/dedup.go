// Package notify delivers Slack alerts for changesets that need review
// and tracks which changesets were already alerted so restarts do not
// repeat notifications.
package notify

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/osmwatch/osmwatch/log"
)

var logger = log.NewLogger("notify")

// Dedup is a persisted set of alerted changeset ids. The file stores
// ids as strings, which keeps it readable and editable by hand.
type Dedup struct {
	filename string

	mu  sync.Mutex
	ids map[int64]struct{}
}

type dedupFile struct {
	Changesets []string `json:"changesets"`
}

// LoadDedup reads the persisted set. A missing file yields an empty
// set, that is the initial load marker.
func LoadDedup(filename string) (*Dedup, error) {
	d := &Dedup{filename: filename, ids: map[int64]struct{}{}}
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading alerted changesets")
	}
	stored := dedupFile{}
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.Warnf("corrupt alerted changesets file %s, starting empty: %s", filename, err)
		return d, nil
	}
	for _, s := range stored.Changesets {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		d.ids[id] = struct{}{}
	}
	if len(d.ids) > 0 {
		logger.Printf("loaded %d previously alerted changesets", len(d.ids))
	}
	return d, nil
}

// save writes the set. Callers must hold the lock.
func (d *Dedup) save() error {
	stored := dedupFile{Changesets: make([]string, 0, len(d.ids))}
	for id := range d.ids {
		stored.Changesets = append(stored.Changesets, strconv.FormatInt(id, 10))
	}
	sort.Strings(stored.Changesets)
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(d.filename, data, 0644), "saving alerted changesets")
}

func (d *Dedup) Has(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[id]
	return ok
}

func (d *Dedup) Add(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[id] = struct{}{}
	return d.save()
}

func (d *Dedup) Discard(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.ids, id)
	return d.save()
}

// AddAll marks many ids at once with a single write.
func (d *Dedup) AddAll(ids []int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.ids[id] = struct{}{}
	}
	return d.save()
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ids)
}

func (d *Dedup) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = map[int64]struct{}{}
	return d.save()
}
