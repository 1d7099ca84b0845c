package changeset

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/osmwatch/osmwatch/cache"
	"github.com/osmwatch/osmwatch/config"
	"github.com/osmwatch/osmwatch/osmapi"
	"github.com/osmwatch/osmwatch/region"
	"github.com/osmwatch/osmwatch/util"
)

// Notifier is the alert sink of the pipeline, see the notify package.
type Notifier interface {
	// Empty reports whether no changeset was ever marked seen.
	Empty() bool
	MarkAllSeen(changesets []*Changeset) error
	NotifyIfNeeded(ctx context.Context, cs *Changeset) (bool, error)
}

// AuditLog records changesets that need review, see the audit package.
type AuditLog interface {
	LogNeedsReview(ctx context.Context, cs *Changeset, source string) error
}

type Options struct {
	TimeRange             time.Duration
	MassDeletionThreshold int
	DetailWorkers         int
	Rules                 []config.SentinelRule
}

// Fetcher loads and validates the recent changesets of a region.
type Fetcher struct {
	Notifier Notifier
	Audit    AuditLog

	client  *osmapi.Client
	regions *region.Set
	opts    Options
	details *cache.Memory[int64, *Details]
	now     func() time.Time
}

func NewFetcher(client *osmapi.Client, regions *region.Set, opts Options) *Fetcher {
	if opts.TimeRange <= 0 {
		opts.TimeRange = 24 * time.Hour
	}
	if opts.MassDeletionThreshold <= 0 {
		opts.MassDeletionThreshold = 50
	}
	if opts.DetailWorkers <= 0 {
		opts.DetailWorkers = 5
	}
	if opts.Rules == nil {
		opts.Rules = config.DefaultSentinelRules
	}
	return &Fetcher{
		client:  client,
		regions: regions,
		opts:    opts,
		details: cache.NewMemory[int64, *Details](0),
		now:     time.Now,
	}
}

func fromListing(api osmapi.Changeset) *Changeset {
	cs := &Changeset{
		ID:         api.ID,
		User:       api.User,
		UID:        api.UID,
		CreatedAt:  api.CreatedAt.Time,
		ClosedAt:   api.ClosedAt.Time,
		NumChanges: api.NumChanges,
		Comment:    api.Tag("comment"),
		CreatedBy:  api.Tag("created_by"),
		Tags:       map[string]string{},
	}
	if cs.User == "" {
		cs.User = "Anonymous"
	}
	if cs.Comment == "" {
		cs.Comment = "No comment"
	}
	if cs.CreatedBy == "" {
		cs.CreatedBy = "Unknown"
	}
	for _, t := range api.Tags {
		cs.Tags[t.Key] = t.Value
	}
	if minLon, minLat, maxLon, maxLat, ok := api.BBox(); ok {
		cs.BBox = &BBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
	}
	return cs
}

// InRegion reports whether a changeset's extent midpoint falls into the
// region. Without an extent we cannot locate the changeset and exclude
// it, unless the region has no polygon to check against.
func InRegion(cs *Changeset, r *region.Region) bool {
	if !r.HasPolygon() {
		return true
	}
	if cs.BBox == nil {
		return false
	}
	return r.Contains(cs.BBox.MinLon, cs.BBox.MinLat, cs.BBox.MaxLon, cs.BBox.MaxLat)
}

func countInRegion(changesets []*Changeset, r *region.Region) int {
	n := 0
	for _, cs := range changesets {
		if InRegion(cs, r) {
			n++
		}
	}
	return n
}

// Fetch returns up to limit closed changesets of the region from the
// configured time range, newest first, enriched and validated.
//
// The listing endpoint returns at most 100 entries per call, newest
// first. We page backwards by using one second before the oldest entry
// of a page as the end of the next query window.
func (f *Fetcher) Fetch(ctx context.Context, regionID string, limit int) ([]*Changeset, error) {
	reg, ok := f.regions.Get(regionID)
	if !ok {
		return nil, errors.Errorf("unknown region %q", regionID)
	}

	windowEnd := f.now().UTC()
	windowStart := windowEnd.Add(-f.opts.TimeRange)
	maxRequests := (limit + 99) / 100

	all := []*Changeset{}
	seen := map[int64]struct{}{}

	for request := 0; request < maxRequests; request++ {
		if countInRegion(all, reg) >= limit {
			logger.Debugf("already have %d changesets in %s, stopping early", limit, reg.ID)
			break
		}

		listCtx, cancel := context.WithTimeout(ctx, config.ListTimeout)
		page, err := f.client.Changesets(listCtx, osmapi.ListOptions{
			BBox:   reg.Info.BBox,
			Closed: true,
			From:   windowStart,
			To:     windowEnd,
		})
		cancel()
		if err != nil {
			if len(all) == 0 {
				return nil, errors.Wrapf(err, "listing changesets of %s", reg.ID)
			}
			logger.Warnf("listing changesets of %s: %s, continuing with %d fetched", reg.ID, err, len(all))
			break
		}

		batch := []*Changeset{}
		for _, apiCS := range page {
			if _, dup := seen[apiCS.ID]; dup {
				continue
			}
			seen[apiCS.ID] = struct{}{}
			batch = append(batch, fromListing(apiCS))
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)

		oldest := batch[0].CreatedAt
		for _, cs := range batch[1:] {
			if cs.CreatedAt.Before(oldest) {
				oldest = cs.CreatedAt
			}
		}
		windowEnd = oldest.Add(-time.Second)
		if !windowEnd.After(windowStart) {
			break
		}
	}

	changesets := make([]*Changeset, 0, len(all))
	for _, cs := range all {
		if InRegion(cs, reg) {
			changesets = append(changesets, cs)
		}
	}
	sort.SliceStable(changesets, func(i, j int) bool {
		return changesets[i].CreatedAt.After(changesets[j].CreatedAt)
	})
	if len(changesets) > limit {
		changesets = changesets[:limit]
	}
	logger.Printf("%s: %d fetched, %d in region, %d after limit",
		reg.ID, len(all), countInRegion(all, reg), len(changesets))

	f.enrich(ctx, changesets)
	for _, cs := range changesets {
		applyValidation(cs, f.opts.MassDeletionThreshold, f.opts.Rules)
	}
	return changesets, nil
}

// enrich attaches details derived from each changeset's change
// document. One download serves both the action counts and the
// sentinel scan. Failed downloads leave Details nil.
func (f *Fetcher) enrich(ctx context.Context, changesets []*Changeset) {
	pending := []*Changeset{}
	for _, cs := range changesets {
		if details, ok := f.details.Get(cs.ID); ok {
			cs.Details = details
		} else {
			pending = append(pending, cs)
		}
	}

	if len(pending) > 0 {
		done := logger.Step("fetching change documents")
		defer done()

		results := util.ParallelMap(ctx, f.opts.DetailWorkers, pending,
			func(ctx context.Context, cs *Changeset) (*Details, error) {
				dlCtx, cancel := context.WithTimeout(ctx, config.DownloadTimeout)
				defer cancel()
				elements, err := f.client.Download(dlCtx, cs.ID)
				if err != nil {
					return nil, err
				}
				return BuildDetails(elements, f.opts.Rules), nil
			})

		failed := 0
		for i, r := range results {
			if r.Err != nil {
				failed++
				if failed <= 3 {
					logger.Warnf("details for changeset %d: %s", pending[i].ID, r.Err)
				}
				continue
			}
			pending[i].Details = r.Value
			f.details.Set(pending[i].ID, r.Value)
		}
		if failed > 0 {
			logger.Warnf("%d of %d change documents failed", failed, len(pending))
		}
	}

	// the listing undercounts num_changes for large changesets, the
	// change document has the real totals. Changesets built fresh from
	// the listing need this on cached details too.
	for _, cs := range changesets {
		if cs.Details == nil {
			continue
		}
		total := cs.Details.Created.Total() + cs.Details.Modified.Total() + cs.Details.Deleted.Total()
		if total > 0 {
			cs.NumChanges = total
		}
	}
}

// Process runs one monitoring pass: fetch, then alert and audit new
// changesets that need review. The audit log gets every flagged
// changeset no matter whether an alert went out, the stores dedup by
// id themselves. The very first pass only marks the backlog as seen
// so a fresh deployment does not flood the alert channel.
func (f *Fetcher) Process(ctx context.Context, regionID string, limit int) ([]*Changeset, error) {
	changesets, err := f.Fetch(ctx, regionID, limit)
	if err != nil {
		return nil, err
	}

	if f.Notifier != nil && f.Notifier.Empty() {
		logger.Printf("initial load: marking %d changesets as seen", len(changesets))
		if err := f.Notifier.MarkAllSeen(changesets); err != nil {
			logger.Errorf("marking changesets seen: %s", err)
		}
		return changesets, nil
	}

	notified := 0
	for _, cs := range changesets {
		if !cs.Validation.NeedsReview() {
			continue
		}
		if f.Audit != nil {
			if err := f.Audit.LogNeedsReview(ctx, cs, "Auto-detected during fetch"); err != nil {
				logger.Errorf("audit log for changeset %d: %s", cs.ID, err)
			}
		}
		if f.Notifier == nil {
			continue
		}
		sent, err := f.Notifier.NotifyIfNeeded(ctx, cs)
		if err != nil {
			logger.Errorf("notifying for changeset %d: %s", cs.ID, err)
		}
		if sent {
			notified++
		}
	}
	if notified > 0 {
		logger.Printf("sent notifications for %d new changeset(s)", notified)
	}
	return changesets, nil
}

// UserChangesets lists the changesets of one account within a region
// from the last year, newest first. No enrichment happens here, the
// profile views only need the listing data.
func (f *Fetcher) UserChangesets(ctx context.Context, regionID, displayName string) ([]*Changeset, error) {
	reg, ok := f.regions.Get(regionID)
	if !ok {
		return nil, errors.Errorf("unknown region %q", regionID)
	}

	end := f.now().UTC()
	listCtx, cancel := context.WithTimeout(ctx, config.ListTimeout)
	defer cancel()
	page, err := f.client.Changesets(listCtx, osmapi.ListOptions{
		BBox:        reg.Info.BBox,
		Closed:      true,
		From:        end.AddDate(-1, 0, 0),
		To:          end,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing changesets of user %s", displayName)
	}

	changesets := []*Changeset{}
	for _, apiCS := range page {
		cs := fromListing(apiCS)
		if InRegion(cs, reg) {
			changesets = append(changesets, cs)
		}
	}
	sort.SliceStable(changesets, func(i, j int) bool {
		return changesets[i].CreatedAt.After(changesets[j].CreatedAt)
	})
	return changesets, nil
}

// ClearCaches drops the per-changeset detail cache.
func (f *Fetcher) ClearCaches() {
	f.details.Clear()
}
