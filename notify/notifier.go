package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/osmwatch/osmwatch/changeset"
)

// Notifier sends one alert per changeset that needs review. An id is
// only persisted as alerted after Slack accepted the delivery, so a
// failed delivery is retried on the next pass. Concurrent calls for
// the same id are collapsed into one delivery via the in-flight set.
type Notifier struct {
	WebhookURL string
	Enabled    bool

	dedup  *Dedup
	client *http.Client

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

func NewNotifier(webhookURL string, enabled bool, dedup *Dedup) *Notifier {
	return &Notifier{
		WebhookURL: webhookURL,
		Enabled:    enabled,
		dedup:      dedup,
		client:     &http.Client{Timeout: 10 * time.Second},
		inFlight:   map[int64]struct{}{},
	}
}

// claim reserves an id for delivery. False means the id was already
// alerted or another goroutine is delivering it right now.
func (n *Notifier) claim(id int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, busy := n.inFlight[id]; busy {
		return false
	}
	if n.dedup.Has(id) {
		return false
	}
	n.inFlight[id] = struct{}{}
	return true
}

func (n *Notifier) release(id int64) {
	n.mu.Lock()
	delete(n.inFlight, id)
	n.mu.Unlock()
}

// IsWorkflow reports whether the webhook is a Slack Workflow trigger,
// which needs a flat payload instead of Block Kit.
func (n *Notifier) IsWorkflow() bool {
	return strings.Contains(n.WebhookURL, "/triggers/")
}

// Empty reports whether no changeset was ever alerted or marked seen.
func (n *Notifier) Empty() bool {
	return n.dedup.Len() == 0
}

// MarkAllSeen records changesets without alerting. Used on the first
// pass after a fresh deployment.
func (n *Notifier) MarkAllSeen(changesets []*changeset.Changeset) error {
	ids := make([]int64, 0, len(changesets))
	for _, cs := range changesets {
		ids = append(ids, cs.ID)
	}
	return n.dedup.AddAll(ids)
}

// NotifyIfNeeded sends an alert for a changeset that needs review and
// was not alerted before. It reports whether an alert went out.
func (n *Notifier) NotifyIfNeeded(ctx context.Context, cs *changeset.Changeset) (bool, error) {
	if !cs.Validation.NeedsReview() {
		return false, nil
	}
	if !n.claim(cs.ID) {
		return false, nil
	}
	defer n.release(cs.ID)
	if n.WebhookURL == "" || !n.Enabled {
		logger.Debugf("alerts disabled, skipping changeset %d", cs.ID)
		return false, nil
	}

	var payload interface{}
	if n.IsWorkflow() {
		payload = buildWorkflow(cs)
	} else {
		payload = buildBlockKit(cs)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return false, errors.Wrapf(err, "sending alert for changeset %d", cs.ID)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return false, errors.Errorf("sending alert for changeset %d: status %d: %s",
			cs.ID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := n.dedup.Add(cs.ID); err != nil {
		return true, err
	}
	logger.Printf("alert sent for changeset %d", cs.ID)
	return true, nil
}
