// Package oauth implements the OSM login flow: server-side state
// tokens persisted across restarts and the authorization code
// exchange against the openstreetmap.org OAuth2 endpoints.
package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/osmwatch/osmwatch/log"
)

var logger = log.NewLogger("oauth")

// stateTTL is how long a login attempt may take between the redirect
// to OSM and the callback.
const stateTTL = 10 * time.Minute

// States is a persisted set of one-time OAuth state tokens. Keeping
// them server-side avoids losing the state when the browser drops the
// session cookie during the OSM redirect.
type States struct {
	filename string

	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// LoadStates reads persisted states. Missing or corrupt files start
// an empty set, a lost state only forces a fresh login.
func LoadStates(filename string) (*States, error) {
	s := &States{filename: filename, tokens: map[string]time.Time{}, now: time.Now}
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading oauth states")
	}
	stored := map[string]string{}
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.Warnf("corrupt oauth states file %s, starting empty: %s", filename, err)
		return s, nil
	}
	for token, ts := range stored {
		issued, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		s.tokens[token] = issued
	}
	s.prune()
	return s, nil
}

// save writes the set. Callers must hold the lock.
func (s *States) save() error {
	stored := map[string]string{}
	for token, issued := range s.tokens {
		stored[token] = issued.Format(time.RFC3339)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(s.filename, data, 0600), "saving oauth states")
}

// prune drops expired states. Callers must hold the lock.
func (s *States) prune() {
	cutoff := s.now().Add(-stateTTL)
	for token, issued := range s.tokens {
		if issued.Before(cutoff) {
			delete(s.tokens, token)
		}
	}
}

// New issues and persists a fresh state token.
func (s *States) New() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generating oauth state")
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.tokens[token] = s.now()
	if err := s.save(); err != nil {
		return "", err
	}
	return token, nil
}

// Consume validates a state token from a callback. A token is good
// exactly once and only within its lifetime.
func (s *States) Consume(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	issued, ok := s.tokens[token]
	if !ok {
		return false
	}
	delete(s.tokens, token)
	if err := s.save(); err != nil {
		logger.Warnf("persisting oauth state removal: %s", err)
	}
	return s.now().Sub(issued) < stateTTL
}

// Cleanup prunes expired states and persists the result.
func (s *States) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.tokens)
	s.prune()
	if removed := before - len(s.tokens); removed > 0 {
		logger.Debugf("cleaned up %d expired oauth states", removed)
		if err := s.save(); err != nil {
			logger.Warnf("persisting oauth state cleanup: %s", err)
		}
	}
}

func (s *States) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
