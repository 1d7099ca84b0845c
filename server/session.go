package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"

	"github.com/pkg/errors"
)

const sessionCookie = "osmwatch_session"

// sessionUser is the account info kept per login, mirroring what the
// dashboard shows in the header.
type sessionUser struct {
	ID             int64  `json:"id"`
	DisplayName    string `json:"display_name"`
	AccountCreated string `json:"account_created"`
	ChangesetCount int    `json:"changeset_count"`
	ImageURL       string `json:"img_url"`
}

type session struct {
	user  sessionUser
	token string
}

// sessionStore keeps logins in memory, a restart logs everyone out.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: map[string]*session{}}
}

func (s *sessionStore) create(user sessionUser, token string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generating session id")
	}
	id := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	s.sessions[id] = &session{user: user, token: token}
	s.mu.Unlock()
	return id, nil
}

func (s *sessionStore) get(r *http.Request) *session {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *sessionStore) delete(r *http.Request) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.sessions, c.Value)
	s.mu.Unlock()
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
