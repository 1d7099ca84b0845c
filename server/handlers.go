package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/osmwatch/osmwatch/changeset"
	"github.com/osmwatch/osmwatch/osmapi"
	"github.com/osmwatch/osmwatch/region"
)

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"regions":       s.regions.All(),
		"currentRegion": s.regions.DefaultID(),
		"defaultRegion": s.regions.DefaultID(),
	})
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	reg, ok := s.regions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Region %s not found", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"region":  reg.Info,
	})
}

// resolveRegion reads the region query parameter, an empty value means
// the default region.
func (s *Server) resolveRegion(w http.ResponseWriter, r *http.Request) (*region.Region, bool) {
	id := r.URL.Query().Get("region")
	reg, ok := s.regions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Region %s not found", id)
		return nil, false
	}
	return reg, true
}

func (s *Server) handleChangesets(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.resolveRegion(w, r)
	if !ok {
		return
	}
	changesets, err := s.fetcher.Process(r.Context(), reg.ID, s.opts.FetchLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"count":      len(changesets),
		"region":     reg.ID,
		"regionName": reg.Info.Name,
		"changesets": changesets,
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.resolveRegion(w, r)
	if !ok {
		return
	}
	changesets, err := s.fetcher.Process(r.Context(), reg.ID, s.opts.FetchLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"statistics": changeset.Statistics(changesets, s.opts.TimeRangeHours),
		"region":     reg.ID,
		"regionName": reg.Info.Name,
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.resolveRegion(w, r)
	if !ok {
		return
	}
	changesets, err := s.fetcher.Process(r.Context(), reg.ID, s.opts.FetchLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}
	// the charts always show the last 24 hours
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	data := changeset.Analytics(changesets, cutoff)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"analytics":       data,
		"changeset_count": data.Summary.TotalChangesets,
		"region":          reg.ID,
		"regionName":      reg.Info.Name,
	})
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid changeset id")
		return
	}
	result, err := s.comparer.Compare(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"changeset_id": id,
		"comparison":   result,
	})
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid changeset id")
		return
	}
	body := struct {
		Comment string `json:"comment"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.TrimSpace(body.Comment)
	if text == "" {
		writeError(w, http.StatusBadRequest, "Comment text is required")
		return
	}
	if err := s.client.PostChangesetComment(r.Context(), id, text, sess.token); err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Comment posted successfully",
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.fetcher.ClearCaches()
	s.comparer.ClearCache()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Cleared changeset and comparison caches",
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(r)
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"logged_in": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logged_in": true,
		"user":      sess.user,
	})
}

func (s *Server) handleUserChangesets(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Not logged in")
		return
	}
	reg, ok := s.resolveRegion(w, r)
	if !ok {
		return
	}
	changesets, err := s.fetcher.UserChangesets(r.Context(), reg.ID, sess.user.DisplayName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"count":      len(changesets),
		"region":     reg.ID,
		"regionName": reg.Info.Name,
		"changesets": changesets,
		"time_range": "365 days",
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	page, err := s.client.Changesets(r.Context(), osmapi.ListOptions{
		DisplayName: username,
		Closed:      true,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}
	if len(page) == 0 {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	user, err := s.client.UserByID(r.Context(), page[0].UID)
	if err != nil {
		// profile endpoints come and go, the listing has the basics
		logger.Warnf("user details for %s: %s", username, err)
		user = &osmapi.User{
			ID:             page[0].UID,
			DisplayName:    page[0].User,
			AccountCreated: page[0].CreatedAt.Format(time.RFC3339),
			Changesets:     len(page),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.flow.Configured() {
		writeError(w, http.StatusServiceUnavailable, "OAuth not configured")
		return
	}
	s.flow.States.Cleanup()
	loginURL, err := s.flow.LoginURL()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}
	http.Redirect(w, r, loginURL, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "No authorization code received")
		return
	}
	token, err := s.flow.Exchange(r.Context(), r.URL.Query().Get("state"), code)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err)
		return
	}
	user, err := s.client.UserDetails(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}

	id, err := s.sessions.create(sessionUser{
		ID:             user.ID,
		DisplayName:    user.DisplayName,
		AccountCreated: user.AccountCreated,
		ChangesetCount: user.Changesets,
		ImageURL:       user.ImageURL,
	}, token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%s", err)
		return
	}
	setSessionCookie(w, id)
	logger.Printf("logged in as %s", user.DisplayName)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.delete(r)
	clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}
