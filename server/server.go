// Package server exposes the monitoring pipeline as a JSON API for
// the dashboard and handles the OSM login flow.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/osmwatch/osmwatch/changeset"
	"github.com/osmwatch/osmwatch/compare"
	"github.com/osmwatch/osmwatch/log"
	"github.com/osmwatch/osmwatch/oauth"
	"github.com/osmwatch/osmwatch/osmapi"
	"github.com/osmwatch/osmwatch/region"
)

var logger = log.NewLogger("server")

type Options struct {
	// FetchLimit is the changeset count per pipeline run. The
	// analytics views need the full picture, so this is high.
	FetchLimit     int
	TimeRangeHours int
}

type Server struct {
	client   *osmapi.Client
	regions  *region.Set
	fetcher  *changeset.Fetcher
	comparer *compare.Engine
	flow     *oauth.Flow
	sessions *sessionStore
	router   *mux.Router
	opts     Options
}

func New(client *osmapi.Client, regions *region.Set, fetcher *changeset.Fetcher,
	comparer *compare.Engine, flow *oauth.Flow, opts Options) *Server {
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 1000
	}
	if opts.TimeRangeHours <= 0 {
		opts.TimeRangeHours = 24
	}
	s := &Server{
		client:   client,
		regions:  regions,
		fetcher:  fetcher,
		comparer: comparer,
		flow:     flow,
		sessions: newSessionStore(),
		opts:     opts,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/regions", s.handleRegions).Methods("GET")
	r.HandleFunc("/api/regions/{id}", s.handleRegion).Methods("GET")
	r.HandleFunc("/api/changesets", s.handleChangesets).Methods("GET")
	r.HandleFunc("/api/statistics", s.handleStatistics).Methods("GET")
	r.HandleFunc("/api/analytics", s.handleAnalytics).Methods("GET")
	r.HandleFunc("/api/changeset/{id:[0-9]+}/comparison", s.handleComparison).Methods("GET")
	r.HandleFunc("/api/changeset/{id:[0-9]+}/comment", s.handleComment).Methods("POST")
	r.HandleFunc("/api/cache/clear", s.handleCacheClear).Methods("GET")
	r.HandleFunc("/api/user", s.handleUser).Methods("GET")
	r.HandleFunc("/api/user/changesets", s.handleUserChangesets).Methods("GET")
	r.HandleFunc("/api/profile/{username}", s.handleProfile).Methods("GET")
	r.HandleFunc("/oauth/login", s.handleLogin).Methods("GET")
	r.HandleFunc("/oauth/callback", s.handleCallback).Methods("GET")
	r.HandleFunc("/oauth/logout", s.handleLogout).Methods("GET")
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves the API until the listener fails.
func (s *Server) Run(listen string) error {
	logger.Printf("listening on http://%s", listen)
	return http.ListenAndServe(listen, s)
}

// Monitor runs the pipeline against the default region on a fixed
// interval so alerts go out even when nobody watches the dashboard.
func (s *Server) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.fetcher.Process(ctx, "", s.opts.FetchLimit); err != nil {
			logger.Errorf("monitoring pass: %s", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("writing response: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	})
}
