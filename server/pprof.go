package server

import (
	"net/http"
	_ "net/http/pprof"
)

// StartHTTPPProf serves the net/http/pprof handlers on a separate
// listener. The API router never exposes them.
func StartHTTPPProf(bind string) {
	go func() {
		logger.Errorf("pprof listener: %s", http.ListenAndServe(bind, nil))
	}()
}
