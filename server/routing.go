package server

import (
	"net/http"
)

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.handleHealth))

	// Scheduler control surface
	mux.HandleFunc("/api/scheduler/enqueue", s.corsMiddleware(s.handleEnqueueAll))          // Full re-scoring pass (POST)
	mux.HandleFunc("/api/scheduler/enqueue/{itemID}", s.corsMiddleware(s.handleEnqueueOne)) // Single item (POST)
	mux.HandleFunc("/api/scheduler/start", s.corsMiddleware(s.handleStart))
	mux.HandleFunc("/api/scheduler/stop", s.corsMiddleware(s.handleStop))
	mux.HandleFunc("/api/scheduler/pause", s.corsMiddleware(s.handlePause))
	mux.HandleFunc("/api/scheduler/resume", s.corsMiddleware(s.handleResume))
	mux.HandleFunc("/api/scheduler/clear", s.corsMiddleware(s.handleClear))
	mux.HandleFunc("/api/scheduler/stats", s.corsMiddleware(s.handleStats))
	mux.HandleFunc("/api/scheduler/jobs", s.corsMiddleware(s.handleJobsOfType)) // ?type=popularity|featured|classification

	// Daily pipeline
	mux.HandleFunc("/api/pipeline/run", s.corsMiddleware(s.handleRunPipeline))

	// Click tracking path
	mux.HandleFunc("/api/items/{itemID}/click", s.corsMiddleware(s.handleClick))

	// Live work-item stream
	mux.HandleFunc("/ws/jobs", s.corsMiddleware(s.handleJobStream))
}

// corsMiddleware adds CORS headers using the configured allowed origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// originAllowed checks an Origin header against server.allowed_origins,
// matching on prefix so port variants are accepted
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if origin == allowed || len(origin) > len(allowed) && origin[:len(allowed)+1] == allowed+":" {
			return true
		}
	}
	return false
}
