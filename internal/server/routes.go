package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Video analysis
	mux.HandleFunc("/api/videos/analyze", s.app.VideoHandler.AnalyzeHandler) // POST - submit a URL
	mux.HandleFunc("/api/videos/status/", s.app.VideoHandler.StatusHandler)  // GET /{jobId}

	// API routes - Cache administration
	mux.HandleFunc("/api/cache/stats", s.app.CacheHandler.StatsHandler) // GET - sampled stats
	mux.HandleFunc("/api/cache/", s.app.CacheHandler.InvalidateHandler) // DELETE /{fingerprint}

	// API routes - Health
	mux.HandleFunc("/api/health", s.app.HealthHandler.GetHealthHandler) // GET - health + queue depth

	return mux
}
