package server

import (
	"fmt"
	"io"
	"os"
)

var endpointSummary = []struct{ route, description string }{
	{"GET  /", "Resume submission page"},
	{"POST /", "Optimize from the submission page"},
	{"POST /api/optimize", "Optimize resume (JSON)"},
	{"POST /download", "Download optimized text as PDF"},
	{"GET  /health", "Health check"},
	{"GET  /stats", "Server statistics"},
}

// displayServerInfo prints the startup banner to stdout
func (s *Server) displayServerInfo() {
	s.writeServerInfo(os.Stdout)
}

func (s *Server) writeServerInfo(w io.Writer) {
	fmt.Fprintln(w, "Available endpoints:")
	for _, e := range endpointSummary {
		fmt.Fprintf(w, "  %-19s - %s\n", e.route, e.description)
	}

	if len(s.APIKeys) > 0 {
		fmt.Fprintf(w, "API authentication: ENABLED (%d keys configured)\n", len(s.APIKeys))
		fmt.Fprintln(w, "  Send 'X-API-Key: <key>' or 'Authorization: Bearer <key>' with POST requests")
	} else {
		fmt.Fprintln(w, "API authentication: DISABLED (no API keys configured)")
	}

	if s.MaxRequestSize > 0 {
		fmt.Fprintf(w, "Request size limit: %d bytes (%.1f MB)\n", s.MaxRequestSize, float64(s.MaxRequestSize)/(1024*1024))
	} else {
		fmt.Fprintln(w, "Request size limit: DISABLED")
	}

	if s.RateLimit != nil && s.RateLimit.Enabled {
		scope := "per IP"
		switch {
		case s.RateLimit.ByAPIKey && s.RateLimit.ByIP:
			scope = "per API key, else per IP"
		case s.RateLimit.ByAPIKey:
			scope = "per API key"
		}
		fmt.Fprintf(w, "Rate limiting: ENABLED (%d requests/min, burst %d, %s)\n",
			s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity, scope)
	} else {
		fmt.Fprintln(w, "Rate limiting: DISABLED")
	}

	if s.Optimizer != nil {
		fmt.Fprintf(w, "Fallback policy: %s\n", s.Optimizer.Policy())
	}
	if s.Renderer != nil {
		fmt.Fprintf(w, "PDF renderer: %s\n", s.Renderer.Engine())
	}
}
