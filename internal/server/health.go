package server

import (
	"net/http"
	"time"
)

// Pre-allocated response body and header value slice.
// okBody avoids a []byte("ok") heap escape per call.
// plainCT avoids the []string{v} alloc from Header.Set.
// Together they save 3 allocs/req per health endpoint.
var (
	okBody       = []byte("ok")
	notReadyBody = []byte("not ready")
	plainCT      = []string{"text/plain"}
)

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Tokens        struct {
		Total   int `json:"total"`
		Enabled int `json:"enabled"`
	} `json:"tokens"`
	InternedBundles int `json:"interned_bundles"`
	Proxies         struct {
		Count   int    `json:"count"`
		General string `json:"general"`
	} `json:"proxies"`
	Logs struct {
		Count int `json:"count"`
	} `json:"logs"`
}

// handleHealth implements GET /health (spec.md §6): unlike /healthz's bare
// liveness probe, this reports a snapshot of the gateway's own server
// stats, read through the same read-mostly collaborators the admin CRUD
// surface uses.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var resp healthResponse
	resp.Status = "ok"
	resp.UptimeSeconds = int64(time.Since(s.deps.StartTime) / time.Second)
	if s.deps.Tokens != nil {
		entries := s.deps.Tokens.List()
		resp.Tokens.Total = len(entries)
		resp.Tokens.Enabled = len(s.deps.Tokens.Enabled())
	}
	if s.deps.TokenPool != nil {
		resp.InternedBundles = s.deps.TokenPool.Len()
	}
	if s.deps.Proxies != nil {
		resp.Proxies.Count = len(s.deps.Proxies.Declared())
		resp.Proxies.General = s.deps.Proxies.General()
	}
	if s.deps.Logs != nil {
		resp.Logs.Count = s.deps.Logs.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			w.Header()["Content-Type"] = plainCT
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write(notReadyBody)
			return
		}
	}
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}
