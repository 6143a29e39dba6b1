package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursortoken"
	"github.com/zhengwenj/cursor-api-sub001/internal/proxypool"
	"github.com/zhengwenj/cursor-api-sub001/internal/storage"
	"github.com/zhengwenj/cursor-api-sub001/internal/tokenstate"
)

// --- /build-key ---

type buildKeyRequest struct {
	RawJWT               string   `json:"raw_jwt"`
	VisionDisabled       bool     `json:"vision_disabled,omitempty"`
	SlowPool             bool     `json:"slow_pool,omitempty"`
	UsageCheckModels     []string `json:"usage_check_models,omitempty"`
	IncludeWebReferences bool     `json:"include_web_references,omitempty"`
}

// handleBuildKey implements GET/POST /build-key: encodes a KeyConfig
// protobuf and renders the downstream dynamic-key string (§4.5 step 4).
func (s *server) handleBuildKey(w http.ResponseWriter, r *http.Request) {
	var req buildKeyRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
			return
		}
	} else {
		req.RawJWT = r.URL.Query().Get("raw_jwt")
	}
	if req.RawJWT == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("raw_jwt is required"))
		return
	}

	kc := cursorpb.KeyConfig{
		RawJWT:               req.RawJWT,
		VisionDisabled:       req.VisionDisabled,
		SlowPool:             req.SlowPool,
		UsageCheckModels:     req.UsageCheckModels,
		IncludeWebReferences: req.IncludeWebReferences,
	}
	encoded := base64.RawURLEncoding.EncodeToString(kc.Marshal())
	writeJSON(w, http.StatusOK, map[string]string{"suffix": encoded})
}

// --- /tokens ---

type tokenView struct {
	ID      uint32 `json:"id"`
	Alias   string `json:"alias"`
	Enabled bool   `json:"enabled"`
	Proxy   string `json:"proxy,omitempty"`
}

func (s *server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.Tokens.List()
	out := make([]tokenView, 0, len(entries))
	for _, e := range entries {
		out = append(out, tokenView{ID: e.ID, Alias: e.Info.Alias, Enabled: e.Info.Enabled, Proxy: e.Info.ProxyName})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

type addTokenRequest struct {
	RawJWT string `json:"raw_jwt"`
	Alias  string `json:"alias,omitempty"`
}

func (s *server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	var req addTokenRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}
	raw, err := cursortoken.ParseRawToken(req.RawJWT, time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid raw_jwt: "+err.Error()))
		return
	}
	info := tokenstate.TokenInfo{Raw: raw, Enabled: true}
	id, err := s.deps.Tokens.Add(info, req.Alias)
	if err != nil {
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
		return
	}
	s.persistTokens(r)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *server) handleRemoveToken(w http.ResponseWriter, r *http.Request) {
	id, err := tokenstate.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if err := s.deps.Tokens.Remove(id); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))
		return
	}
	s.persistTokens(r)
	w.WriteHeader(http.StatusNoContent)
}

type setAliasRequest struct {
	Alias string `json:"alias"`
}

func (s *server) handleSetTokenAlias(w http.ResponseWriter, r *http.Request) {
	id, err := tokenstate.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	var req setAliasRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}
	if err := s.deps.Tokens.SetAlias(id, req.Alias); err != nil {
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
		return
	}
	s.persistTokens(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) persistTokens(r *http.Request) {
	if s.deps.Store == nil {
		return
	}
	_ = s.deps.Store.SaveTokens(r.Context(), s.deps.Tokens.Snapshot())
}

// --- /proxies ---

type proxyView struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	URL     string `json:"url,omitempty"`
	General bool   `json:"general,omitempty"`
}

func (s *server) handleListProxies(w http.ResponseWriter, r *http.Request) {
	decl := s.deps.Proxies.Declared()
	general := s.deps.Proxies.General()
	out := make([]proxyView, 0, len(decl))
	for name, sp := range decl {
		out = append(out, proxyView{Name: name, Kind: kindString(sp.Kind), URL: sp.URL, General: name == general})
	}
	writeJSON(w, http.StatusOK, map[string]any{"proxies": out})
}

type replaceProxiesRequest struct {
	Proxies []proxyView `json:"proxies"`
	General string      `json:"general"`
}

func (s *server) handleReplaceProxies(w http.ResponseWriter, r *http.Request) {
	var req replaceProxiesRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}
	decl := make(map[string]proxypool.SingleProxy, len(req.Proxies))
	for _, p := range req.Proxies {
		kind, err := parseKind(p.Kind)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		decl[p.Name] = proxypool.SingleProxy{Kind: kind, URL: p.URL}
	}
	persist := func(map[string]proxypool.SingleProxy, string) error { return nil }
	if s.deps.Store != nil {
		persist = func(d map[string]proxypool.SingleProxy, general string) error {
			recs := make([]storage.ProxyRecord, 0, len(d))
			for name, sp := range d {
				recs = append(recs, storage.ProxyRecord{Name: name, Kind: sp.Kind, URL: sp.URL})
			}
			return s.deps.Store.SaveProxies(r.Context(), recs, general)
		}
	}
	if err := s.deps.Proxies.UpdateAndSave(decl, req.General, persist); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func kindString(k proxypool.Kind) string {
	switch k {
	case proxypool.KindSystem:
		return "system"
	case proxypool.KindURL:
		return "url"
	default:
		return "none"
	}
}

func parseKind(s string) (proxypool.Kind, error) {
	switch s {
	case "none", "":
		return proxypool.KindNone, nil
	case "system":
		return proxypool.KindSystem, nil
	case "url":
		return proxypool.KindURL, nil
	default:
		return 0, gateway.ErrBadRequest
	}
}

// --- /logs ---

func (s *server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	logs := s.deps.Logs.List(offset, limit)
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "total": s.deps.Logs.Len()})
}

// --- /config ---

func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	values, err := s.deps.Store.LoadConfig(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSON(w, http.StatusForbidden, errorResponse("no config store configured"))
		return
	}
	var values map[string]string
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&values); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}
	if err := s.deps.Store.SaveConfig(r.Context(), values); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
