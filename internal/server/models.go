package server

import (
	"net/http"
	"time"
)

// handleListModels implements GET /v1/models (§4.10), rendering the
// current model registry as an OpenAI-compatible list.
func (s *server) handleListModels(w http.ResponseWriter, r *http.Request) {
	descs := s.deps.Models.List()
	now := time.Now().Unix()
	data := make([]modelEntry, len(descs))
	for i, d := range descs {
		data[i] = modelEntry{
			ID:      d.ID,
			Object:  "model",
			Created: now,
			OwnedBy: "cursor",
		}
	}

	writeJSON(w, http.StatusOK, modelListResponse{
		Object: "list",
		Data:   data,
	})
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelListResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}
