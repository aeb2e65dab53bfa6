package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"damai-scraper/models"
	"damai-scraper/utils"
)

// ShowUpdater refreshes the stored shows of a list of artists.
type ShowUpdater interface {
	UpdateShows(ctx context.Context, artists []string) []models.ArtistResult
}

type Server struct {
	updater ShowUpdater
	logger  *utils.Logger
}

type UpdateRequest struct {
	Artists []string `json:"artists"`
}

type UpdateResponse struct {
	Success bool                  `json:"success"`
	Data    []models.ArtistResult `json:"data"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func NewServer(updater ShowUpdater, logger *utils.Logger) *Server {
	return &Server{updater: updater, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/crawler/update", s.handleUpdate)
	mux.HandleFunc("/health", s.handleHealth)
	return withCORS(mux)
}

// withCORS allows any origin without credentials.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "method not allowed"})
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON: " + err.Error()})
		return
	}

	artists := make([]string, 0, len(req.Artists))
	for _, a := range req.Artists {
		if a = strings.TrimSpace(a); a != "" {
			artists = append(artists, a)
		}
	}

	s.logger.Info("[web] Update requested for %d artist(s)", len(artists))
	results := s.updater.UpdateShows(r.Context(), artists)
	writeJSON(w, http.StatusOK, UpdateResponse{Success: true, Data: results})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
