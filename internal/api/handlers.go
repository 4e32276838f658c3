package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/0tSystemsPublicRepos/mirage/internal/database"
	"github.com/0tSystemsPublicRepos/mirage/internal/deception"
	"github.com/0tSystemsPublicRepos/mirage/internal/pipeline"
	"github.com/0tSystemsPublicRepos/mirage/internal/response"
)

// APIServer exposes the pipeline's command surface: set deception posture,
// set response posture, request a test incident, query status and logs.
type APIServer struct {
	listenAddr  string
	coordinator *pipeline.Coordinator
	db          *database.SQLiteDB
	server      *http.Server
}

func NewAPIServer(listenAddr string, coordinator *pipeline.Coordinator, db *database.SQLiteDB) *APIServer {
	return &APIServer{
		listenAddr:  listenAddr,
		coordinator: coordinator,
		db:          db,
	}
}

func (s *APIServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.corsMiddleware(s.handleHealth))
	mux.HandleFunc("/api/status", s.corsMiddleware(s.handleStatus))
	mux.HandleFunc("/api/deception/posture", s.corsMiddleware(s.handleDeceptionPosture))
	mux.HandleFunc("/api/deception/log", s.corsMiddleware(s.handleDeceptionLog))
	mux.HandleFunc("/api/response/posture", s.corsMiddleware(s.handleResponsePosture))
	mux.HandleFunc("/api/response/test", s.corsMiddleware(s.handleTestIncident))
	mux.HandleFunc("/api/incidents", s.corsMiddleware(s.handleIncidents))
	mux.HandleFunc("/api/incidents/history", s.corsMiddleware(s.handleIncidentHistory))
	mux.HandleFunc("/api/sources", s.corsMiddleware(s.handleTopSources))
	mux.HandleFunc("/api/blocked", s.corsMiddleware(s.handleBlocked))

	return mux
}

func (s *APIServer) Start() error {
	s.server = &http.Server{Addr: s.listenAddr, Handler: s.routes()}
	return s.server.ListenAndServe()
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *APIServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryLimit(r *http.Request, fallback int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			return parsed
		}
	}
	return fallback
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Status())
}

func (s *APIServer) handleDeceptionPosture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	var req struct {
		Posture string `json:"posture"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	posture, err := deception.ParsePosture(req.Posture)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	report := s.coordinator.SetDeceptionPosture(posture)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"summary": report.Summary(),
		"report":  report,
	})
}

func (s *APIServer) handleDeceptionLog(w http.ResponseWriter, r *http.Request) {
	events := s.coordinator.Deception().Log(queryLimit(r, 100))
	if events == nil {
		events = []deception.ConnectionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *APIServer) handleResponsePosture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	var req struct {
		Active bool   `json:"active"`
		Level  string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if !req.Active {
		s.coordinator.DeactivateResponse()
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "response": s.coordinator.Response().Stats()})
		return
	}

	level := response.PostureModerate
	if req.Level != "" {
		parsed, err := response.ParsePosture(req.Level)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		level = parsed
	}

	s.coordinator.ActivateResponse(level)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "response": s.coordinator.Response().Stats()})
}

func (s *APIServer) handleTestIncident(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}

	writeJSON(w, http.StatusOK, s.coordinator.TestIncident())
}

func (s *APIServer) handleIncidents(w http.ResponseWriter, r *http.Request) {
	incidents := s.coordinator.Response().Log(queryLimit(r, 50))
	if incidents == nil {
		incidents = []response.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (s *APIServer) handleIncidentHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not available"})
		return
	}

	incidents, err := s.db.GetRecentIncidents(queryLimit(r, 50))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if incidents == nil {
		incidents = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (s *APIServer) handleTopSources(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not available"})
		return
	}

	sources, err := s.db.TopSources(queryLimit(r, 20))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sources == nil {
		sources = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *APIServer) handleBlocked(w http.ResponseWriter, r *http.Request) {
	blocked := s.coordinator.Response().BlockedIPs()
	if blocked == nil {
		blocked = []string{}
	}
	writeJSON(w, http.StatusOK, blocked)
}
