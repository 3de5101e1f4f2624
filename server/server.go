// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the validation pipeline and the masking
// orchestrator over HTTP.
//
// API Endpoints:
//   - GET    /health                               - Liveness
//   - GET    /metrics                              - Prometheus metrics
//   - POST   /api/v1/validate                      - Validate candidates
//   - POST   /api/v1/scan                          - Recognize and validate free text
//   - POST   /api/v1/mask/preview                  - Mask one value under the active policy
//   - GET    /api/v1/policy                        - Active masking policy
//   - GET    /api/v1/adapters                      - Registered adapters
//   - POST   /api/v1/adapters                      - Register an adapter (admin)
//   - DELETE /api/v1/adapters/{name}               - Unregister an adapter (admin)
//   - POST   /api/v1/masking/runs                  - Start a masking run (mask)
//   - GET    /api/v1/masking/runs                  - Recent runs
//   - GET    /api/v1/masking/runs/{id}             - One run
//   - POST   /api/v1/masking/runs/{id}/rollback    - Roll a run back (mask)
//   - GET    /api/v1/masking/audit                 - Audit entries by asset
//   - GET    /api/v1/quality/report                - Detection quality report
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/bharat-parihar/ARC-Hawk/audit"
	"github.com/bharat-parihar/ARC-Hawk/confidence"
	"github.com/bharat-parihar/ARC-Hawk/connectors/registry"
	"github.com/bharat-parihar/ARC-Hawk/orchestrator"
	"github.com/bharat-parihar/ARC-Hawk/pipeline"
	"github.com/bharat-parihar/ARC-Hawk/quality"
	"github.com/bharat-parihar/ARC-Hawk/recognizer"
	"github.com/bharat-parihar/ARC-Hawk/shared/logger"
)

// Limits on request size.
const (
	MaxCandidatesPerRequest = 1000
	MaxScanTextBytes        = 1 << 20
	maxBodyBytes            = 8 << 20
)

// Permissions carried in the JWT "permissions" claim.
const (
	PermissionMask  = "mask"
	PermissionAdmin = "admin"
)

// Deps are the components served. Pipeline and Orchestrator are required;
// the rest disable their endpoints when nil.
type Deps struct {
	Pipeline     *pipeline.Pipeline
	Recognizer   *recognizer.Engine
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Audit        audit.Repository
	Tracker      *quality.Tracker
	Ingest       *pipeline.IngestClient
	// Scorer adds line-level heuristic findings to /scan responses.
	Scorer *confidence.LineScorer
}

// Config holds HTTP settings.
type Config struct {
	// JWTSecret signs bearer tokens (HS256). Empty disables authentication.
	JWTSecret      []byte
	AllowedOrigins []string
	// Workers bounds the validation worker pool per request.
	Workers int
}

// Server serves the HTTP API.
type Server struct {
	deps   Deps
	cfg    Config
	router *mux.Router
	log    *logger.Logger
	stdlog *log.Logger
}

// New builds the router.
func New(deps Deps, cfg Config) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = pipeline.DefaultWorkers
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		router: mux.NewRouter(),
		log:    logger.New("hawk-api"),
		stdlog: log.New(os.Stdout, "[HAWK_API] ", log.LstdFlags),
	}
	if len(cfg.JWTSecret) == 0 {
		s.stdlog.Println("⚠️ HAWK_JWT_SECRET not set - API authentication disabled")
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requestID, s.authenticate)

	api.HandleFunc("/validate", s.handleValidate).Methods("POST")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/mask/preview", s.handleMaskPreview).Methods("POST")
	api.HandleFunc("/policy", s.handlePolicy).Methods("GET")

	api.HandleFunc("/adapters", s.handleListAdapters).Methods("GET")
	api.HandleFunc("/adapters", s.require(PermissionAdmin, s.handleRegisterAdapter)).Methods("POST")
	api.HandleFunc("/adapters/{name}", s.require(PermissionAdmin, s.handleUnregisterAdapter)).Methods("DELETE")

	api.HandleFunc("/masking/runs", s.require(PermissionMask, s.handleStartRun)).Methods("POST")
	api.HandleFunc("/masking/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/masking/runs/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/masking/runs/{id}/rollback", s.require(PermissionMask, s.handleRollback)).Methods("POST")
	api.HandleFunc("/masking/audit", s.handleAudit).Methods("GET")

	api.HandleFunc("/quality/report", s.handleQualityReport).Methods("GET")
}

// Handler returns the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]interface{}{
		"status":          "healthy",
		"service":         "arc-hawk",
		"scanner_version": pipeline.ScannerVersion,
	}, http.StatusOK)
}

func writeJSONResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[HAWK_API] Error encoding response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    statusCode,
			"message": message,
		},
	}, statusCode)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "Invalid request body: "+logger.Scrub(err.Error()), http.StatusBadRequest)
		return false
	}
	return true
}
