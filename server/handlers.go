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

package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/bharat-parihar/ARC-Hawk/audit"
	"github.com/bharat-parihar/ARC-Hawk/confidence"
	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/registry"
	"github.com/bharat-parihar/ARC-Hawk/orchestrator"
	"github.com/bharat-parihar/ARC-Hawk/pipeline"
	"github.com/bharat-parihar/ARC-Hawk/recognizer"
	"github.com/bharat-parihar/ARC-Hawk/shared/logger"
)

// CandidateRequest is one candidate submitted for validation.
type CandidateRequest struct {
	Value           string              `json:"value"`
	PIIType         string              `json:"pii_type"`
	SurroundingText string              `json:"surrounding_text,omitempty"`
	MatchStart      int                 `json:"match_start,omitempty"`
	MatchEnd        int                 `json:"match_end,omitempty"`
	BaseConfidence  float64             `json:"base_confidence,omitempty"`
	PatternName     string              `json:"pattern_name,omitempty"`
	MLEntityType    string              `json:"ml_entity_type,omitempty"`
	Source          pipeline.SourceInfo `json:"source"`
}

func (c CandidateRequest) candidate() pipeline.Candidate {
	return pipeline.Candidate{
		RawValue:        c.Value,
		PIITypeHint:     c.PIIType,
		Source:          c.Source,
		SurroundingText: c.SurroundingText,
		MatchStart:      c.MatchStart,
		MatchEnd:        c.MatchEnd,
		BaseConfidence:  c.BaseConfidence,
		PatternName:     c.PatternName,
		MLEntityType:    c.MLEntityType,
	}
}

// Rejection describes a candidate that produced no finding. It never
// carries the candidate value.
type Rejection struct {
	PIIType string         `json:"pii_type"`
	Stage   pipeline.Stage `json:"stage"`
	Reason  string         `json:"reason"`
}

// ValidationResponse is returned by /validate and /scan.
type ValidationResponse struct {
	Total      int                        `json:"total"`
	Accepted   int                        `json:"accepted"`
	Findings   []pipeline.VerifiedFinding `json:"findings"`
	Rejections []Rejection                `json:"rejections"`
	// ScanID is set when the findings were forwarded for ingestion.
	ScanID string `json:"scan_id,omitempty"`
}

// ScanResponse is returned by /scan. Heuristic findings come from the
// line scorer and carry hashes only.
type ScanResponse struct {
	ValidationResponse
	Heuristic []confidence.LineFinding `json:"heuristic_findings"`
}

// RowInput is one database row to scan. Only Column is scanned; the other
// columns become its context.
type RowInput struct {
	Table   string                 `json:"table"`
	Columns []string               `json:"columns"`
	Values  map[string]interface{} `json:"values"`
	Column  string                 `json:"column"`
}

func buildValidationResponse(results []pipeline.Result) ValidationResponse {
	resp := ValidationResponse{
		Total:      len(results),
		Findings:   []pipeline.VerifiedFinding{},
		Rejections: []Rejection{},
	}
	for _, r := range results {
		if r.Accepted() {
			resp.Findings = append(resp.Findings, *r.Finding)
			continue
		}
		resp.Rejections = append(resp.Rejections, Rejection{
			PIIType: r.PIIType,
			Stage:   r.Stage,
			Reason:  r.Outcome.RejectionReason,
		})
	}
	resp.Accepted = len(resp.Findings)
	pipeline.SortFindings(resp.Findings)
	sort.SliceStable(resp.Rejections, func(i, j int) bool {
		a, b := resp.Rejections[i], resp.Rejections[j]
		if a.PIIType != b.PIIType {
			return a.PIIType < b.PIIType
		}
		return a.Reason < b.Reason
	})
	return resp
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Candidates []CandidateRequest `json:"candidates"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Candidates) == 0 {
		writeJSONError(w, "candidates is required", http.StatusBadRequest)
		return
	}
	if len(req.Candidates) > MaxCandidatesPerRequest {
		writeJSONError(w, fmt.Sprintf("at most %d candidates per request", MaxCandidatesPerRequest), http.StatusRequestEntityTooLarge)
		return
	}

	candidates := make([]pipeline.Candidate, len(req.Candidates))
	for i, c := range req.Candidates {
		candidates[i] = c.candidate()
	}
	s.validate(w, r, candidates)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recognizer == nil {
		writeJSONError(w, "Recognizer not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Text   string              `json:"text"`
		Row    *RowInput           `json:"row,omitempty"`
		Source pipeline.SourceInfo `json:"source"`
		Ingest bool                `json:"ingest"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Row != nil {
		v, ok := req.Row.Values[req.Row.Column]
		if req.Row.Column == "" || !ok || v == nil {
			writeJSONError(w, "row.column must name a non-null value", http.StatusBadRequest)
			return
		}
		req.Text = fmt.Sprint(v)
	}
	if req.Text == "" {
		writeJSONError(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.Ingest && s.deps.Ingest == nil {
		writeJSONError(w, "Ingestion not configured", http.StatusBadRequest)
		return
	}
	if len(req.Text) > MaxScanTextBytes {
		writeJSONError(w, "text too large", http.StatusRequestEntityTooLarge)
		return
	}

	candidates, err := s.deps.Recognizer.Candidates(r.Context(), req.Text, req.Source)
	if err != nil {
		s.log.Error(principalFrom(r.Context()).Subject, requestIDFrom(r.Context()), "Recognition failed", map[string]interface{}{"error": err.Error()})
		writeJSONError(w, "Recognition failed", http.StatusBadGateway)
		return
	}
	if req.Row != nil {
		pipeline.WithRowContext(candidates, req.Row.Table, req.Row.Columns, req.Row.Values, req.Row.Column)
	} else {
		for i := range candidates {
			candidates[i].Source.Line = pipeline.LineOf(req.Text, candidates[i].MatchStart)
		}
	}
	validated, ok := s.runBatch(w, r, candidates)
	if !ok {
		return
	}
	resp := ScanResponse{ValidationResponse: validated, Heuristic: []confidence.LineFinding{}}
	if s.deps.Scorer != nil {
		if found := s.deps.Scorer.ScanContent(req.Text, recognizer.LinePatterns()); len(found) > 0 {
			resp.Heuristic = found
		}
	}
	if req.Ingest && resp.Accepted > 0 {
		ingested, err := s.deps.Ingest.Send(r.Context(), resp.Findings)
		if err != nil {
			s.log.Error(principalFrom(r.Context()).Subject, requestIDFrom(r.Context()), "Ingestion failed", map[string]interface{}{"error": err.Error()})
			writeJSONError(w, "Ingestion failed", http.StatusBadGateway)
			return
		}
		resp.ScanID = ingested.ScanID
	}
	writeJSONResponse(w, resp, http.StatusOK)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request, candidates []pipeline.Candidate) {
	if resp, ok := s.runBatch(w, r, candidates); ok {
		writeJSONResponse(w, resp, http.StatusOK)
	}
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request, candidates []pipeline.Candidate) (ValidationResponse, bool) {
	start := time.Now()
	results, err := s.deps.Pipeline.ValidateBatch(r.Context(), candidates, s.cfg.Workers)
	if err != nil {
		writeJSONError(w, "Validation cancelled", http.StatusServiceUnavailable)
		return ValidationResponse{}, false
	}
	resp := buildValidationResponse(results)
	s.log.InfoWithDuration(principalFrom(r.Context()).Subject, requestIDFrom(r.Context()), "Validated candidates",
		float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"total":    resp.Total,
			"accepted": resp.Accepted,
		})
	return resp, true
}

func (s *Server) handleMaskPreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value   string `json:"value"`
		PIIType string `json:"pii_type"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Value == "" {
		writeJSONError(w, "value is required", http.StatusBadRequest)
		return
	}
	policy := s.deps.Orchestrator.Policy()
	if !policy.ShouldMaskPIIType(req.PIIType) {
		writeJSONResponse(w, map[string]interface{}{"excluded": true, "pii_type": req.PIIType}, http.StatusOK)
		return
	}
	masker, err := policy.Masker()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, map[string]interface{}{
		"masked":   masker.Mask(req.Value, req.PIIType),
		"strategy": policy.StrategyFor(req.PIIType),
		"pii_type": req.PIIType,
	}, http.StatusOK)
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	policy := s.deps.Orchestrator.Policy()
	policy.SecretKey = ""
	writeJSONResponse(w, policy, http.StatusOK)
}

type adapterInfo struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	BackupEnabled bool   `json:"backup_enabled"`
	DryRun        bool   `json:"dry_run"`
}

func (s *Server) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		writeJSONError(w, "Adapter registry not configured", http.StatusServiceUnavailable)
		return
	}
	adapters := []adapterInfo{}
	for _, name := range s.deps.Registry.List() {
		cfg, err := s.deps.Registry.GetConfig(name)
		if err != nil {
			continue
		}
		adapters = append(adapters, adapterInfo{Name: name, Type: cfg.Type, BackupEnabled: cfg.BackupEnabled, DryRun: cfg.DryRun})
	}
	writeJSONResponse(w, map[string]interface{}{
		"adapters":        adapters,
		"supported_types": registry.Types(),
	}, http.StatusOK)
}

// AdapterRequest registers an adapter. Credentials must be secret
// references; they are resolved when the adapter connects.
type AdapterRequest struct {
	Name           string                 `json:"name"`
	Type           string                 `json:"type"`
	ConnectionURL  string                 `json:"connection_url"`
	Credentials    map[string]string      `json:"credentials"`
	Options        map[string]interface{} `json:"options"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
	BackupEnabled  bool                   `json:"backup_enabled"`
	DryRun         bool                   `json:"dry_run"`
}

func (s *Server) handleRegisterAdapter(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		writeJSONError(w, "Adapter registry not configured", http.StatusServiceUnavailable)
		return
	}
	var req AdapterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Type == "" {
		writeJSONError(w, "name and type are required", http.StatusBadRequest)
		return
	}
	for key, v := range req.Credentials {
		if !registry.IsSecretRef(v) {
			writeJSONError(w, fmt.Sprintf("credential '%s' must be a secret reference (aws-sm://, env:// or local://)", key), http.StatusBadRequest)
			return
		}
	}

	cfg := &base.AdapterConfig{
		Name:          req.Name,
		Type:          req.Type,
		ConnectionURL: req.ConnectionURL,
		Credentials:   req.Credentials,
		Options:       req.Options,
		Timeout:       time.Duration(req.TimeoutSeconds) * time.Second,
		BackupEnabled: req.BackupEnabled,
		DryRun:        req.DryRun,
	}
	if err := s.deps.Registry.Register(r.Context(), cfg); err != nil {
		writeJSONError(w, logger.Scrub(err.Error()), http.StatusBadRequest)
		return
	}
	s.log.Info(principalFrom(r.Context()).Subject, requestIDFrom(r.Context()), "Adapter registered", map[string]interface{}{
		"adapter": req.Name,
		"type":    req.Type,
	})
	writeJSONResponse(w, adapterInfo{Name: cfg.Name, Type: cfg.Type, BackupEnabled: cfg.BackupEnabled, DryRun: cfg.DryRun}, http.StatusCreated)
}

func (s *Server) handleUnregisterAdapter(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		writeJSONError(w, "Adapter registry not configured", http.StatusServiceUnavailable)
		return
	}
	name := mux.Vars(r)["name"]
	if _, err := s.deps.Registry.GetConfig(name); err != nil {
		writeJSONError(w, "Adapter not found", http.StatusNotFound)
		return
	}
	if err := s.deps.Registry.Unregister(r.Context(), name); err != nil {
		writeJSONError(w, logger.Scrub(err.Error()), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if !decodeBody(w, r, &req) {
		return
	}
	req.RequestedBy = principalFrom(r.Context()).Subject

	run, err := s.deps.Orchestrator.Run(r.Context(), req)
	switch {
	case errors.Is(err, orchestrator.ErrConfirmationRequired):
		writeJSONError(w, "Masking requires confirmation: set \"confirmed\": true", http.StatusPreconditionRequired)
		return
	case errors.Is(err, orchestrator.ErrNoTargets), errors.Is(err, orchestrator.ErrTooManyFindings):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		writeJSONError(w, logger.Scrub(err.Error()), http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, run, http.StatusCreated)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]interface{}{"runs": s.deps.Orchestrator.List()}, http.StatusOK)
}

func runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSONError(w, "Invalid run ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	run, err := s.deps.Orchestrator.Get(id)
	if err != nil {
		writeJSONError(w, "Run not found", http.StatusNotFound)
		return
	}
	writeJSONResponse(w, run, http.StatusOK)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	run, err := s.deps.Orchestrator.Rollback(r.Context(), id)
	switch {
	case errors.Is(err, orchestrator.ErrRunNotFound):
		writeJSONError(w, "Run not found", http.StatusNotFound)
		return
	case err != nil:
		writeJSONError(w, logger.Scrub(err.Error()), http.StatusConflict)
		return
	}
	s.log.Info(principalFrom(r.Context()).Subject, requestIDFrom(r.Context()), "Run rolled back", map[string]interface{}{
		"run_id": id.String(),
		"status": string(run.Status),
	})
	writeJSONResponse(w, run, http.StatusOK)
}

// handleAudit lists audit entries by run_id, by asset, or by adapter and
// location.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		writeJSONError(w, "Audit log not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	var (
		entries []audit.MaskingAudit
		err     error
	)
	switch {
	case q.Get("run_id") != "":
		id, perr := uuid.Parse(q.Get("run_id"))
		if perr != nil {
			writeJSONError(w, "Invalid run_id", http.StatusBadRequest)
			return
		}
		entries, err = s.deps.Audit.ListByRun(r.Context(), id)
	case q.Get("asset") != "":
		entries, err = s.deps.Audit.ListByAsset(r.Context(), q.Get("asset"))
	case q.Get("adapter") != "" && q.Get("location") != "":
		entries, err = s.deps.Audit.ListByAsset(r.Context(), audit.AssetKey(q.Get("adapter"), q.Get("location")))
	default:
		writeJSONError(w, "run_id, asset, or adapter and location are required", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error(principalFrom(r.Context()).Subject, requestIDFrom(r.Context()), "Failed to read audit log", map[string]interface{}{"error": err.Error()})
		writeJSONError(w, "Failed to read audit log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.MaskingAudit{}
	}
	writeJSONResponse(w, map[string]interface{}{"entries": entries}, http.StatusOK)
}

func (s *Server) handleQualityReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tracker == nil {
		writeJSONError(w, "Quality tracking not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSONResponse(w, s.deps.Tracker.Report(), http.StatusOK)
}
