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

// Package quality tracks how well detection is doing: how many candidates
// were seen, validated and rejected, why they were rejected, and how much
// context analysis moved the confidence.
package quality

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hawk_detections_total",
			Help: "Total number of PII candidates seen by the validation pipeline",
		},
		[]string{"pii_type"},
	)
	promOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hawk_validation_outcomes_total",
			Help: "Validation outcomes by PII type and result",
		},
		[]string{"pii_type", "outcome"},
	)
	promConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hawk_finding_confidence",
			Help:    "Adjusted confidence of accepted findings",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
		},
	)
)

func init() {
	prometheus.MustRegister(promDetections)
	prometheus.MustRegister(promOutcomes)
	prometheus.MustRegister(promConfidence)
}

// Rejection categories reported by the tracker.
const (
	OutcomeValidated       = "validated"
	OutcomeTestData        = "test_data"
	OutcomeContextRejected = "context_rejected"
	OutcomeRejected        = "rejected"
)

// RunMetrics holds the counters for a single detection run.
type RunMetrics struct {
	StartedAt          time.Time
	TotalDetections    int
	ValidatedFindings  int
	RejectedFindings   int
	TestDataFiltered   int
	ContextRejected    int
	DetectionsByType   map[string]int
	ValidationsByType  map[string]int
	RejectionsByType   map[string]int
	ConfidenceScores   []float64
	ContextAdjustments []float64
}

func newRunMetrics() *RunMetrics {
	return &RunMetrics{
		StartedAt:         time.Now(),
		DetectionsByType:  make(map[string]int),
		ValidationsByType: make(map[string]int),
		RejectionsByType:  make(map[string]int),
	}
}

// ValidationRate is validated / total detections.
func (m *RunMetrics) ValidationRate() float64 {
	return ratio(m.ValidatedFindings, m.TotalDetections)
}

// RejectionRate is rejected / total detections.
func (m *RunMetrics) RejectionRate() float64 {
	return ratio(m.RejectedFindings, m.TotalDetections)
}

// TestDataRate is the share of rejections caused by test-data patterns.
func (m *RunMetrics) TestDataRate() float64 {
	return ratio(m.TestDataFiltered, m.RejectedFindings)
}

// AverageConfidence averages the confidence of accepted findings.
func (m *RunMetrics) AverageConfidence() float64 {
	return mean(m.ConfidenceScores)
}

// AverageContextAdjustment averages adjusted-minus-base across assessments.
func (m *RunMetrics) AverageContextAdjustment() float64 {
	return mean(m.ContextAdjustments)
}

// TypeReport is the per-PII-type section of a Report.
type TypeReport struct {
	Detections     int     `json:"detections"`
	Validated      int     `json:"validated"`
	Rejected       int     `json:"rejected"`
	ValidationRate float64 `json:"validation_rate"`
}

// Report is the serialisable summary of a run.
type Report struct {
	Timestamp         time.Time             `json:"timestamp"`
	TotalDetections   int                   `json:"total_detections"`
	ValidatedFindings int                   `json:"validated_findings"`
	RejectedFindings  int                   `json:"rejected_findings"`
	ValidationRate    float64               `json:"validation_rate"`
	RejectionRate     float64               `json:"rejection_rate"`
	TestDataFiltered  int                   `json:"test_data_filtered"`
	ContextRejected   int                   `json:"context_rejected"`
	TestDataRate      float64               `json:"test_data_rate"`
	ConfidenceAverage float64               `json:"confidence_average"`
	ConfidenceMin     *float64              `json:"confidence_min,omitempty"`
	ConfidenceMax     *float64              `json:"confidence_max,omitempty"`
	AdjustmentAverage float64               `json:"context_adjustment_average"`
	Adjustments       int                   `json:"context_adjustments"`
	ByPIIType         map[string]TypeReport `json:"by_pii_type"`
}

// Tracker accumulates detection metrics. It is safe for concurrent use; the
// pipeline workers all record into one tracker.
type Tracker struct {
	mu      sync.Mutex
	current *RunMetrics
	history []*RunMetrics
}

// NewTracker returns a tracker with an open run.
func NewTracker() *Tracker {
	return &Tracker{current: newRunMetrics()}
}

// StartRun archives the current run and opens a new one.
func (t *Tracker) StartRun() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.history = append(t.history, t.current)
	}
	t.current = newRunMetrics()
}

// History returns the number of archived runs.
func (t *Tracker) History() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}

func (t *Tracker) run() *RunMetrics {
	if t.current == nil {
		t.current = newRunMetrics()
	}
	return t.current
}

// RecordDetection counts a candidate entering the pipeline.
func (t *Tracker) RecordDetection(piiType string) {
	t.mu.Lock()
	m := t.run()
	m.TotalDetections++
	m.DetectionsByType[piiType]++
	t.mu.Unlock()
	promDetections.WithLabelValues(piiType).Inc()
}

// RecordValidation counts an accepted finding with its final confidence.
func (t *Tracker) RecordValidation(piiType string, confidence float64) {
	t.mu.Lock()
	m := t.run()
	m.ValidatedFindings++
	m.ValidationsByType[piiType]++
	m.ConfidenceScores = append(m.ConfidenceScores, confidence)
	t.mu.Unlock()
	promOutcomes.WithLabelValues(piiType, OutcomeValidated).Inc()
	promConfidence.Observe(confidence)
}

// RecordRejection counts a rejected candidate and classifies the reason.
func (t *Tracker) RecordRejection(piiType, reason string) {
	outcome := classify(reason)
	t.mu.Lock()
	m := t.run()
	m.RejectedFindings++
	m.RejectionsByType[piiType]++
	switch outcome {
	case OutcomeTestData:
		m.TestDataFiltered++
	case OutcomeContextRejected:
		m.ContextRejected++
	}
	t.mu.Unlock()
	promOutcomes.WithLabelValues(piiType, outcome).Inc()
}

// RecordContextAdjustment stores the confidence delta produced by context
// analysis.
func (t *Tracker) RecordContextAdjustment(base, adjusted float64) {
	t.mu.Lock()
	m := t.run()
	m.ContextAdjustments = append(m.ContextAdjustments, adjusted-base)
	t.mu.Unlock()
}

// Report summarises the current run.
func (t *Tracker) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.run()

	r := Report{
		Timestamp:         m.StartedAt,
		TotalDetections:   m.TotalDetections,
		ValidatedFindings: m.ValidatedFindings,
		RejectedFindings:  m.RejectedFindings,
		ValidationRate:    m.ValidationRate(),
		RejectionRate:     m.RejectionRate(),
		TestDataFiltered:  m.TestDataFiltered,
		ContextRejected:   m.ContextRejected,
		TestDataRate:      m.TestDataRate(),
		ConfidenceAverage: m.AverageConfidence(),
		AdjustmentAverage: m.AverageContextAdjustment(),
		Adjustments:       len(m.ContextAdjustments),
		ByPIIType:         make(map[string]TypeReport, len(m.DetectionsByType)),
	}
	if len(m.ConfidenceScores) > 0 {
		sorted := append([]float64(nil), m.ConfidenceScores...)
		sort.Float64s(sorted)
		lo, hi := sorted[0], sorted[len(sorted)-1]
		r.ConfidenceMin, r.ConfidenceMax = &lo, &hi
	}
	for piiType, n := range m.DetectionsByType {
		r.ByPIIType[piiType] = TypeReport{
			Detections:     n,
			Validated:      m.ValidationsByType[piiType],
			Rejected:       m.RejectionsByType[piiType],
			ValidationRate: ratio(m.ValidationsByType[piiType], n),
		}
	}
	return r
}

// SaveReport writes the current report as indented JSON.
func (t *Tracker) SaveReport(path string) error {
	data, err := json.MarshalIndent(t.Report(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode quality report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write quality report: %w", err)
	}
	return nil
}

func classify(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "test data"):
		return OutcomeTestData
	case strings.Contains(lower, "context"):
		return OutcomeContextRejected
	default:
		return OutcomeRejected
	}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
