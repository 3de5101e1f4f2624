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

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
)

var (
	promLocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hawk_masking_locations_total",
			Help: "Masked locations by adapter type and final status",
		},
		[]string{"adapter_type", "status"},
	)
	promFindings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hawk_masking_findings_total",
			Help: "Findings handled by masking runs by outcome",
		},
		[]string{"outcome"},
	)
	promDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hawk_masking_duration_seconds",
			Help:    "Time spent masking one location",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter_type"},
	)
	promVerifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hawk_masking_verification_failures_total",
			Help: "Locations where original values were still present after masking",
		},
	)
	promRollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hawk_masking_rollbacks_total",
			Help: "Rollbacks by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(promLocations)
	prometheus.MustRegister(promFindings)
	prometheus.MustRegister(promDuration)
	prometheus.MustRegister(promVerifyFailures)
	prometheus.MustRegister(promRollbacks)
}

func recordLocation(adapterType string, r *LocationReport) {
	promLocations.WithLabelValues(adapterType, string(r.Status)).Inc()
	promFindings.WithLabelValues("skipped").Add(float64(r.Skipped))
	if r.Result == nil {
		return
	}
	promFindings.WithLabelValues("masked").Add(float64(r.Result.MaskedCount))
	promFindings.WithLabelValues("failed").Add(float64(r.Result.FailedCount))
	promDuration.WithLabelValues(adapterType).Observe(r.Result.Duration.Seconds())
}

func recordRollback(err error) {
	if err != nil {
		promRollbacks.WithLabelValues(string(base.StatusFailed)).Inc()
		return
	}
	promRollbacks.WithLabelValues(string(base.StatusRolledBack)).Inc()
}
