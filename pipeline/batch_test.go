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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func mixedCandidates(n int) []Candidate {
	var out []Candidate
	for i := 0; i < n; i++ {
		valid := candidateIn("customer 234123412346", "234123412346", "IN_AADHAAR")
		valid.Source = SourceInfo{Path: fmt.Sprintf("/data/f%03d.txt", i), Line: i + 1}
		out = append(out,
			valid,
			candidateIn("card 4532015112830367", "4532015112830367", "CREDIT_CARD"),
			Candidate{RawValue: "123-45-6789", PIITypeHint: "US_SSN"},
		)
	}
	return out
}

func TestValidateBatch(t *testing.T) {
	p := newTestPipeline()
	candidates := mixedCandidates(50)

	results, err := p.ValidateBatch(context.Background(), candidates, 8)
	if err != nil {
		t.Fatalf("ValidateBatch() error = %v", err)
	}
	if len(results) != len(candidates) {
		t.Fatalf("got %d results, want %d", len(results), len(candidates))
	}

	findings := Findings(results)
	if len(findings) != 50 {
		t.Fatalf("got %d findings, want 50", len(findings))
	}
	SortFindings(findings)
	for i, f := range findings {
		if want := fmt.Sprintf("/data/f%03d.txt", i); f.Source.Path != want {
			t.Fatalf("findings[%d].Source.Path = %q, want %q", i, f.Source.Path, want)
		}
	}

	stages := map[Stage]int{}
	for _, r := range results {
		stages[r.Stage]++
	}
	if stages[StageScope] != 50 || stages[StageValidator] != 50 || stages[StageAccepted] != 50 {
		t.Errorf("stage counts = %v", stages)
	}
}

func TestValidateBatch_DefaultWorkers(t *testing.T) {
	p := newTestPipeline()
	results, err := p.ValidateBatch(context.Background(), mixedCandidates(3), 0)
	if err != nil || len(results) != 9 {
		t.Errorf("ValidateBatch() = %d results, %v", len(results), err)
	}
}

func TestValidateBatch_Cancelled(t *testing.T) {
	p := newTestPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.ValidateBatch(ctx, mixedCandidates(200), 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(results) >= 600 {
		t.Errorf("cancelled batch processed everything (%d results)", len(results))
	}
}

func TestStream(t *testing.T) {
	p := newTestPipeline()
	in := make(chan Candidate)
	out := p.Stream(context.Background(), in, 4)

	go func() {
		defer close(in)
		for _, c := range mixedCandidates(10) {
			in <- c
		}
	}()

	accepted := 0
	total := 0
	for r := range out {
		total++
		if r.Accepted() {
			accepted++
		}
	}
	if total != 30 || accepted != 10 {
		t.Errorf("Stream() produced %d results with %d accepted, want 30/10", total, accepted)
	}
}

func TestSortFindings(t *testing.T) {
	findings := []VerifiedFinding{
		{PIIType: "IN_PAN", ValueHash: "b", Source: SourceInfo{DataSource: "postgresql", Table: "users", Column: "pan"}},
		{PIIType: "IN_PAN", ValueHash: "a", Source: SourceInfo{DataSource: "filesystem", Path: "/b", Line: 2}},
		{PIIType: "IN_AADHAAR", ValueHash: "c", Source: SourceInfo{DataSource: "filesystem", Path: "/b", Line: 2}},
		{PIIType: "IN_PAN", ValueHash: "d", Source: SourceInfo{DataSource: "filesystem", Path: "/a", Line: 9}},
	}
	SortFindings(findings)
	want := []string{"d", "c", "a", "b"}
	for i, f := range findings {
		if f.ValueHash != want[i] {
			t.Errorf("position %d = %q, want %q", i, f.ValueHash, want[i])
		}
	}
}
