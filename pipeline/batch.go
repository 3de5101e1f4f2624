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
	"runtime"
	"sort"
	"sync"
)

// DefaultWorkers is used when a non-positive worker count is requested.
var DefaultWorkers = runtime.NumCPU()

// Stream validates candidates read from in on a fixed pool of workers and
// emits one Result per candidate, in completion order. The returned channel
// is closed once in is drained or ctx is cancelled.
func (p *Pipeline) Stream(ctx context.Context, in <-chan Candidate, workers int) <-chan Result {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	out := make(chan Result, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case c, ok := <-in:
					if !ok {
						return
					}
					r := p.Validate(c)
					select {
					case out <- r:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// ValidateBatch validates candidates concurrently. Results are in arbitrary
// order; use SortFindings on the accepted findings for a stable order. On
// cancellation the results gathered so far are returned with ctx.Err().
func (p *Pipeline) ValidateBatch(ctx context.Context, candidates []Candidate, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	in := make(chan Candidate, workers*2)

	go func() {
		defer close(in)
		for _, c := range candidates {
			select {
			case in <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make([]Result, 0, len(candidates))
	for r := range p.Stream(ctx, in, workers) {
		results = append(results, r)
	}
	if err := ctx.Err(); err != nil && len(results) < len(candidates) {
		return results, err
	}
	return results, nil
}

// SortFindings orders findings by source location, then type and hash.
func SortFindings(findings []VerifiedFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Source.DataSource != b.Source.DataSource {
			return a.Source.DataSource < b.Source.DataSource
		}
		if a.Source.Host != b.Source.Host {
			return a.Source.Host < b.Source.Host
		}
		if a.Source.Path != b.Source.Path {
			return a.Source.Path < b.Source.Path
		}
		if a.Source.Table != b.Source.Table {
			return a.Source.Table < b.Source.Table
		}
		if a.Source.Line != b.Source.Line {
			return a.Source.Line < b.Source.Line
		}
		if a.Source.Column != b.Source.Column {
			return a.Source.Column < b.Source.Column
		}
		if a.PIIType != b.PIIType {
			return a.PIIType < b.PIIType
		}
		return a.ValueHash < b.ValueHash
	})
}
