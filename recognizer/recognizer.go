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

// Package recognizer produces candidate spans over text. Recognizers are
// owned by an Engine that is constructed, started and closed explicitly by
// the caller; there is no package-level instance.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/bharat-parihar/ARC-Hawk/pipeline"
)

// ErrEngineNotStarted is returned by Analyze before Start or after Close.
var ErrEngineNotStarted = errors.New("recognizer engine not started")

// Span is an entity located in a text blob. Score is the recognizer's
// likelihood in [0,1]; zero means the recognizer has no opinion.
type Span struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
	Recognizer string  `json:"recognizer,omitempty"`
}

// Recognizer finds spans in text.
type Recognizer interface {
	Name() string
	Analyze(ctx context.Context, text string) ([]Span, error)
}

// Starter is implemented by recognizers with expensive initialisation.
type Starter interface {
	Start(ctx context.Context) error
}

// Engine fans text out to its recognizers.
type Engine struct {
	recognizers []Recognizer
	logger      *log.Logger

	mu      sync.RWMutex
	started bool
}

// NewEngine creates an engine. It must be started before use.
func NewEngine(recognizers ...Recognizer) *Engine {
	return &Engine{
		recognizers: recognizers,
		logger:      log.New(os.Stdout, "[RECOGNIZER] ", log.LstdFlags),
	}
}

// Start initialises every recognizer that needs it. When one fails, the
// recognizers already started are closed again.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	for i, r := range e.recognizers {
		if s, ok := r.(Starter); ok {
			if err := s.Start(ctx); err != nil {
				_ = closeAll(e.recognizers[:i])
				return fmt.Errorf("failed to start recognizer %s: %w", r.Name(), err)
			}
		}
	}
	e.started = true
	e.logger.Printf("Started with %d recognizers", len(e.recognizers))
	return nil
}

// Close releases recognizer resources. Closing an engine that is not
// started does nothing. The engine can be started again.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false
	return closeAll(e.recognizers)
}

func closeAll(recognizers []Recognizer) error {
	var errs []error
	for _, r := range recognizers {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Analyze runs every recognizer and returns the union of their spans,
// ordered by position. A failing recognizer does not hide the others'
// spans; its error is returned alongside them.
func (e *Engine) Analyze(ctx context.Context, text string) ([]Span, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started {
		return nil, ErrEngineNotStarted
	}

	var spans []Span
	var errs []error
	for _, r := range e.recognizers {
		found, err := r.Analyze(ctx, text)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		for _, s := range found {
			if s.Recognizer == "" {
				s.Recognizer = r.Name()
			}
			spans = append(spans, s)
		}
	}
	SortSpans(spans)
	return spans, errors.Join(errs...)
}

// Candidates analyses text and converts the spans into pipeline candidates.
func (e *Engine) Candidates(ctx context.Context, text string, source pipeline.SourceInfo) ([]pipeline.Candidate, error) {
	spans, err := e.Analyze(ctx, text)
	return ToCandidates(text, spans, source), err
}

// SortSpans orders spans by start, then end, then entity type.
func SortSpans(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		if spans[i].End != spans[j].End {
			return spans[i].End < spans[j].End
		}
		return spans[i].EntityType < spans[j].EntityType
	})
}

// ToCandidates extracts the substring of each span and wraps it as a
// candidate whose base confidence is the span score. Spans outside the text
// are dropped.
func ToCandidates(text string, spans []Span, source pipeline.SourceInfo) []pipeline.Candidate {
	out := make([]pipeline.Candidate, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			continue
		}
		out = append(out, pipeline.Candidate{
			RawValue:        text[s.Start:s.End],
			PIITypeHint:     s.EntityType,
			Source:          source,
			SurroundingText: text,
			MatchStart:      s.Start,
			MatchEnd:        s.End,
			BaseConfidence:  s.Score,
			PatternName:     s.Recognizer,
			MLEntityType:    s.EntityType,
		})
	}
	return out
}
