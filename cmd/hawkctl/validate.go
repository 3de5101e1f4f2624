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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bharat-parihar/ARC-Hawk/confidence"
	"github.com/bharat-parihar/ARC-Hawk/pipeline"
	"github.com/bharat-parihar/ARC-Hawk/recognizer"
	"github.com/bharat-parihar/ARC-Hawk/shared/logger"
)

// quietPipeline builds a pipeline with its structured log discarded so
// stdout stays machine-readable.
func quietPipeline(floor float64, panContext bool) *pipeline.Pipeline {
	l := logger.New("hawkctl")
	l.SetOutput(io.Discard)
	cc := confidence.DefaultConfig()
	if floor > 0 {
		cc.MinConfidence = floor
	}
	return pipeline.New(
		pipeline.WithLogger(l),
		pipeline.WithContextValidator(confidence.NewContextValidator(cc)),
		pipeline.WithPANContextCheck(panContext),
	)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func validateCmd() *cobra.Command {
	var (
		piiType     string
		surrounding string
		floor       float64
		panContext  bool
	)
	cmd := &cobra.Command{
		Use:   "validate <value>",
		Short: "Validate one candidate value",
		Long: `Validate runs one candidate through the scope gate, its checksum or format
validator, the dummy detector and the confidence engine. The verdict is printed
as JSON and never includes the value itself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := pipeline.Candidate{RawValue: args[0], PIITypeHint: piiType, SurroundingText: surrounding}
			r := quietPipeline(floor, panContext).Validate(c)
			if err := writeJSON(cmd.OutOrStdout(), r); err != nil {
				return err
			}
			if !r.Accepted() {
				return fmt.Errorf("rejected: %s", r.Outcome.RejectionReason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&piiType, "type", "t", "", "PII type, e.g. IN_PAN (required)")
	cmd.Flags().StringVarP(&surrounding, "context", "c", "", "Text the value was found in")
	cmd.Flags().Float64Var(&floor, "min-confidence", 0, "Override the confidence floor")
	cmd.Flags().BoolVar(&panContext, "pan-context", false, "Reject PAN values found in source code or fixtures")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func scanCmd() *cobra.Command {
	var (
		workers    int
		floor      float64
		window     int
		panContext bool
	)
	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Recognize and validate PII in a text file",
		Long: `Scan recognizes candidates in a text file and validates each one against the
lines around it. Line-level heuristic findings, which also cover API keys and
tokens, are reported under heuristic_findings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			engine := recognizer.NewEngine(recognizer.NewRegexRecognizer())
			if err := engine.Start(cmd.Context()); err != nil {
				return err
			}
			defer engine.Close()

			text := string(data)
			candidates, err := engine.Candidates(cmd.Context(), text, pipeline.SourceInfo{Path: args[0]})
			if err != nil {
				return err
			}
			pipeline.WithFileContext(candidates, args[0], text, window)
			results, err := quietPipeline(floor, panContext).ValidateBatch(cmd.Context(), candidates, workers)
			if err != nil {
				return err
			}
			findings := pipeline.Findings(results)
			if findings == nil {
				findings = []pipeline.VerifiedFinding{}
			}
			pipeline.SortFindings(findings)
			heuristic := confidence.NewLineScorer(confidence.DefaultHeuristicConfig()).ScanContent(text, recognizer.LinePatterns())
			if heuristic == nil {
				heuristic = []confidence.LineFinding{}
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"candidates":         len(candidates),
				"findings":           findings,
				"heuristic_findings": heuristic,
			})
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", pipeline.DefaultWorkers, "Validation workers")
	cmd.Flags().Float64Var(&floor, "min-confidence", 0, "Override the confidence floor")
	cmd.Flags().IntVar(&window, "context-lines", 2, "Lines of context on each side of a match")
	cmd.Flags().BoolVar(&panContext, "pan-context", false, "Reject PAN values found in source code or fixtures")
	return cmd
}
