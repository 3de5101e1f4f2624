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

// Package confidence turns a structurally valid candidate into an accept or
// reject decision.
//
// Two scorers live here:
//
//   - ContextValidator works on the locked PII types. It rejects known
//     placeholder values outright, then compounds a multiplicative factor for
//     every test, production or negative keyword found in a window around the
//     match, and rejects below a confidence floor (0.5 by default).
//
//   - LineScorer is the coarse 0..100 heuristic used for generic regex hits
//     such as API keys. It combines Shannon entropy, assignment and comment
//     detection on the source line, and placeholder tokens. A checksum
//     validator, when one exists for the pattern, overrides it.
//
// All thresholds are configuration, not invariants.
package confidence
