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

// Package orchestrator runs masking over many locations under one policy.
//
// A run is planned first: targets naming the same location are merged,
// excluded assets and PII types are set aside, and the confirmation and
// findings limits of the policy are enforced before anything is touched.
// Each location is then one unit of work on a bounded worker pool:
//
//	backup -> mask -> apply strict/lenient mode -> verify -> audit
//
// Dry-run policies and policies with backups disabled get run-scoped
// adapter instances so that the registered configuration is never
// mutated. Runs are kept in memory for lookup and can be rolled back from
// their backups.
package orchestrator
