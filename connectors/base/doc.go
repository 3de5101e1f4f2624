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

/*
Package base defines the contract every masking adapter implements and the
types they exchange.

# Adapter Interface

	type Adapter interface {
	    Connect(ctx context.Context, config *AdapterConfig) error
	    Disconnect(ctx context.Context) error

	    CreateBackup(ctx context.Context, location string) (string, error)
	    MaskFindings(ctx context.Context, findings []MaskingFinding, masker masking.Masker, location string) *MaskingResult
	    Rollback(ctx context.Context, backupID, target string) error
	    VerifyMasking(ctx context.Context, location string, findings []MaskingFinding) (bool, error)

	    Name() string
	    Type() string
	}

Adapters hold no state shared with each other. Each one keeps its own
client or connection and a prefixed logger.

# Masking a Location

MaskFindings is the whole operation on one location: the backup is taken
first when enabled, and a backup failure fails the location before anything
is modified. With AdapterConfig.DryRun set, adapters run the same path and
report would-be counts, but write nothing.

Log lines never include finding values. Adapters log locations, counts and
types only.

# Errors

AdapterError carries the adapter name and operation:

	if err := adapter.Rollback(ctx, backupID, "public.customers"); err != nil {
	    var ae *base.AdapterError
	    if errors.As(err, &ae) {
	        log.Printf("rollback failed in %s.%s", ae.AdapterName, ae.Operation)
	    }
	}
*/
package base
