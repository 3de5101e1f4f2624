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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharat-parihar/ARC-Hawk/confidence"
	"github.com/bharat-parihar/ARC-Hawk/orchestrator"
	"github.com/bharat-parihar/ARC-Hawk/pipeline"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "john@corp.in", "--type", "EMAIL_ADDRESS")
	require.NoError(t, err)
	assert.Contains(t, out, `"stage": "accepted"`)
	assert.NotContains(t, out, "john@corp.in")

	out, err = execute(t, "validate", "123-45-6789", "--type", "US_SSN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Contains(t, out, `"stage": "scope"`)

	_, err = execute(t, "validate", "john@corp.in")
	assert.Error(t, err, "--type is required")
}

func TestMaskCommand(t *testing.T) {
	out, err := execute(t, "mask", "ABCDE1234F", "--type", "IN_PAN")
	require.NoError(t, err)
	assert.Equal(t, "ABC****234F\n", out)

	out, err = execute(t, "mask", "ABCDE1234F", "--type", "IN_PAN", "--preset", "strict")
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]\n", out)

	out, err = execute(t, "mask", "ABCDE1234F", "--strategy", "tokenize", "--type", "IN_PAN")
	require.NoError(t, err)
	assert.Regexp(t, `^TOKEN_[0-9A-F]{16}\n$`, out)

	_, err = execute(t, "mask", "x", "--strategy", "SCRAMBLE")
	assert.Error(t, err)
}

func TestPolicyCommands(t *testing.T) {
	out, err := execute(t, "policy", "preset", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "development")
	assert.Contains(t, out, "strict")

	path := filepath.Join(t.TempDir(), "dev.yaml")
	_, err = execute(t, "policy", "preset", "export", "development", path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	out, err = execute(t, "policy", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, `Policy "development" is valid`)
	assert.Contains(t, out, "Excluded assets: /data/test/*, test_*")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"name":"x","default_strategy":"SCRAMBLE"}`), 0o600))
	_, err = execute(t, "policy", "validate", bad)
	assert.Error(t, err)

	_, err = execute(t, "policy", "preset", "export", "lax", path)
	assert.Error(t, err)
}

func TestScanCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	content := "Account notes\nCustomer email john@corp.in on file\naws_key = \"AKIAZ7Q3RT5LW2XK9JMB\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	out, err := execute(t, "scan", path, "--context-lines", "1", "--pan-context")
	require.NoError(t, err)
	assert.NotContains(t, out, "john@corp.in")
	assert.NotContains(t, out, "AKIAZ7Q3RT5LW2XK9JMB")
	assert.Contains(t, out, `"pii_type": "EMAIL_ADDRESS"`)
	assert.Contains(t, out, path)

	var report struct {
		Findings  []pipeline.VerifiedFinding `json:"findings"`
		Heuristic []confidence.LineFinding   `json:"heuristic_findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Findings, 1)
	assert.Equal(t, 2, report.Findings[0].Source.Line)

	var aws *confidence.LineFinding
	for i := range report.Heuristic {
		if report.Heuristic[i].PatternName == "AWS Access Key" {
			aws = &report.Heuristic[i]
		}
	}
	require.NotNil(t, aws, "heuristic findings: %+v", report.Heuristic)
	assert.Equal(t, 3, aws.LineNumber)
	assert.Equal(t, 100, aws.Score)
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "leads.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,phone\nAsha,9876543210\n"), 0o600))

	targets := []map[string]interface{}{{
		"location": csvPath,
		"findings": []map[string]string{{"value": "9876543210", "pii_type": "IN_PHONE", "location": "row_0_column_phone"}},
	}}
	data, err := json.Marshal(targets)
	require.NoError(t, err)
	targetsPath := filepath.Join(dir, "targets.json")
	require.NoError(t, os.WriteFile(targetsPath, data, 0o600))
	backups := filepath.Join(dir, "backups")

	_, err = execute(t, "run", targetsPath, "--backup-dir", backups)
	assert.ErrorIs(t, err, orchestrator.ErrConfirmationRequired)

	out, err := execute(t, "run", targetsPath, "--backup-dir", backups, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, `"mode": "dry_run"`)
	unchanged, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "name,phone\nAsha,9876543210\n", string(unchanged))

	out, err = execute(t, "run", targetsPath, "--backup-dir", backups, "--confirm")
	require.NoError(t, err)
	var run orchestrator.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, orchestrator.RunCompleted, run.Status)
	masked, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "name,phone\nAsha,******3210\n", string(masked))

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
