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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IngestPath is the ingestion endpoint for verified findings.
const IngestPath = "/api/v1/scans/ingest-verified"

// ErrPayloadContainsRawValue is returned when a payload carries anything
// that could hold a matched value rather than only its hash.
var ErrPayloadContainsRawValue = errors.New("payload contains a raw value field")

// Keys that must never appear anywhere in an ingestion payload.
var forbiddenKeys = map[string]struct{}{
	"value":     {},
	"match":     {},
	"matches":   {},
	"raw_value": {},
}

// IngestPayload is the body posted to the ingestion API.
type IngestPayload struct {
	ScanID            string            `json:"scan_id"`
	VerifiedFindings  []VerifiedFinding `json:"verified_findings"`
	ScannerVersion    string            `json:"scanner_version"`
	ValidationEnabled bool              `json:"validation_enabled"`
}

// IngestResponse is the decoded reply of the ingestion API. Unknown fields
// are kept in Raw.
type IngestResponse struct {
	StatusCode int
	ScanID     string
	Raw        map[string]interface{}
}

// IngestClient posts verified findings to the backend.
type IngestClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewIngestClient creates a client for the backend at baseURL.
func NewIngestClient(baseURL string, timeout time.Duration) *IngestClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IngestClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.New(os.Stdout, "[INGEST] ", log.LstdFlags),
	}
}

// CheckHashOnly walks a JSON document and fails if any object has a key
// that could carry a raw value.
func CheckHashOnly(payload []byte) error {
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return walkForbidden(doc, "$")
}

func walkForbidden(node interface{}, path string) error {
	switch n := node.(type) {
	case map[string]interface{}:
		for k, v := range n {
			if _, bad := forbiddenKeys[strings.ToLower(k)]; bad {
				return fmt.Errorf("%w: %s.%s", ErrPayloadContainsRawValue, path, k)
			}
			if err := walkForbidden(v, path+"."+k); err != nil {
				return err
			}
		}
	case []interface{}:
		for i, v := range n {
			if err := walkForbidden(v, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Send posts findings in a single payload. The encoded payload is checked
// with CheckHashOnly before anything leaves the process.
func (c *IngestClient) Send(ctx context.Context, findings []VerifiedFinding) (*IngestResponse, error) {
	if findings == nil {
		findings = []VerifiedFinding{}
	}
	payload := IngestPayload{
		ScanID:            uuid.New().String(),
		VerifiedFindings:  findings,
		ScannerVersion:    ScannerVersion,
		ValidationEnabled: true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingestion payload: %w", err)
	}
	if err := CheckHashOnly(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+IngestPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Printf("Sending %d verified findings (scan %s)", len(findings), payload.ScanID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingestion request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Printf("Error closing response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ingestion response: %w", err)
	}

	out := &IngestResponse{StatusCode: resp.StatusCode, ScanID: payload.ScanID}
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &out.Raw)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("ingestion API returned status %d", resp.StatusCode)
	}
	return out, nil
}
