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

package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/bharat-parihar/ARC-Hawk/validators"
)

const (
	defaultBedrockRegion = "us-east-1"
	defaultBedrockModel  = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	bedrockMaxTokens     = 2048
)

// bedrockInvoker is the subset of the Bedrock runtime client used here.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockRecognizer asks an Anthropic model on AWS Bedrock to locate PII
// entities. The model's offsets are re-anchored on the text it quotes, since
// generated offsets are unreliable.
type BedrockRecognizer struct {
	region string
	model  string
	client bedrockInvoker
	logger *log.Logger
}

// NewBedrockRecognizer creates a recognizer. The AWS client is created by
// Start.
func NewBedrockRecognizer(region, model string) *BedrockRecognizer {
	if region == "" {
		region = defaultBedrockRegion
	}
	if model == "" {
		model = defaultBedrockModel
	}
	return &BedrockRecognizer{
		region: region,
		model:  model,
		logger: log.New(os.Stdout, "[BEDROCK_RECOGNIZER] ", log.LstdFlags),
	}
}

// Name implements Recognizer.
func (b *BedrockRecognizer) Name() string { return "bedrock" }

// Start loads the AWS configuration and builds the runtime client.
func (b *BedrockRecognizer) Start(ctx context.Context) error {
	if b.client != nil {
		return nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(b.region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", b.region, err)
	}
	b.client = bedrockruntime.NewFromConfig(awsCfg)
	b.logger.Printf("Initialized (region: %s, model: %s)", b.region, b.model)
	return nil
}

// Close drops the client.
func (b *BedrockRecognizer) Close() error {
	b.client = nil
	return nil
}

type bedrockEntity struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

func (b *BedrockRecognizer) prompt(text string) string {
	types := make([]string, 0, len(validators.AllTypes()))
	for _, t := range validators.AllTypes() {
		types = append(types, string(t))
	}
	return fmt.Sprintf(`Locate personal data in the text between the <text> tags.
Only report these entity types: %s.
Respond with a JSON array and nothing else. Each element must be an object with
"entity_type", "start" and "end" (byte offsets into the text), "score" (0 to 1)
and "text" (the exact substring).

<text>%s</text>`, strings.Join(types, ", "), text)
}

// Analyze implements Recognizer.
func (b *BedrockRecognizer) Analyze(ctx context.Context, text string) ([]Span, error) {
	if b.client == nil {
		return nil, fmt.Errorf("bedrock recognizer not started")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        bedrockMaxTokens,
		"temperature":       0,
		"messages": []map[string]string{
			{"role": "user", "content": b.prompt(text)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		b.logger.Printf("API call failed: %v", err)
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}

	entities, err := parseEntities(output.Body)
	if err != nil {
		return nil, err
	}
	return anchorSpans(text, entities), nil
}

func parseEntities(body []byte) ([]bedrockEntity, error) {
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, nil
	}
	content := resp.Content[0].Text
	open, closing := strings.IndexByte(content, '['), strings.LastIndexByte(content, ']')
	if open < 0 || closing < open {
		return nil, fmt.Errorf("response does not contain a JSON array")
	}
	var entities []bedrockEntity
	if err := json.Unmarshal([]byte(content[open:closing+1]), &entities); err != nil {
		return nil, fmt.Errorf("failed to parse entities: %w", err)
	}
	return entities, nil
}

// anchorSpans keeps entities whose offsets point at the quoted text, moves
// those whose quoted text is elsewhere, and drops the rest.
func anchorSpans(text string, entities []bedrockEntity) []Span {
	var spans []Span
	for _, e := range entities {
		start, end := e.Start, e.End
		inRange := start >= 0 && end <= len(text) && start < end
		switch {
		case e.Text == "" && inRange:
		case e.Text != "" && inRange && text[start:end] == e.Text:
		case e.Text != "":
			i := strings.Index(text, e.Text)
			if i < 0 {
				continue
			}
			start, end = i, i+len(e.Text)
		default:
			continue
		}
		score := e.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		spans = append(spans, Span{
			EntityType: strings.ToUpper(strings.TrimSpace(e.EntityType)),
			Start:      start,
			End:        end,
			Score:      score,
		})
	}
	SortSpans(spans)
	return spans
}
