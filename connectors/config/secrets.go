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

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrSecretNotFound is returned when a secret or a field of it does not exist.
var ErrSecretNotFound = errors.New("secret not found")

// SecretsManager retrieves a secret as a set of string fields.
type SecretsManager interface {
	GetSecret(ctx context.Context, id string) (map[string]string, error)
}

// secretsGetter is the subset of the Secrets Manager client used here.
type secretsGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client secretsGetter
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newAWSSecretsManager(secretsmanager.NewFromConfig(cfg), opts), nil
}

func newAWSSecretsManager(client secretsGetter, opts AWSSecretsManagerOptions) *AWSSecretsManager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS_MANAGER] ", log.LstdFlags)
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}
}

// GetSecret retrieves a secret from AWS Secrets Manager. JSON object secrets
// are returned field by field; anything else is returned under "value".
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretARN]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskARN(secretARN))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	values := parseSecret(*result.SecretString)

	s.mu.Lock()
	s.cache[secretARN] = &secretCacheEntry{
		value:     values,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return values, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(secretARN string) {
	s.mu.Lock()
	delete(s.cache, secretARN)
	s.mu.Unlock()
}

func parseSecret(raw string) map[string]string {
	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return map[string]string{"value": raw}
	}
	return values
}

// maskARN masks the secret ARN for logging (shows only last 8 characters)
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// LocalSecretsManager keeps secrets in memory. It backs development setups
// and tests.
type LocalSecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
}

// NewLocalSecretsManager creates an empty local secrets manager.
func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{secrets: make(map[string]map[string]string)}
}

// GetSecret implements SecretsManager.
func (s *LocalSecretsManager) GetSecret(_ context.Context, id string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if secret, ok := s.secrets[id]; ok {
		return secret, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, id)
}

// SetSecret stores a secret.
func (s *LocalSecretsManager) SetSecret(id string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[id] = value
}

// EnvSecretsManager reads a secret from the environment variable named by
// the id. JSON object values are split into fields.
type EnvSecretsManager struct{}

// GetSecret implements SecretsManager.
func (EnvSecretsManager) GetSecret(_ context.Context, id string) (map[string]string, error) {
	raw := os.Getenv(id)
	if raw == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", ErrSecretNotFound, id)
	}
	return parseSecret(raw), nil
}
