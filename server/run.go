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

package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bharat-parihar/ARC-Hawk/audit"
	"github.com/bharat-parihar/ARC-Hawk/confidence"
	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/config"
	"github.com/bharat-parihar/ARC-Hawk/connectors/registry"
	"github.com/bharat-parihar/ARC-Hawk/connectors/sqlstore"
	"github.com/bharat-parihar/ARC-Hawk/masking"
	"github.com/bharat-parihar/ARC-Hawk/orchestrator"
	"github.com/bharat-parihar/ARC-Hawk/pipeline"
	"github.com/bharat-parihar/ARC-Hawk/quality"
	"github.com/bharat-parihar/ARC-Hawk/recognizer"
)

// RunConfig is the process configuration read from the environment.
type RunConfig struct {
	Port            string
	DatabaseURL     string
	PolicyFile      string
	PolicyPreset    string
	JWTSecret       string
	AllowedOrigins  []string
	BackupDir       string
	Workers         int
	ConfidenceFloor float64
	IngestURL       string
	BedrockRegion   string
	BedrockModel    string
	AWSRegion       string
	PruneInterval   time.Duration
	PANContextCheck bool
}

// LoadRunConfig reads the environment.
//
//	PORT                  HTTP port (default: 8080)
//	DATABASE_URL          PostgreSQL DSN for the adapter registry and audit log
//	HAWK_POLICY_FILE      masking policy (YAML or JSON)
//	HAWK_POLICY_PRESET    preset used when no file is given (default: default)
//	HAWK_JWT_SECRET       HS256 secret for bearer tokens
//	HAWK_CORS_ORIGINS     comma-separated allowed origins
//	HAWK_BACKUP_DIR       registers a "local" filesystem adapter with this backup dir
//	HAWK_WORKERS          concurrent locations per masking run (default: 4)
//	HAWK_CONFIDENCE_FLOOR minimum accepted confidence (default: 0.5)
//	HAWK_INGEST_URL       ingestion API base URL
//	HAWK_PRUNE_INTERVAL   filesystem backup sweep interval (default: 24h, 0 disables)
//	HAWK_PAN_CONTEXT_CHECK rejects PAN values found in source code (default: false)
//	BEDROCK_REGION        enables the Bedrock recognizer together with BEDROCK_MODEL
//	BEDROCK_MODEL         Bedrock model ID
//	AWS_REGION            enables aws-sm:// secret references
func LoadRunConfig() (RunConfig, error) {
	cfg := RunConfig{
		Port:          config.GetEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		PolicyFile:    os.Getenv("HAWK_POLICY_FILE"),
		PolicyPreset:  config.GetEnv("HAWK_POLICY_PRESET", "default"),
		JWTSecret:     os.Getenv("HAWK_JWT_SECRET"),
		BackupDir:     os.Getenv("HAWK_BACKUP_DIR"),
		IngestURL:     os.Getenv("HAWK_INGEST_URL"),
		BedrockRegion: config.GetEnv("BEDROCK_REGION", os.Getenv("AWS_REGION")),
		BedrockModel:  os.Getenv("BEDROCK_MODEL"),
		AWSRegion:     os.Getenv("AWS_REGION"),
	}
	if origins := os.Getenv("HAWK_CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	workers, err := strconv.Atoi(config.GetEnv("HAWK_WORKERS", strconv.Itoa(orchestrator.DefaultWorkers)))
	if err != nil || workers <= 0 {
		return cfg, fmt.Errorf("HAWK_WORKERS must be a positive integer")
	}
	cfg.Workers = workers

	floor, err := strconv.ParseFloat(config.GetEnv("HAWK_CONFIDENCE_FLOOR", "0.5"), 64)
	if err != nil || floor < 0 || floor > 1 {
		return cfg, fmt.Errorf("HAWK_CONFIDENCE_FLOOR must be between 0 and 1")
	}
	cfg.ConfidenceFloor = floor

	interval, err := time.ParseDuration(config.GetEnv("HAWK_PRUNE_INTERVAL", "24h"))
	if err != nil || interval < 0 {
		return cfg, fmt.Errorf("HAWK_PRUNE_INTERVAL must be a duration")
	}
	cfg.PruneInterval = interval

	panCheck, err := strconv.ParseBool(config.GetEnv("HAWK_PAN_CONTEXT_CHECK", "false"))
	if err != nil {
		return cfg, fmt.Errorf("HAWK_PAN_CONTEXT_CHECK must be a boolean")
	}
	cfg.PANContextCheck = panCheck
	return cfg, nil
}

// App is a wired server with the resources it owns.
type App struct {
	Server       *Server
	Registry     *registry.Registry
	Orchestrator *orchestrator.Orchestrator

	policy *masking.Policy
	engine *recognizer.Engine
	db     *sql.DB
}

// LoadPolicy reads the policy file, or the named preset when no file is
// given, and resolves its secret reference.
func LoadPolicy(ctx context.Context, cfg RunConfig, resolver *config.Resolver) (*masking.Policy, error) {
	var (
		policy *masking.Policy
		err    error
	)
	if cfg.PolicyFile != "" {
		policy, err = masking.LoadPolicy(cfg.PolicyFile)
	} else {
		policy, err = masking.Preset(cfg.PolicyPreset)
	}
	if err != nil {
		return nil, err
	}
	if err := policy.ResolveSecret(ctx, resolver); err != nil {
		return nil, err
	}
	return policy, nil
}

// recognizersFor lists the recognizers Build starts.
var recognizersFor = func(cfg RunConfig) []recognizer.Recognizer {
	recognizers := []recognizer.Recognizer{recognizer.NewRegexRecognizer()}
	if cfg.BedrockModel != "" {
		recognizers = append(recognizers, recognizer.NewBedrockRecognizer(cfg.BedrockRegion, cfg.BedrockModel))
	}
	return recognizers
}

// Build wires every component described by cfg. On error everything opened
// so far is closed.
func Build(ctx context.Context, cfg RunConfig) (_ *App, err error) {
	resolver := config.NewResolver().Register(config.SchemeLocal, config.NewLocalSecretsManager())
	if cfg.AWSRegion != "" {
		sm, err := config.NewAWSSecretsManager(ctx, config.AWSSecretsManagerOptions{Region: cfg.AWSRegion, CacheTTL: 5 * time.Minute})
		if err != nil {
			return nil, err
		}
		resolver.Register(config.SchemeAWS, sm)
	}

	policy, err := LoadPolicy(ctx, cfg, resolver)
	if err != nil {
		return nil, err
	}

	app := &App{policy: policy}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	tracker := quality.NewTracker()
	cc := confidence.DefaultConfig()
	cc.MinConfidence = cfg.ConfidenceFloor
	pl := pipeline.New(
		pipeline.WithTracker(tracker),
		pipeline.WithContextValidator(confidence.NewContextValidator(cc)),
		pipeline.WithPANContextCheck(cfg.PANContextCheck),
	)

	app.engine = recognizer.NewEngine(recognizersFor(cfg)...)
	if err := app.engine.Start(ctx); err != nil {
		return nil, err
	}

	app.Registry = registry.NewRegistry(nil)
	app.Registry.SetSecretResolver(resolver)

	var repo audit.Repository = audit.NewMemoryRepository()
	if cfg.DatabaseURL != "" {
		app.db, err = sqlstore.Open(ctx, "postgres", cfg.DatabaseURL, &base.AdapterConfig{Name: "hawk"})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		storage, err := registry.NewPostgresStorage(ctx, app.db)
		if err != nil {
			return nil, err
		}
		if err := app.Registry.SetStorage(ctx, storage); err != nil {
			return nil, err
		}
		if repo, err = audit.NewPostgresRepository(ctx, app.db); err != nil {
			return nil, err
		}
	}

	if cfg.BackupDir != "" {
		if _, err := app.Registry.GetConfig("local"); err != nil {
			err = app.Registry.Register(ctx, &base.AdapterConfig{
				Name:          "local",
				Type:          "filesystem",
				BackupEnabled: true,
				Options:       map[string]interface{}{"backup_dir": cfg.BackupDir},
			})
			if err != nil {
				return nil, err
			}
		}
	}

	app.Orchestrator, err = orchestrator.New(app.Registry, policy,
		orchestrator.WithWorkers(cfg.Workers),
		orchestrator.WithAudit(repo),
	)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Pipeline:     pl,
		Recognizer:   app.engine,
		Orchestrator: app.Orchestrator,
		Registry:     app.Registry,
		Audit:        repo,
		Tracker:      tracker,
		Scorer:       confidence.NewLineScorer(confidence.DefaultHeuristicConfig()),
	}
	if cfg.IngestURL != "" {
		deps.Ingest = pipeline.NewIngestClient(cfg.IngestURL, 30*time.Second)
	}
	app.Server = New(deps, Config{
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.AllowedOrigins,
	})
	return app, nil
}

// PruneBackups sweeps expired backups from every registered adapter that
// keeps local backups. It returns the number of backups removed.
func (a *App) PruneBackups(ctx context.Context) int {
	type pruner interface {
		PruneBackups(retentionDays int) (int, error)
	}
	removed := 0
	for _, name := range a.Registry.List() {
		adapter, err := a.Registry.Get(ctx, name)
		if err != nil {
			continue
		}
		p, ok := adapter.(pruner)
		if !ok {
			continue
		}
		n, err := p.PruneBackups(a.policy.BackupRetentionDays)
		if err != nil {
			log.Printf("[HAWK_API] Backup sweep failed for %s: %v", name, err)
		}
		removed += n
	}
	return removed
}

// Close releases the engine, adapters and database.
func (a *App) Close() {
	if a.engine != nil {
		_ = a.engine.Close()
	}
	if a.Registry != nil {
		a.Registry.DisconnectAll(context.Background())
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// Run starts the API server configured from the environment and blocks
// until SIGINT or SIGTERM.
func Run() {
	cfg, err := LoadRunConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer app.Close()

	if cfg.PruneInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.PruneInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := app.PruneBackups(ctx); n > 0 {
						log.Printf("[HAWK_API] Pruned %d expired backups", n)
					}
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HAWK_API] Shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 ARC-Hawk API starting on port %s (policy: %s, mode: %s)", cfg.Port, app.policy.Name, app.policy.Mode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}
