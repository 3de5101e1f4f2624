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

// Package registry keeps named, connected masking adapters. Adapter
// configurations can be persisted in PostgreSQL so that every replica of
// the service sees the same targets; adapters are then created and
// connected on first use.
package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/config"
)

// disconnectTimeout bounds Unregister.
const disconnectTimeout = 5 * time.Second

// Registry manages named adapters. Safe for concurrent use.
type Registry struct {
	adapters map[string]base.Adapter
	configs  map[string]*base.AdapterConfig
	storage  Storage
	factory  AdapterFactory
	secrets  *config.Resolver
	mu       sync.RWMutex
	logger   *log.Logger
}

// NewRegistry creates an in-memory registry using factory. A nil factory
// means DefaultFactory.
func NewRegistry(factory AdapterFactory) *Registry {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Registry{
		adapters: make(map[string]base.Adapter),
		configs:  make(map[string]*base.AdapterConfig),
		factory:  factory,
		secrets:  config.NewResolver(),
		logger:   log.New(os.Stdout, "[MASK_REGISTRY] ", log.LstdFlags),
	}
}

// SetStorage attaches persistent storage and loads the configurations it
// holds. Loaded adapters are connected lazily by Get.
func (r *Registry) SetStorage(ctx context.Context, storage Storage) error {
	r.mu.Lock()
	r.storage = storage
	r.mu.Unlock()
	return r.ReloadFromStorage(ctx)
}

// SetSecretResolver replaces the resolver used for credential references.
func (r *Registry) SetSecretResolver(resolver *config.Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = resolver
}

// ReloadFromStorage picks up configurations saved by other replicas.
func (r *Registry) ReloadFromStorage(ctx context.Context) error {
	if r.storage == nil {
		return nil
	}
	names, err := r.storage.ListAdapters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list adapters: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	loaded := 0
	for _, name := range names {
		if _, exists := r.configs[name]; exists {
			continue
		}
		cfg, err := r.storage.GetAdapter(ctx, name)
		if err != nil {
			r.logger.Printf("Failed to load adapter %s: %v", name, err)
			continue
		}
		r.configs[name] = cfg
		loaded++
	}
	if loaded > 0 {
		r.logger.Printf("Loaded %d adapter config(s) from storage", loaded)
	}
	return nil
}

// Register creates, connects and stores an adapter under cfg.Name.
func (r *Registry) Register(ctx context.Context, cfg *base.AdapterConfig) error {
	if cfg == nil || cfg.Name == "" {
		return fmt.Errorf("adapter name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[cfg.Name]; exists {
		return fmt.Errorf("adapter '%s' already registered", cfg.Name)
	}

	adapter, err := r.connect(ctx, cfg)
	if err != nil {
		return err
	}
	r.adapters[cfg.Name] = adapter
	r.configs[cfg.Name] = cfg

	if r.storage != nil {
		// Persistence failures do not undo a working registration.
		if err := r.storage.SaveAdapter(ctx, cfg); err != nil {
			r.logger.Printf("Warning: Failed to persist adapter '%s': %v", cfg.Name, err)
		}
	}
	r.logger.Printf("Registered adapter '%s' (type: %s)", cfg.Name, cfg.Type)
	return nil
}

// Open creates and connects an adapter that is not registered. The caller
// owns it and must Disconnect it.
func (r *Registry) Open(ctx context.Context, cfg *base.AdapterConfig) (base.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connect(ctx, cfg)
}

// connect builds the adapter and connects it with credential references
// resolved. The stored config keeps the references. Callers hold r.mu
// for reading at least.
func (r *Registry) connect(ctx context.Context, cfg *base.AdapterConfig) (base.Adapter, error) {
	adapter, err := r.factory(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter '%s': %w", cfg.Name, err)
	}
	resolved, err := r.resolveCredentials(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials for '%s': %w", cfg.Name, err)
	}

	connectCtx, cancel := resolved.WithTimeout(ctx)
	defer cancel()
	if err := adapter.Connect(connectCtx, resolved); err != nil {
		r.logger.Printf("Failed to connect adapter '%s': %v", cfg.Name, err)
		return nil, fmt.Errorf("failed to connect adapter '%s': %w", cfg.Name, err)
	}
	return adapter, nil
}

func (r *Registry) resolveCredentials(ctx context.Context, cfg *base.AdapterConfig) (*base.AdapterConfig, error) {
	if len(cfg.Credentials) == 0 {
		return cfg, nil
	}
	out := *cfg
	out.Credentials = make(map[string]string, len(cfg.Credentials))
	for k, v := range cfg.Credentials {
		if IsSecretRef(v) {
			secret, err := r.secrets.Resolve(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("credential %s: %w", k, err)
			}
			v = secret
		}
		out.Credentials[k] = v
	}
	return &out, nil
}

// IsSecretRef reports whether v is a secret reference such as
// "env://PGPASSWORD" or "aws-sm://arn#password".
func IsSecretRef(v string) bool {
	for _, scheme := range []string{config.SchemeAWS, config.SchemeEnv, config.SchemeLocal} {
		if strings.HasPrefix(v, scheme+"://") {
			return true
		}
	}
	return false
}

// Unregister disconnects and removes an adapter.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[name]; !exists {
		return fmt.Errorf("adapter '%s' not found", name)
	}
	if adapter, ok := r.adapters[name]; ok {
		dctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
		if err := adapter.Disconnect(dctx); err != nil {
			r.logger.Printf("Error disconnecting adapter '%s': %v", name, err)
		}
		cancel()
	}
	delete(r.adapters, name)
	delete(r.configs, name)

	if r.storage != nil {
		if err := r.storage.DeleteAdapter(ctx, name); err != nil {
			r.logger.Printf("Warning: Failed to delete adapter '%s' from storage: %v", name, err)
		}
	}
	r.logger.Printf("Unregistered adapter '%s'", name)
	return nil
}

// Get returns the named adapter, connecting it first when only its
// configuration is known.
func (r *Registry) Get(ctx context.Context, name string) (base.Adapter, error) {
	r.mu.RLock()
	adapter, exists := r.adapters[name]
	_, hasConfig := r.configs[name]
	r.mu.RUnlock()
	if exists {
		return adapter, nil
	}
	if !hasConfig {
		return nil, fmt.Errorf("adapter '%s' not found", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if adapter, exists := r.adapters[name]; exists {
		return adapter, nil
	}
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("adapter '%s' not found", name)
	}
	r.logger.Printf("Lazy-loading adapter '%s' (type: %s)", name, cfg.Type)
	adapter, err := r.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.adapters[name] = adapter
	return adapter, nil
}

// GetConfig returns the stored configuration of an adapter.
func (r *Registry) GetConfig(name string) (*base.AdapterConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, exists := r.configs[name]
	if !exists {
		return nil, fmt.Errorf("config for adapter '%s' not found", name)
	}
	return cfg, nil
}

// List returns the names of all known adapters, connected or not.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListWithTypes maps adapter names to their types.
func (r *Registry) ListWithTypes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]string, len(r.configs))
	for name, cfg := range r.configs {
		result[name] = cfg.Type
	}
	return result
}

// DisconnectAll disconnects every connected adapter. Configurations are
// kept, so a later Get reconnects.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, adapter := range r.adapters {
		if err := adapter.Disconnect(ctx); err != nil {
			r.logger.Printf("Error disconnecting adapter '%s': %v", name, err)
		}
		delete(r.adapters, name)
	}
	r.logger.Println("All adapters disconnected")
}
