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

// Package gcs masks objects in Google Cloud Storage.
//
// The connection URL names the bucket: "gs://bucket". Credentials are a
// service account key given as credentials_file or credentials_json;
// without either, Application Default Credentials are used. The endpoint
// option points the client at an emulator, and anonymous=true disables
// authentication for it.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/objectstore"
)

// Adapter masks GCS objects.
type Adapter struct {
	*objectstore.Store
	client *storage.Client
	bucket string
	logger *log.Logger
}

// NewAdapter creates a new GCS masking adapter
func NewAdapter() *Adapter {
	logger := log.New(os.Stdout, "[MASK_GCS] ", log.LstdFlags)
	return &Adapter{
		Store:  objectstore.NewStore("gcs", logger),
		logger: logger,
	}
}

// Connect creates the storage client and checks the bucket exists.
func (a *Adapter) Connect(ctx context.Context, cfg *base.AdapterConfig) error {
	bucket, err := ParseBucketURL(cfg.ConnectionURL, cfg.OptionString("bucket", ""))
	if err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "invalid connection URL", err)
	}

	client, err := storage.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "failed to create GCS client", err)
	}

	connectCtx, cancel := cfg.WithTimeout(ctx)
	defer cancel()
	if _, err := client.Bucket(bucket).Attrs(connectCtx); err != nil {
		client.Close()
		return base.NewAdapterError(cfg.Name, "Connect", "failed to access bucket "+bucket, err)
	}

	a.client = client
	a.bucket = bucket
	a.Attach(&blobs{bucket: client.Bucket(bucket)}, cfg)
	a.logger.Printf("Connected to bucket %s", bucket)
	return nil
}

// Disconnect closes the storage client.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.Detach()
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	a.logger.Println("Disconnected")
	return err
}

// ListBackups returns the backup object names under the backup prefix,
// optionally narrowed to one original object.
func (a *Adapter) ListBackups(ctx context.Context, object string) ([]string, error) {
	if a.client == nil {
		return nil, base.NewAdapterError(a.Name(), "ListBackups", "client not connected", nil)
	}
	prefix := a.BackupPrefix(object)
	if object == "" {
		prefix = strings.TrimSuffix(prefix, ".")
	}

	var names []string
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, base.NewAdapterError(a.Name(), "ListBackups", "failed to list objects", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// ClientOptions builds the storage client options from cfg.
func ClientOptions(cfg *base.AdapterConfig) []option.ClientOption {
	var opts []option.ClientOption
	if credFile := cfg.Credentials["credentials_file"]; credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	} else if credJSON := cfg.Credentials["credentials_json"]; credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	if endpoint := cfg.OptionString("endpoint", ""); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if cfg.OptionBool("anonymous", false) {
		opts = append(opts, option.WithoutAuthentication())
	}
	return opts
}

// ParseBucketURL extracts the bucket from "gs://bucket" or falls back to
// the bucket option.
func ParseBucketURL(raw, fallback string) (string, error) {
	if raw == "" {
		if fallback == "" {
			return "", errors.New("bucket is required")
		}
		return fallback, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "gs" || u.Host == "" {
		return "", fmt.Errorf("expected gs://bucket, got %q", raw)
	}
	return u.Host, nil
}

// blobs implements objectstore.Blobs on one bucket.
type blobs struct {
	bucket *storage.BucketHandle
}

func (b *blobs) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, objectstore.ErrNotFound)
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *blobs) Put(ctx context.Context, key string, data []byte) error {
	obj := b.bucket.Object(key)
	// Keep the content type of the object being replaced.
	contentType := ""
	if attrs, err := obj.Attrs(ctx); err == nil {
		contentType = attrs.ContentType
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *blobs) Copy(ctx context.Context, src, dst string) error {
	_, err := b.bucket.Object(dst).CopierFrom(b.bucket.Object(src)).Run(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s: %w", src, objectstore.ErrNotFound)
	}
	return err
}
