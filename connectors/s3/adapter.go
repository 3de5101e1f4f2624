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

// Package s3 masks objects in Amazon S3 and S3-compatible stores such as
// MinIO or Cloudflare R2.
//
// The connection URL names the bucket: "s3://bucket". Locations are object
// keys. Credentials come from access_key_id/secret_access_key (and an
// optional session_token) or from the default AWS credential chain.
//
// Options:
//
//   - region: AWS region (default: us-east-1)
//   - endpoint: custom endpoint for S3-compatible services
//   - force_path_style: use path-style addressing
//   - backup_prefix: key prefix for backups (default: .hawk-backups/)
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/objectstore"
)

// api is the subset of *s3.Client the adapter calls.
type api interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
}

// Adapter masks S3 objects.
type Adapter struct {
	*objectstore.Store
	logger *log.Logger
}

// NewAdapter creates a new S3 masking adapter
func NewAdapter() *Adapter {
	logger := log.New(os.Stdout, "[MASK_S3] ", log.LstdFlags)
	return &Adapter{
		Store:  objectstore.NewStore("s3", logger),
		logger: logger,
	}
}

// Connect loads the AWS configuration and checks the bucket is reachable.
func (a *Adapter) Connect(ctx context.Context, cfg *base.AdapterConfig) error {
	bucket, err := ParseBucketURL(cfg.ConnectionURL, cfg.OptionString("bucket", ""))
	if err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "invalid connection URL", err)
	}

	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.OptionString("region", "us-east-1")),
	}
	accessKeyID := cfg.Credentials["access_key_id"]
	secretAccessKey := cfg.Credentials["secret_access_key"]
	if accessKeyID != "" && secretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, cfg.Credentials["session_token"])
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "failed to load AWS config", err)
	}

	var s3Options []func(*s3.Options)
	if endpoint := cfg.OptionString("endpoint", ""); endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.OptionBool("force_path_style", false) {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Options...)

	connectCtx, cancel := cfg.WithTimeout(ctx)
	defer cancel()
	if _, err := client.HeadBucket(connectCtx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "failed to access bucket "+bucket, err)
	}

	a.Attach(&blobs{client: client, bucket: bucket}, cfg)
	a.logger.Printf("Connected to bucket %s", bucket)
	return nil
}

// Disconnect drops the client. The AWS SDK holds no connections that need
// closing.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.Detach()
	a.logger.Println("Disconnected")
	return nil
}

// ParseBucketURL extracts the bucket from "s3://bucket" or falls back to
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
	if u.Scheme != "s3" || u.Host == "" {
		return "", fmt.Errorf("expected s3://bucket, got %q", raw)
	}
	return u.Host, nil
}

// blobs implements objectstore.Blobs on one bucket.
type blobs struct {
	client api
	bucket string
}

func (b *blobs) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", key, objectstore.ErrNotFound)
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *blobs) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

func (b *blobs) Copy(ctx context.Context, src, dst string) error {
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(copySource(b.bucket, src)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("%s: %w", src, objectstore.ErrNotFound)
		}
	}
	return err
}

// copySource URL-encodes "bucket/key" segment by segment.
func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}
