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

// Package azureblob masks blobs in an Azure Storage container.
//
// Authentication, in order of preference:
//
//   - connection_string credential
//   - account_key credential with the account_name option
//   - use_managed_identity=true, which uses DefaultAzureCredential
//
// The container option is required. Locations are blob names.
package azureblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/objectstore"
)

// api is the subset of *azblob.Client the adapter calls.
type api interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// Adapter masks Azure blobs.
type Adapter struct {
	*objectstore.Store
	logger *log.Logger
}

// NewAdapter creates a new Azure Blob masking adapter
func NewAdapter() *Adapter {
	logger := log.New(os.Stdout, "[MASK_AZUREBLOB] ", log.LstdFlags)
	return &Adapter{
		Store:  objectstore.NewStore("azureblob", logger),
		logger: logger,
	}
}

// Connect builds the client for the configured authentication method and
// checks that the container is reachable.
func (a *Adapter) Connect(ctx context.Context, cfg *base.AdapterConfig) error {
	container := cfg.OptionString("container", "")
	if container == "" {
		return base.NewAdapterError(cfg.Name, "Connect", "container option is required", nil)
	}

	client, err := NewClient(cfg)
	if err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "failed to create client", err)
	}

	connectCtx, cancel := cfg.WithTimeout(ctx)
	defer cancel()
	if _, err := client.ServiceClient().NewContainerClient(container).GetProperties(connectCtx, nil); err != nil {
		return base.NewAdapterError(cfg.Name, "Connect", "failed to access container "+container, err)
	}

	a.Attach(&blobs{client: client, container: container}, cfg)
	a.logger.Printf("Connected to container %s", container)
	return nil
}

// Disconnect drops the client.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.Detach()
	a.logger.Println("Disconnected")
	return nil
}

// NewClient creates an azblob client from cfg.
func NewClient(cfg *base.AdapterConfig) (*azblob.Client, error) {
	if cs := cfg.Credentials["connection_string"]; cs != "" {
		return azblob.NewClientFromConnectionString(cs, nil)
	}

	serviceURL, err := ServiceURL(cfg)
	if err != nil {
		return nil, err
	}
	if key := cfg.Credentials["account_key"]; key != "" {
		cred, err := azblob.NewSharedKeyCredential(cfg.OptionString("account_name", ""), key)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		return azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	}
	if cfg.OptionBool("use_managed_identity", false) {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		return azblob.NewClient(serviceURL, cred, nil)
	}
	return nil, errors.New("no authentication method provided")
}

// ServiceURL returns the service_url option or the public endpoint for
// account_name.
func ServiceURL(cfg *base.AdapterConfig) (string, error) {
	if u := cfg.OptionString("service_url", ""); u != "" {
		return u, nil
	}
	account := cfg.OptionString("account_name", "")
	if account == "" {
		return "", errors.New("account_name option is required")
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", account), nil
}

// blobs implements objectstore.Blobs on one container. Copies are a
// download followed by an upload, so a backup is complete when Copy
// returns.
type blobs struct {
	client    api
	container string
}

func (b *blobs) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, fmt.Errorf("%s: %w", key, objectstore.ErrNotFound)
		}
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (b *blobs) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.UploadBuffer(ctx, b.container, key, data, nil)
	return err
}

func (b *blobs) Copy(ctx context.Context, src, dst string) error {
	data, err := b.Get(ctx, src)
	if err != nil {
		return err
	}
	return b.Put(ctx, dst, data)
}
