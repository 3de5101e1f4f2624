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

package azureblob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/objectstore"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

type fakeContainer struct {
	blobs map[string][]byte
}

func (f *fakeContainer) DownloadStream(_ context.Context, _, name string, _ *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	data, ok := f.blobs[name]
	if !ok {
		return azblob.DownloadStreamResponse{}, &azcore.ResponseError{ErrorCode: "BlobNotFound", StatusCode: http.StatusNotFound}
	}
	return azblob.DownloadStreamResponse{
		DownloadResponse: blob.DownloadResponse{Body: io.NopCloser(bytes.NewReader(data))},
	}, nil
}

func (f *fakeContainer) UploadBuffer(_ context.Context, _, name string, buffer []byte, _ *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.blobs[name] = append([]byte(nil), buffer...)
	return azblob.UploadBufferResponse{}, nil
}

func TestNewAdapter(t *testing.T) {
	a := NewAdapter()
	assert.Equal(t, "azureblob", a.Name())
	assert.Equal(t, "azureblob", a.Type())
	var _ base.Adapter = a
}

func TestServiceURL(t *testing.T) {
	u, err := ServiceURL(&base.AdapterConfig{Options: map[string]interface{}{"account_name": "hawkdata"}})
	require.NoError(t, err)
	assert.Equal(t, "https://hawkdata.blob.core.windows.net/", u)

	u, err = ServiceURL(&base.AdapterConfig{Options: map[string]interface{}{
		"account_name": "devstoreaccount1",
		"service_url":  "http://127.0.0.1:10000/devstoreaccount1",
	}})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1", u)

	_, err = ServiceURL(&base.AdapterConfig{})
	assert.Error(t, err)
}

func TestNewClient_NoAuthentication(t *testing.T) {
	_, err := NewClient(&base.AdapterConfig{Options: map[string]interface{}{"account_name": "hawkdata"}})
	assert.EqualError(t, err, "no authentication method provided")
}

func TestConnect_RequiresContainer(t *testing.T) {
	err := NewAdapter().Connect(context.Background(), &base.AdapterConfig{Name: "blobs"})
	assert.ErrorContains(t, err, "container option is required")
}

func TestAdapter_MaskAndRollback(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContainer{blobs: map[string][]byte{
		"support/ticket-118.txt": []byte("Customer phone 9876543210, call back."),
	}}
	a := NewAdapter()
	a.Attach(&blobs{client: fake, container: "support"}, &base.AdapterConfig{Type: "azureblob", BackupEnabled: true})

	findings := []base.MaskingFinding{{Value: "9876543210", PIIType: "IN_PHONE", Location: "support/ticket-118.txt"}}
	result := a.MaskFindings(ctx, findings, masking.PartialStrategy{}, "support/ticket-118.txt")
	require.Equal(t, base.StatusCompleted, result.Status, result.ErrorMessage)
	assert.Equal(t, "Customer phone ******3210, call back.", string(fake.blobs["support/ticket-118.txt"]))
	assert.Equal(t, "Customer phone 9876543210, call back.", string(fake.blobs[result.BackupLocation]))

	ok, err := a.VerifyMasking(ctx, "support/ticket-118.txt", findings)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.Rollback(ctx, result.BackupLocation, "support/ticket-118.txt"))
	assert.Equal(t, "Customer phone 9876543210, call back.", string(fake.blobs["support/ticket-118.txt"]))
}

func TestBlobs_NotFound(t *testing.T) {
	b := &blobs{client: &fakeContainer{blobs: map[string][]byte{}}, container: "support"}
	_, err := b.Get(context.Background(), "gone.txt")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}
