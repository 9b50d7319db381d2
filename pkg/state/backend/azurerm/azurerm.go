// Package azurerm implements an Azure Blob Storage state backend.
package azurerm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/google/uuid"

	kilnerrors "github.com/kiln-io/kiln/pkg/errors"
	"github.com/kiln-io/kiln/pkg/state/backend"
)

func init() {
	backend.Register("azurerm", NewBackend)
}

const staleLockAge = time.Hour

// Backend stores state in an Azure Blob Storage container under an
// optional key prefix.
type Backend struct {
	client        *azblob.Client
	containerName string
	prefix        string
}

// NewBackend creates an Azure backend. Required settings:
// "storage_account_name" and "container_name". Authentication falls back
// through "access_key", "sas_token", "connection_string" and finally
// DefaultAzureCredential. "endpoint" targets the Azurite emulator.
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	storageAccount, ok := cfg["storage_account_name"]
	if !ok || storageAccount == "" {
		return nil, kilnerrors.ValidationError("azurerm backend requires 'storage_account_name' configuration", map[string]interface{}{
			"backend": "azurerm",
		})
	}

	containerName, ok := cfg["container_name"]
	if !ok || containerName == "" {
		return nil, kilnerrors.ValidationError("azurerm backend requires 'container_name' configuration", map[string]interface{}{
			"backend": "azurerm",
		})
	}

	var client *azblob.Client
	var err error

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", storageAccount)
	if endpoint := cfg["endpoint"]; endpoint != "" {
		serviceURL = endpoint
	}

	if accessKey := cfg["access_key"]; accessKey != "" {
		cred, err := azblob.NewSharedKeyCredential(storageAccount, accessKey)
		if err != nil {
			return nil, kilnerrors.BackendError("azurerm", "configure", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, kilnerrors.BackendError("azurerm", "configure", err)
		}
	} else if sasToken := cfg["sas_token"]; sasToken != "" {
		var serviceURLWithSAS string
		if !strings.Contains(serviceURL, "?") {
			serviceURLWithSAS = serviceURL + "?" + strings.TrimPrefix(sasToken, "?")
		} else {
			serviceURLWithSAS = serviceURL + "&" + strings.TrimPrefix(sasToken, "?")
		}
		client, err = azblob.NewClientWithNoCredential(serviceURLWithSAS, nil)
		if err != nil {
			return nil, kilnerrors.BackendError("azurerm", "configure", err)
		}
	} else if connectionString := cfg["connection_string"]; connectionString != "" {
		client, err = azblob.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return nil, kilnerrors.BackendError("azurerm", "configure", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, kilnerrors.BackendError("azurerm", "configure", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, kilnerrors.BackendError("azurerm", "configure", err)
		}
	}

	return &Backend{
		client:        client,
		containerName: containerName,
		prefix:        cfg["key"],
	}, nil
}

func (b *Backend) Type() string {
	return "azurerm"
}

func (b *Backend) Read(ctx context.Context, statePath string) (io.ReadCloser, error) {
	blobPath := b.fullPath(statePath)

	resp, err := b.client.DownloadStream(ctx, b.containerName, blobPath, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, backend.ErrNotFound
		}
		return nil, kilnerrors.BackendError("azurerm", "read", err).
			WithDetail("container", b.containerName).
			WithDetail("blob", blobPath)
	}

	return resp.Body, nil
}

func (b *Backend) Write(ctx context.Context, statePath string, data io.Reader) error {
	blobPath := b.fullPath(statePath)

	content, err := io.ReadAll(data)
	if err != nil {
		return kilnerrors.BackendError("azurerm", "write", err)
	}

	_, err = b.client.UploadBuffer(ctx, b.containerName, blobPath, content, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: toPtr("application/json"),
		},
	})
	if err != nil {
		return kilnerrors.BackendError("azurerm", "write", err).
			WithDetail("container", b.containerName).
			WithDetail("blob", blobPath)
	}

	return nil
}

func (b *Backend) Delete(ctx context.Context, statePath string) error {
	blobPath := b.fullPath(statePath)

	_, err := b.client.DeleteBlob(ctx, b.containerName, blobPath, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return kilnerrors.BackendError("azurerm", "delete", err).
			WithDetail("container", b.containerName).
			WithDetail("blob", blobPath)
	}

	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := b.fullPath(prefix)

	var paths []string
	pager := b.client.NewListBlobsFlatPager(b.containerName, &container.ListBlobsFlatOptions{
		Prefix: &fullPrefix,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, kilnerrors.BackendError("azurerm", "list", err).WithDetail("container", b.containerName)
		}

		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			relPath := *item.Name
			if b.prefix != "" {
				relPath = strings.TrimPrefix(*item.Name, b.prefix+"/")
			}
			paths = append(paths, relPath)
		}
	}

	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, statePath string) (bool, error) {
	blobPath := b.fullPath(statePath)

	_, err := b.client.ServiceClient().NewContainerClient(b.containerName).NewBlobClient(blobPath).GetProperties(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return false, nil
		}
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, kilnerrors.BackendError("azurerm", "exists", err).
			WithDetail("container", b.containerName).
			WithDetail("blob", blobPath)
	}

	return true, nil
}

func (b *Backend) Lock(ctx context.Context, statePath string, info backend.LockInfo) (backend.Lock, error) {
	lockPath := b.fullPath(statePath + ".lock")

	existingLock, err := b.readLock(ctx, lockPath)
	if err == nil {
		if time.Since(existingLock.Created) < staleLockAge {
			return nil, &backend.LockError{
				Info: existingLock,
				Err:  backend.ErrLocked,
			}
		}
	}

	info.ID = uuid.New().String()
	info.Path = statePath
	info.Created = time.Now()

	lockData, err := json.Marshal(info)
	if err != nil {
		return nil, kilnerrors.BackendError("azurerm", "lock", err)
	}

	_, err = b.client.UploadBuffer(ctx, b.containerName, lockPath, lockData, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: toPtr("application/json"),
		},
	})
	if err != nil {
		return nil, kilnerrors.BackendError("azurerm", "lock", err).
			WithDetail("container", b.containerName).
			WithDetail("blob", lockPath)
	}

	return &azureLock{
		backend: b,
		path:    lockPath,
		info:    info,
	}, nil
}

func (b *Backend) readLock(ctx context.Context, lockPath string) (backend.LockInfo, error) {
	resp, err := b.client.DownloadStream(ctx, b.containerName, lockPath, nil)
	if err != nil {
		return backend.LockInfo{}, err
	}
	defer resp.Body.Close()

	var info backend.LockInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return backend.LockInfo{}, err
	}

	return info, nil
}

func (b *Backend) fullPath(statePath string) string {
	if b.prefix == "" {
		return statePath
	}
	return path.Join(b.prefix, statePath)
}

type azureLock struct {
	backend *Backend
	path    string
	info    backend.LockInfo
}

func (l *azureLock) ID() string {
	return l.info.ID
}

func (l *azureLock) Unlock(ctx context.Context) error {
	_, err := l.backend.client.DeleteBlob(ctx, l.backend.containerName, l.path, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return kilnerrors.BackendError("azurerm", "unlock", err).
			WithDetail("container", l.backend.containerName).
			WithDetail("blob", l.path)
	}
	return nil
}

func (l *azureLock) Info() backend.LockInfo {
	return l.info
}

var _ backend.Backend = (*Backend)(nil)

func toPtr[T any](v T) *T {
	return &v
}
