// Package pageblob implements upload.RemoteBlobClient on top of Azure page blobs.
package pageblob

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/pageblob"
	"github.com/bitrise-io/go-diskupload/upload"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Params ...
type Params struct {
	// ServiceURL is the blob endpoint of the storage account.
	// Defaults to https://<AccountName>.blob.core.windows.net/
	ServiceURL  string
	AccountName string
	// AccountKey authenticates with a shared key. When empty, ServiceURL is
	// expected to carry a SAS token.
	AccountKey string
	HTTPClient *http.Client
}

// MaxWriteSize is the largest range UploadPages accepts in one request.
const MaxWriteSize = upload.MaxWriteSize

// Client talks to one storage account.
type Client struct {
	client *azblob.Client
	logger log.Logger
}

var _ upload.RemoteBlobClient = (*Client)(nil)

// NewClient creates a page blob client. Retries are left to the caller:
// the SDK retry policy is disabled.
func NewClient(params Params, logger log.Logger) (*Client, error) {
	serviceURL := params.ServiceURL
	if serviceURL == "" {
		if params.AccountName == "" {
			return nil, fmt.Errorf("either service URL or account name must be set")
		}
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", params.AccountName)
	}

	options := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	if params.HTTPClient != nil {
		options.Transport = params.HTTPClient
	}

	var client *azblob.Client
	var err error
	if params.AccountKey != "" {
		if params.AccountName == "" {
			return nil, fmt.Errorf("account name must be set when using an account key")
		}
		cred, credErr := azblob.NewSharedKeyCredential(params.AccountName, params.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, options)
	} else {
		logger.Debugf("No account key provided, using service URL as is")
		client, err = azblob.NewClientWithNoCredential(serviceURL, options)
	}
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}

	return &Client{client: client, logger: logger}, nil
}

func (c *Client) pageBlob(dst upload.Destination) *pageblob.Client {
	return c.client.ServiceClient().NewContainerClient(dst.Container).NewPageBlobClient(dst.Blob)
}

// EnsureContainer creates the container unless it already exists.
func (c *Client) EnsureContainer(ctx context.Context, name string) error {
	_, err := c.client.CreateContainer(ctx, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			c.logger.Debugf("Container %s already exists", name)
			return nil
		}
		return fmt.Errorf("create container %s: %w", name, err)
	}

	c.logger.Debugf("Container %s created", name)
	return nil
}

// CreatePageBlob creates an empty page blob. The size is rounded up to the page size.
func (c *Client) CreatePageBlob(ctx context.Context, dst upload.Destination, size int64, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := c.pageBlob(dst).Create(ctx, alignUp(size), nil); err != nil {
		return fmt.Errorf("create page blob: %w", err)
	}
	return nil
}

// WriteRange writes the pages of [start, end]. A trailing range that does not end on a page
// boundary is padded with zeros.
func (c *Client) WriteRange(ctx context.Context, dst upload.Destination, start, end int64, data []byte, timeout time.Duration) error {
	if start%upload.PageSize != 0 {
		return fmt.Errorf("range start %d is not page aligned", start)
	}
	if want := end - start + 1; want != int64(len(data)) {
		return fmt.Errorf("range [%d-%d] needs %d bytes, got %d", start, end, want, len(data))
	}
	if len(data) > MaxWriteSize {
		return fmt.Errorf("range [%d-%d] is larger than the %d byte page write limit", start, end, MaxWriteSize)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := padToPage(data)
	_, err := c.pageBlob(dst).UploadPages(ctx, streaming.NopCloser(bytes.NewReader(body)), blob.HTTPRange{
		Offset: start,
		Count:  int64(len(body)),
	}, nil)
	if err != nil {
		return fmt.Errorf("upload pages [%d-%d]: %w", start, start+int64(len(body))-1, err)
	}
	return nil
}

// DeleteBlob deletes the blob; a missing blob or container counts as deleted.
func (c *Client) DeleteBlob(ctx context.Context, dst upload.Destination) error {
	_, err := c.pageBlob(dst).Delete(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			c.logger.Debugf("Blob %s not found, nothing to delete", dst)
			return nil
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func alignUp(size int64) int64 {
	if rem := size % upload.PageSize; rem != 0 {
		return size + upload.PageSize - rem
	}
	return size
}

func padToPage(data []byte) []byte {
	aligned := alignUp(int64(len(data)))
	if aligned == int64(len(data)) {
		return data
	}
	padded := make([]byte, aligned)
	copy(padded, data)
	return padded
}
