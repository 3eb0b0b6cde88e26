package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"vaultgc/internal/logging"
)

// Azure parameter keys.
const (
	ParamAzureAccountName = "accountName"
	ParamAzureAccountKey  = "accountKey" //nolint:gosec // G101: config field, not a hardcoded credential
	ParamAzureContainer   = "container"
	ParamAzureEndpoint    = "endpoint" // optional, defaults to the standard blob endpoint
)

// azcoreClientOptions applies a conservative retry policy to every Azure
// blob operation this backend issues, since copy-then-delete fossilisation
// depends on both halves eventually succeeding.
var azcoreClientOptions = azcore.ClientOptions{
	Retry: policy.RetryOptions{MaxRetries: 3},
}

// AzureBackend is a StorageBackend backed by Azure Blob Storage.
type AzureBackend struct {
	container *container.Client
	logger    *slog.Logger
}

// NewAzureBackend validates params and constructs an AzureBackend. No
// network calls are made; the container is assumed to already exist.
func NewAzureBackend(params map[string]string, logger *slog.Logger) (*AzureBackend, error) {
	accountName, ok := params[ParamAzureAccountName]
	if !ok || accountName == "" {
		return nil, fmt.Errorf("missing required parameter: %s", ParamAzureAccountName)
	}
	containerName, ok := params[ParamAzureContainer]
	if !ok || containerName == "" {
		return nil, fmt.Errorf("missing required parameter: %s", ParamAzureContainer)
	}

	cred, err := azblob.NewSharedKeyCredential(accountName, params[ParamAzureAccountKey])
	if err != nil {
		return nil, fmt.Errorf("build azure shared key credential: %w", err)
	}

	endpoint := params[ParamAzureEndpoint]
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(endpoint, cred, &azblob.ClientOptions{
		ClientOptions: azcoreClientOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("build azure blob client: %w", err)
	}

	return &AzureBackend{
		container: client.ServiceClient().NewContainerClient(containerName),
		logger:    logging.Default(logger).With("component", "repository", "backend", "blob", "driver", "azure"),
	}, nil
}

func (b *AzureBackend) Put(ctx context.Context, key string, data []byte) error {
	blobClient := b.container.NewBlockBlobClient(key)
	_, err := blobClient.UploadBuffer(ctx, data, nil)
	if err != nil {
		return fmt.Errorf("azure put %s: %w", key, err)
	}
	return nil
}

func (b *AzureBackend) Get(ctx context.Context, key string) ([]byte, error) {
	blobClient := b.container.NewBlobClient(key)
	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("azure get %s: %w", key, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("azure read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (b *AzureBackend) Exists(ctx context.Context, key string) (bool, error) {
	blobClient := b.container.NewBlobClient(key)
	_, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("azure head %s: %w", key, err)
	}
	return true, nil
}

func (b *AzureBackend) Copy(ctx context.Context, srcKey, dstKey string) error {
	srcURL := b.container.NewBlobClient(srcKey).URL()
	dstClient := b.container.NewBlobClient(dstKey)
	_, err := dstClient.StartCopyFromURL(ctx, srcURL, nil)
	if err != nil {
		return fmt.Errorf("azure copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (b *AzureBackend) Delete(ctx context.Context, key string) error {
	blobClient := b.container.NewBlobClient(key)
	_, err := blobClient.Delete(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("azure delete %s: %w", key, err)
	}
	return nil
}

func (b *AzureBackend) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pager := b.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
			Prefix: &prefix,
		})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield("", fmt.Errorf("azure list %s: %w", prefix, err))
				return
			}
			for _, item := range page.Segment.BlobItems {
				if item.Name == nil {
					continue
				}
				if !yield(*item.Name, nil) {
					return
				}
			}
		}
	}
}
