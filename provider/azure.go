package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

var _ ObjectStore = (*AzureStore)(nil)

// AzureOptions holds the credentials for a storage account. With neither
// set the client is anonymous, which works for public containers.
type AzureOptions struct {
	AccountKey       string
	ConnectionString string
	// BlockConcurrency is the number of blocks moved in parallel per blob.
	BlockConcurrency int
}

// AzureStore is an ObjectStore over one blob container.
type AzureStore struct {
	client      *azblob.Client
	account     string
	container   string
	concurrency int
}

// NewAzureStore creates an AzureStore for container in account.
func NewAzureStore(account, container string, opts AzureOptions) (*AzureStore, error) {
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case opts.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(opts.ConnectionString, nil)
	case opts.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(account, opts.AccountKey)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		}
	default:
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client for account %s: %w", account, err)
	}

	return &AzureStore{
		client:      client,
		account:     account,
		container:   container,
		concurrency: max(opts.BlockConcurrency, 0),
	}, nil
}

func (a *AzureStore) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	var objects []StoredObject
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s/%s/%s: %w", a.account, a.container, prefix, err)
		}
		if page.Segment == nil {
			continue
		}

		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil || strings.HasSuffix(*item.Name, "/") {
				continue
			}
			obj := StoredObject{Bucket: a.container, Key: *item.Name}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					obj.Size = *props.ContentLength
				}
				if props.LastModified != nil {
					obj.ModTime = *props.LastModified
				}
			}
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

func (a *AzureStore) Upload(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	ct := contentType(localPath)
	_, err = a.client.UploadFile(ctx, a.container, key, file, &azblob.UploadFileOptions{
		Concurrency: uint16(a.concurrency),
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		return fmt.Errorf("azure upload to %s/%s/%s failed: %w", a.account, a.container, key, err)
	}
	return nil
}

func (a *AzureStore) Download(ctx context.Context, key, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	_, err = a.client.DownloadFile(ctx, a.container, key, file, &azblob.DownloadFileOptions{
		Concurrency: uint16(a.concurrency),
	})
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("azure download of %s/%s/%s failed: %w", a.account, a.container, key, err)
	}
	return nil
}
