package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ ObjectStore = (*GCSStore)(nil)

// DefaultGCSEndpoint is the S3-interoperable XML API of Cloud Storage.
const DefaultGCSEndpoint = "storage.googleapis.com"

// GCSOptions configures access to Cloud Storage through its S3
// interoperability layer. AccessKey and SecretKey are HMAC keys bound to a
// service account.
type GCSOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Insecure  bool
}

// GCSStore is an ObjectStore over one Cloud Storage bucket.
type GCSStore struct {
	client *minio.Client
	bucket string
}

// NewGCSStore creates a GCSStore for bucket.
func NewGCSStore(bucket string, opts GCSOptions) (*GCSStore, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultGCSEndpoint
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: !opts.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client for %s: %w", endpoint, err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// List walks every object under prefix. The XML API only implements the
// V1 listing call, so the client is told to use it.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	var objects []StoredObject
	for obj := range g.client.ListObjects(ctx, g.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		UseV1:     true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", g.bucket, prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		objects = append(objects, StoredObject{
			Bucket:  g.bucket,
			Key:     obj.Key,
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}
	return objects, nil
}

func (g *GCSStore) Upload(ctx context.Context, localPath, key string) error {
	_, err := g.client.FPutObject(ctx, g.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("gcs upload to gs://%s/%s failed: %w", g.bucket, key, err)
	}
	return nil
}

func (g *GCSStore) Download(ctx context.Context, key, localPath string) error {
	if err := g.client.FGetObject(ctx, g.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("gcs download of gs://%s/%s failed: %w", g.bucket, key, err)
	}
	return nil
}
