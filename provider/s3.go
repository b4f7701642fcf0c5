package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ensure interface is implemented
var _ ObjectStore = (*S3Store)(nil)

// S3Options configures how the S3 client is built.
type S3Options struct {
	Region string
	// Endpoint overrides the service endpoint, for MinIO or LocalStack.
	Endpoint  string
	PathStyle bool
	// PartConcurrency is the number of parts uploaded or downloaded in
	// parallel for a single large object.
	PartConcurrency int
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

// S3Store is an ObjectStore over one S3 bucket.
type S3Store struct {
	bucket     string
	lister     s3.ListObjectsV2APIClient
	uploader   s3Uploader
	downloader s3Downloader
}

// NewS3Store creates an S3Store for bucket using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket string, opts S3Options) (*S3Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return NewS3StoreFromClient(client, bucket, opts.PartConcurrency), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, bucket string, partConcurrency int) *S3Store {
	return &S3Store{
		bucket: bucket,
		lister: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			if partConcurrency > 0 {
				u.Concurrency = partConcurrency
			}
		}),
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			if partConcurrency > 0 {
				d.Concurrency = partConcurrency
			}
		}),
	}
}

// List returns every object under prefix, following continuation tokens
// until the listing is exhausted.
func (p *S3Store) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	paginator := s3.NewListObjectsV2Paginator(p.lister, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []StoredObject
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", p.bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue // folder placeholder
			}

			var modTime time.Time
			if obj.LastModified != nil {
				modTime = *obj.LastModified
			}
			objects = append(objects, StoredObject{
				Bucket:  p.bucket,
				Key:     key,
				Size:    aws.ToInt64(obj.Size),
				ModTime: modTime,
			})
		}
	}
	return objects, nil
}

// Upload streams the local file to key, switching to multipart for large files.
func (p *S3Store) Upload(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return fmt.Errorf("s3 upload to s3://%s/%s failed: %w", p.bucket, key, err)
	}
	return nil
}

// Download fetches key into localPath using ranged parallel GETs.
func (p *S3Store) Download(ctx context.Context, key, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}

	_, err = p.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("s3 download of s3://%s/%s failed: %w", p.bucket, key, err)
	}
	return nil
}
