package provider

import (
	"context"
	"fmt"

	"github.com/franksops/skycp/location"
)

// Options carries per-backend client settings for NewOpener.
type Options struct {
	S3    S3Options
	GCS   GCSOptions
	Azure AzureOptions
}

// NewOpener returns an Opener that builds the SDK-backed store for each
// remote scheme.
func NewOpener(opts Options) Opener {
	return func(ctx context.Context, loc location.Remote) (ObjectStore, error) {
		switch loc.Kind {
		case location.SchemeS3:
			return NewS3Store(ctx, loc.Bucket, opts.S3)
		case location.SchemeGS:
			return NewGCSStore(loc.Bucket, opts.GCS)
		case location.SchemeAzure:
			return NewAzureStore(loc.Account(), loc.Container, opts.Azure)
		default:
			return nil, fmt.Errorf("no object store for scheme %q", loc.Kind)
		}
	}
}
