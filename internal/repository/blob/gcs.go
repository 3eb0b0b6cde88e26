package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"vaultgc/internal/logging"
)

// GCS parameter keys.
const (
	ParamGCSBucket = "bucket"
)

// GCSBackend is a StorageBackend backed by Google Cloud Storage.
type GCSBackend struct {
	client *storage.Client
	bucket *storage.BucketHandle
	logger *slog.Logger
}

// NewGCSBackend validates params and constructs a GCSBackend. Client
// construction is the only network-adjacent step (credential discovery);
// the bucket is assumed to already exist.
func NewGCSBackend(ctx context.Context, params map[string]string, logger *slog.Logger) (*GCSBackend, error) {
	bucketName, ok := params[ParamGCSBucket]
	if !ok || bucketName == "" {
		return nil, fmt.Errorf("missing required parameter: %s", ParamGCSBucket)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &GCSBackend{
		client: client,
		bucket: client.Bucket(bucketName),
		logger: logging.Default(logger).With("component", "repository", "backend", "blob", "driver", "gcs"),
	}, nil
}

func (b *GCSBackend) Put(ctx context.Context, key string, data []byte) error {
	w := b.bucket.Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	return nil
}

func (b *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs get %s: %w", key, err)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (b *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs head %s: %w", key, err)
	}
	return true, nil
}

func (b *GCSBackend) Copy(ctx context.Context, srcKey, dstKey string) error {
	src := b.bucket.Object(srcKey)
	dst := b.bucket.Object(dstKey)
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return fmt.Errorf("gcs copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	if err := b.bucket.Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("gcs delete %s: %w", key, err)
	}
	return nil
}

func (b *GCSBackend) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		it := b.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("gcs list %s: %w", prefix, err))
				return
			}
			if !yield(attrs.Name, nil) {
				return
			}
		}
	}
}
