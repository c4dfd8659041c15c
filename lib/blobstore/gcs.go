package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GcsConfig struct {
	Bucket          string `json:"bucket"`
	CredentialsFile string `json:"credentials_file"`
	// EmulatorHost points the client at a fake-gcs-server style emulator
	// and disables authentication.
	EmulatorHost string `json:"emulator_host"`
}

type Gcs struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

func NewGcs(ctx context.Context, config GcsConfig) (Gcs, error) {
	if config.Bucket == "" {
		return Gcs{}, fmt.Errorf("gcs blobstore: bucket not specified")
	}

	var opts []option.ClientOption
	switch {
	case config.EmulatorHost != "":
		os.Setenv("STORAGE_EMULATOR_HOST", config.EmulatorHost)
		opts = append(opts, option.WithoutAuthentication())
	case config.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return Gcs{}, fmt.Errorf("create storage client: %w", err)
	}
	return Gcs{
		client: client,
		bucket: client.Bucket(config.Bucket),
	}, nil
}

func (g Gcs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	_, err := w.Write(data)
	if err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	err = w.Close()
	if err != nil {
		return fmt.Errorf("gcs close %s: %w", key, err)
	}
	return nil
}

func (g Gcs) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g Gcs) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs attrs %s: %w", key, err)
	}
	return true, nil
}

func (g Gcs) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g Gcs) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (g Gcs) Ping(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	return err
}

func (g Gcs) Close() error {
	return g.client.Close()
}
