// Package blobstore stores opaque objects (session blobs, case PDFs) under
// slash separated keys, backed by a local directory, Google Cloud Storage or
// any S3 compatible service.
package blobstore

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotExist = errors.New("blobstore: object does not exist")

type Bucket interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ErrNotExist when there is no object at key.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete is a no-op when there is no object at key.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

type Config struct {
	// one of "local", "gcs" or "minio"
	Kind  string      `json:"kind"`
	Local LocalConfig `json:"local"`
	Gcs   GcsConfig   `json:"gcs"`
	Minio MinioConfig `json:"minio"`
}

func Open(ctx context.Context, config Config) (Bucket, error) {
	switch config.Kind {
	case "", "local":
		return NewLocal(config.Local)
	case "gcs":
		return NewGcs(ctx, config.Gcs)
	case "minio":
		return NewMinio(ctx, config.Minio)
	}
	return nil, fmt.Errorf("unknown blobstore kind %q", config.Kind)
}
