package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/config"
)

// MinIO implements Store on an S3-compatible bucket.
type MinIO struct {
	client    *minio.Client
	bucket    string
	namespace string
}

// NewMinIO creates a MinIO-backed store from configuration.
func NewMinIO(cfg config.DocStoreConfig) (*MinIO, error) {
	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIO{
		client:    client,
		bucket:    cfg.GetDocStoreBucket(),
		namespace: cfg.GetDocStoreNamespace(),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *MinIO) Get(ctx context.Context, category, key string, out any) error {
	name := ObjectName(s.namespace, category, key)

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, fmt.Sprintf("get object %s", name), err).WithOp("docstore.Get")
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return apperr.NotFound(fmt.Sprintf("document %s/%s not found", category, key)).WithOp("docstore.Get")
		}
		return apperr.Wrap(apperr.KindTransient, fmt.Sprintf("read object %s", name), err).WithOp("docstore.Get")
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindDecode, fmt.Sprintf("document %s/%s is not valid JSON", category, key), err).WithOp("docstore.Get")
	}
	return nil
}

func (s *MinIO) Put(ctx context.Context, category, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal document", err).WithOp("docstore.Put")
	}

	name := ObjectName(s.namespace, category, key)
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, fmt.Sprintf("put object %s", name), err).WithOp("docstore.Put")
	}
	return nil
}

func (s *MinIO) Exists(ctx context.Context, category, key string) (bool, error) {
	name := ObjectName(s.namespace, category, key)
	_, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, apperr.Wrap(apperr.KindTransient, fmt.Sprintf("stat object %s", name), err).WithOp("docstore.Exists")
	}
	return true, nil
}

func (s *MinIO) List(ctx context.Context, category, prefix string) ([]string, error) {
	dir := fmt.Sprintf("%s/%s/", s.namespace, category)

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    dir + prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, apperr.Wrap(apperr.KindTransient, fmt.Sprintf("list objects under %s", dir), obj.Err).WithOp("docstore.List")
		}
		key := strings.TrimPrefix(obj.Key, dir)
		key = strings.TrimSuffix(key, ".json")
		keys = append(keys, key)
	}
	return keys, nil
}
