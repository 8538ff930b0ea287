package storage

import (
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
)

// MinioStore keeps blobs in one S3-compatible bucket as <namespace>/<name>
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *zap.SugaredLogger
}

// NewMinioStore connects to cfg.Endpoint and creates the bucket if absent
func NewMinioStore(ctx context.Context, cfg am.MinIOConfig, logger *zap.SugaredLogger) (*MinioStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.WithHint(
			errors.New("minio endpoint is required"),
			"set storage.minio.endpoint or DATAQ_STORAGE_MINIO_ENDPOINT",
		)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("minio bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create minio client for %s", endpoint)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to check bucket %s", bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, errors.Wrapf(err, "failed to create bucket %s", bucket)
		}
		logger.Infow("Created storage bucket", "bucket", bucket, "endpoint", endpoint)
	}

	return &MinioStore{client: client, bucket: bucket, logger: logger.Named("storage")}, nil
}

// Put uploads r. The size is unknown, so minio-go uses a multipart stream.
func (s *MinioStore) Put(ctx context.Context, namespace, name string, r io.Reader) (string, error) {
	if err := checkName("namespace", namespace); err != nil {
		return "", err
	}
	if err := checkName("name", name); err != nil {
		return "", err
	}
	key := namespace + "/" + name
	info, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType: contentType(name),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", key)
	}
	s.logger.Debugw("Stored blob", "bucket", s.bucket, "key", key, "size", info.Size)
	return "s3://" + s.bucket + "/" + key, nil
}

// Get opens the object behind ref. The object is stat'ed first so a missing
// key surfaces here instead of on the first Read.
func (s *MinioStore) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := s.key(ref)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classify(err, ref)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, s.classify(err, ref)
	}
	return obj, nil
}

// Delete removes the object behind ref
func (s *MinioStore) Delete(ctx context.Context, ref string) error {
	key, err := s.key(ref)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to delete %s", ref)
	}
	return nil
}

func (s *MinioStore) key(ref string) (string, error) {
	rest, err := splitRef(ref, "s3")
	if err != nil {
		return "", err
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return "", errors.Mark(errors.Newf("malformed ref %q", ref), errors.ErrInvalidRequest)
	}
	if bucket != s.bucket {
		return "", errors.Mark(errors.Newf("ref %q is not in bucket %s", ref, s.bucket), errors.ErrInvalidRequest)
	}
	return key, nil
}

func (s *MinioStore) classify(err error, ref string) error {
	if isNoSuchKey(err) {
		return errors.NewNotFoundError("blob %s not found", ref)
	}
	return errors.Wrapf(err, "failed to read %s", ref)
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func contentType(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".csv") {
		return "text/csv"
	}
	return "application/octet-stream"
}
