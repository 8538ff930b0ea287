// Package storage holds uploaded datasets and cleaned outputs as opaque blobs.
//
// Blobs are addressed by a ref string returned from Put:
//
//	file://<namespace>/<name>           local directory backend
//	s3://<bucket>/<namespace>/<name>    MinIO / S3 backend
//
// Missing blobs are reported as errors.ErrNotFound.
package storage

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
)

// Namespaces used by the pipeline
const (
	NamespaceUploads = "uploads"
	NamespaceCleaned = "cleaned"
)

// Store is a blob store
type Store interface {
	// Put writes r under namespace/name, replacing any existing blob
	Put(ctx context.Context, namespace, name string, r io.Reader) (string, error)
	// Get opens the blob behind ref. The caller closes it.
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes the blob behind ref. Deleting a missing blob is not an error.
	Delete(ctx context.Context, ref string) error
}

// New builds the store selected by cfg.Backend
func New(ctx context.Context, cfg am.StorageConfig, logger *zap.SugaredLogger) (Store, error) {
	switch cfg.Backend {
	case am.StorageLocal, "":
		return NewLocalStore(cfg.Root)
	case am.StorageMinIO:
		return NewMinioStore(ctx, cfg.MinIO, logger)
	default:
		return nil, errors.WithHint(
			errors.Newf("unknown storage backend %q", cfg.Backend),
			"set storage.backend to \"local\" or \"minio\"",
		)
	}
}

// splitRef returns the path part of ref after checking its scheme
func splitRef(ref, scheme string) (string, error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(ref, prefix) {
		return "", errors.Mark(errors.Newf("ref %q is not a %s ref", ref, scheme), errors.ErrInvalidRequest)
	}
	return strings.TrimPrefix(ref, prefix), nil
}

// checkName rejects path segments that could escape the namespace
func checkName(kind, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\\\x00") {
		return errors.Mark(errors.Newf("invalid blob %s %q", kind, s), errors.ErrInvalidRequest)
	}
	return nil
}
