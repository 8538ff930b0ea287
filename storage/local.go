package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/teranos/dataq/errors"
)

// LocalStore keeps blobs as files under a root directory
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create storage root %s", root)
	}
	return &LocalStore{root: root}, nil
}

// Put writes to a temp file and renames it into place, so readers never see
// a partial blob.
func (s *LocalStore) Put(ctx context.Context, namespace, name string, r io.Reader) (string, error) {
	if err := checkName("namespace", namespace); err != nil {
		return "", err
	}
	if err := checkName("name", name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "failed to write blob %s/%s", namespace, name)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", errors.Wrapf(err, "failed to commit blob %s/%s", namespace, name)
	}
	return "file://" + namespace + "/" + name, nil
}

// Get opens the file behind ref
func (s *LocalStore) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("blob %s not found", ref)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open blob %s", ref)
	}
	return f, nil
}

// Delete removes the file behind ref
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete blob %s", ref)
	}
	return nil
}

func (s *LocalStore) path(ref string) (string, error) {
	rest, err := splitRef(ref, "file")
	if err != nil {
		return "", err
	}
	namespace, name, ok := strings.Cut(rest, "/")
	if !ok {
		return "", errors.Mark(errors.Newf("malformed ref %q", ref), errors.ErrInvalidRequest)
	}
	if err := checkName("namespace", namespace); err != nil {
		return "", err
	}
	if err := checkName("name", name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, namespace, name), nil
}
