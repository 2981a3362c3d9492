// Package store keeps mirrored corpus archives in a gocloud.dev bucket.
//
// A plain directory path is opened with fileblob; anything that looks like
// a URL ("file://", "mem://", "gs://", "s3://") goes through
// blob.OpenBucket. Writes are atomic: a reader sees either the previous
// archive or the complete new one, never a partial file.
package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// ErrNotExist is returned when an artifact is missing.
var ErrNotExist = errors.New("store: artifact does not exist")

const contentType = "application/zip"

// Store is a bucket of corpus archives.
type Store struct {
	bucket *blob.Bucket
	// root is the local directory backing bucket, empty for object stores.
	root string
}

// IsURL reports whether location should be opened with blob.OpenBucket.
func IsURL(location string) bool {
	return strings.Contains(location, "://")
}

// Open opens the store at location. A local directory must already exist.
func Open(ctx context.Context, location string) (*Store, error) {
	if IsURL(location) {
		bkt, err := blob.OpenBucket(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("store: open bucket %s: %w", location, err)
		}
		return &Store{bucket: bkt}, nil
	}

	root, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("store: resolve %s: %w", location, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store: %s is not a directory", root)
	}

	bkt, err := fileblob.OpenBucket(root, &fileblob.Options{
		// Temp files beside the destination keep the final rename on one
		// filesystem.
		NoTempDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open directory %s: %w", root, err)
	}
	return &Store{bucket: bkt, root: root}, nil
}

// NewStore wraps an already open bucket.
func NewStore(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Close closes the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

// Root returns the local directory behind the store, or "" for object stores.
func (s *Store) Root() string {
	return s.root
}

// EnsureDir creates the directory for a project's artifacts. Object stores
// have no directories, so it is a no-op for them.
func (s *Store) EnsureDir(project string) error {
	if s.root == "" {
		return nil
	}
	dir := filepath.Join(s.root, filepath.FromSlash(project))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("store: stat %s: %w", key, err)
	}
	return ok, nil
}

// Digest returns the SHA-256 of the artifact at key.
func (s *Store) Digest(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, key)
		}
		return nil, fmt.Errorf("store: open %s: %w", key, err)
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}
	return h.Sum(nil), nil
}

// Write replaces the artifact at key with data.
func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	if err := s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

// Object returns a destination that streams into key.
func (s *Store) Object(key string) *Object {
	return &Object{bucket: s.bucket, key: key}
}

// Object streams a single artifact. Each Create starts a new write; the
// previous artifact stays in place until the writer is closed
// successfully, and cancelling the Create context discards the write.
type Object struct {
	bucket *blob.Bucket
	key    string
}

// Key returns the artifact key.
func (o *Object) Key() string {
	return o.key
}

// Create opens a writer for the artifact.
func (o *Object) Create(ctx context.Context) (io.WriteCloser, error) {
	w, err := o.bucket.NewWriter(ctx, o.key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("store: create %s: %w", o.key, err)
	}
	return w, nil
}
