package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

func TestOpenLocalDirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	s, err := Open(ctx, root)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, root, s.Root())

	require.NoError(t, s.EnsureDir("proj"))
	info, err := os.Stat(filepath.Join(root, "proj"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent.
	require.NoError(t, s.EnsureDir("proj"))
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestOpenFileIsNotDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := Open(context.Background(), path)
	assert.Error(t, err)
}

func TestWriteExistsDigest(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	s, err := Open(ctx, root)
	require.NoError(t, err)
	defer s.Close()

	const key = "proj/proj_fuzzer_a-corpus.zip"

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Digest(ctx, key)
	assert.True(t, errors.Is(err, ErrNotExist))

	data := []byte("PK\x03\x04 corpus")
	require.NoError(t, s.Write(ctx, key, data))

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	sum, err := s.Digest(ctx, key)
	require.NoError(t, err)
	want := sha256.Sum256(data)
	assert.Equal(t, want[:], sum)

	// The artifact lands at the expected path and nothing else is written.
	onDisk, err := os.ReadFile(filepath.Join(root, "proj", "proj_fuzzer_a-corpus.zip"))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	entries, err := os.ReadDir(filepath.Join(root, "proj"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestObjectCommit(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "mem://")
	require.NoError(t, err)
	defer s.Close()

	obj := s.Object("proj/a.zip")
	assert.Equal(t, "proj/a.zip", obj.Key())

	w, err := obj.Create(ctx)
	require.NoError(t, err)
	_, err = w.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	sum, err := s.Digest(ctx, "proj/a.zip")
	require.NoError(t, err)
	want := sha256.Sum256([]byte("new"))
	assert.Equal(t, want[:], sum)
}

func TestObjectCancelKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	s, err := Open(ctx, root)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(ctx, "proj/a.zip", []byte("old")))

	writeCtx, cancel := context.WithCancel(ctx)
	w, err := s.Object("proj/a.zip").Create(writeCtx)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	cancel()
	assert.Error(t, w.Close())

	got, err := os.ReadFile(filepath.Join(root, "proj", "a.zip"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	entries, err := os.ReadDir(filepath.Join(root, "proj"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestObjectStoreEnsureDirIsNoop(t *testing.T) {
	s, err := Open(context.Background(), "mem://")
	require.NoError(t, err)
	defer s.Close()

	assert.Empty(t, s.Root())
	assert.NoError(t, s.EnsureDir("proj"))
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("gs://bucket"))
	assert.True(t, IsURL("file:///tmp/corpora"))
	assert.False(t, IsURL("/tmp/corpora"))
	assert.False(t, IsURL("corpora"))
}

func TestNewStoreWrapsBucket(t *testing.T) {
	ctx := context.Background()
	bkt := memblob.OpenBucket(nil)

	s := NewStore(bkt)
	defer s.Close()

	assert.Empty(t, s.Root())
	require.NoError(t, s.EnsureDir("proj"))
	require.NoError(t, s.Write(ctx, "proj/a.zip", []byte("corpus")))

	// Writes land in the wrapped bucket.
	got, err := bkt.ReadAll(ctx, "proj/a.zip")
	require.NoError(t, err)
	assert.Equal(t, "corpus", string(got))

	ok, err := s.Exists(ctx, "proj/a.zip")
	require.NoError(t, err)
	assert.True(t, ok)
}
