package vfs_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/riverrun/discordftpd/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote is an in-memory stand-in for discordremote.Client, recording
// every call so tests can assert on upload/delete ordering.
type fakeRemote struct {
	mu        sync.Mutex
	nextID    int
	objects   map[string][]byte
	uploads   []int // size of each uploaded chunk, in call order
	deletes   []string
	failDelete map[string]bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: make(map[string][]byte), failDelete: make(map[string]bool)}
}

func (r *fakeRemote) Upload(ctx context.Context, content string, payload []byte) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := strconv.Itoa(r.nextID)
	url := "https://cdn.example.com/" + id
	buf := make([]byte, len(payload))
	copy(buf, payload)
	r.objects[id] = buf
	r.uploads = append(r.uploads, len(payload))
	return id, url, nil
}

func (r *fakeRemote) Delete(ctx context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDelete[messageID] {
		return fmt.Errorf("simulated delete failure for %s", messageID)
	}
	r.deletes = append(r.deletes, messageID)
	delete(r.objects, messageID)
	return nil
}

func (r *fakeRemote) FetchAttachment(ctx context.Context, url, messageID string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.objects[messageID]
	if !ok {
		return nil, errors.New("no such object")
	}
	return buf, nil
}

func newTestBackend(t *testing.T, chunkCeiling int64) (*vfs.Backend, *fakeRemote, string) {
	t.Helper()
	indexPath := filepath.Join(t.TempDir(), "data.json")
	store := vfs.NewStore(indexPath)
	remote := newFakeRemote()
	backend := vfs.NewBackend(store, remote, nil)
	if chunkCeiling > 0 {
		backend.ChunkCeiling = chunkCeiling
	}
	return backend, remote, indexPath
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestEmptyRootListing(t *testing.T) {
	backend, _, _ := newTestBackend(t, 0)
	ctx := context.Background()

	entries, err := backend.List(ctx, "/")
	require.NoError(t, err)
	assert.Empty(t, entries)

	meta, err := backend.Metadata(ctx, "/")
	require.NoError(t, err)
	assert.True(t, meta.IsDir)
}

func TestSmallFileRoundTrip(t *testing.T) {
	backend, remote, _ := newTestBackend(t, 0)
	ctx := context.Background()

	require.NoError(t, backend.Mkd(ctx, "/a"))
	n, err := backend.Put(ctx, "/a/hello", bytes.NewReader([]byte("hi\n")), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Len(t, remote.uploads, 1)
	assert.Equal(t, 3, remote.uploads[0])

	meta, err := backend.Metadata(ctx, "/a/hello")
	require.NoError(t, err)
	assert.Len(t, meta.Chunks, 1)
	assert.EqualValues(t, 3, meta.Length)

	rc, err := backend.Get(ctx, "/a/hello", 0)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(readAll(t, rc)))
}

func TestTwoChunkBoundary(t *testing.T) {
	backend, remote, _ := newTestBackend(t, 10)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("x"), 25)
	n, err := backend.Put(ctx, "/big", bytes.NewReader(payload), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 25, n)
	require.Len(t, remote.uploads, 3)
	assert.Equal(t, []int{10, 10, 5}, remote.uploads)

	meta, err := backend.Metadata(ctx, "/big")
	require.NoError(t, err)
	assert.EqualValues(t, 25, meta.Length)

	rc, err := backend.Get(ctx, "/big", 0)
	require.NoError(t, err)
	assert.Equal(t, payload, readAll(t, rc))
}

// TestRoundTripAcrossChunkSizes exercises the put/get round-trip property
// at the chunk-boundary sizes spec.md calls out: 0, 1, N-1, N, N+1, 3N.
func TestRoundTripAcrossChunkSizes(t *testing.T) {
	const n = 10
	for _, tc := range []struct {
		name        string
		size        int
		wantUploads []int
	}{
		{"zero", 0, nil},
		{"one", 1, []int{1}},
		{"n-minus-one", n - 1, []int{n - 1}},
		{"n", n, []int{n}},
		{"n-plus-one", n + 1, []int{n, 1}},
		{"three-n", 3 * n, []int{n, n, n}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			backend, remote, _ := newTestBackend(t, n)
			ctx := context.Background()

			payload := bytes.Repeat([]byte("z"), tc.size)
			written, err := backend.Put(ctx, "/f", bytes.NewReader(payload), 0)
			require.NoError(t, err)
			assert.EqualValues(t, tc.size, written)
			assert.Equal(t, tc.wantUploads, remote.uploads)

			meta, err := backend.Metadata(ctx, "/f")
			require.NoError(t, err)
			assert.EqualValues(t, tc.size, meta.Length)
			assert.Len(t, meta.Chunks, len(tc.wantUploads))

			rc, err := backend.Get(ctx, "/f", 0)
			require.NoError(t, err)
			assert.Equal(t, payload, readAll(t, rc))

			require.NoError(t, backend.Del(ctx, "/f"))
		})
	}
}

func TestPutOfZeroBytes(t *testing.T) {
	backend, remote, _ := newTestBackend(t, 10)
	ctx := context.Background()

	n, err := backend.Put(ctx, "/empty", bytes.NewReader(nil), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	assert.Empty(t, remote.uploads)

	meta, err := backend.Metadata(ctx, "/empty")
	require.NoError(t, err)
	assert.Empty(t, meta.Chunks)
	assert.EqualValues(t, 0, meta.Length)

	rc, err := backend.Get(ctx, "/empty", 0)
	require.NoError(t, err)
	assert.Empty(t, readAll(t, rc))
}

func TestDeleteAllChunks(t *testing.T) {
	backend, remote, _ := newTestBackend(t, 10)
	ctx := context.Background()

	_, err := backend.Put(ctx, "/big", bytes.NewReader(bytes.Repeat([]byte("x"), 25)), 0)
	require.NoError(t, err)

	require.NoError(t, backend.Del(ctx, "/big"))
	assert.Len(t, remote.deletes, 3)
	assert.Equal(t, []string{"1", "2", "3"}, remote.deletes)

	_, err = backend.Metadata(ctx, "/big")
	require.Error(t, err)
	assert.True(t, vfs.Is(err, vfs.KindNotFound))

	entries, err := backend.List(ctx, "/")
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "/big", e.Path)
	}
}

func TestDeleteAbortsIndexMutationOnFailure(t *testing.T) {
	backend, remote, _ := newTestBackend(t, 10)
	ctx := context.Background()

	_, err := backend.Put(ctx, "/big", bytes.NewReader(bytes.Repeat([]byte("x"), 25)), 0)
	require.NoError(t, err)

	meta, err := backend.Metadata(ctx, "/big")
	require.NoError(t, err)
	remote.failDelete[meta.Chunks[1].MessageID] = true

	err = backend.Del(ctx, "/big")
	require.Error(t, err)

	// the file must still be fully visible - the operation aborted before
	// any index mutation
	meta2, err := backend.Metadata(ctx, "/big")
	require.NoError(t, err)
	assert.Equal(t, meta, meta2)
}

func TestRenameFile(t *testing.T) {
	backend, _, _ := newTestBackend(t, 0)
	ctx := context.Background()

	require.NoError(t, backend.Mkd(ctx, "/a"))
	require.NoError(t, backend.Mkd(ctx, "/b"))
	payload := []byte("payload")
	_, err := backend.Put(ctx, "/a/x", bytes.NewReader(payload), 0)
	require.NoError(t, err)

	require.NoError(t, backend.Rename(ctx, "/a/x", "/b/x"))

	_, err = backend.Metadata(ctx, "/a/x")
	require.Error(t, err)
	assert.True(t, vfs.Is(err, vfs.KindNotFound))

	meta, err := backend.Metadata(ctx, "/b/x")
	require.NoError(t, err)
	assert.NotEmpty(t, meta.Chunks)

	rc, err := backend.Get(ctx, "/b/x", 0)
	require.NoError(t, err)
	assert.Equal(t, payload, readAll(t, rc))
}

func TestRenameDirectoryNotImplemented(t *testing.T) {
	backend, _, _ := newTestBackend(t, 0)
	ctx := context.Background()

	require.NoError(t, backend.Mkd(ctx, "/a"))
	err := backend.Rename(ctx, "/a", "/c")
	require.Error(t, err)
	assert.True(t, vfs.Is(err, vfs.KindNotImplemented))
}

func TestMkdAlreadyExists(t *testing.T) {
	backend, _, _ := newTestBackend(t, 0)
	ctx := context.Background()

	require.NoError(t, backend.Mkd(ctx, "/a"))
	err := backend.Mkd(ctx, "/a")
	require.Error(t, err)
	assert.True(t, vfs.Is(err, vfs.KindAlreadyExists))
}

func TestRmdNonEmptyRejected(t *testing.T) {
	backend, _, _ := newTestBackend(t, 0)
	ctx := context.Background()

	require.NoError(t, backend.Mkd(ctx, "/a"))
	_, err := backend.Put(ctx, "/a/x", bytes.NewReader([]byte("x")), 0)
	require.NoError(t, err)

	err = backend.Rmd(ctx, "/a")
	require.Error(t, err)
	assert.True(t, vfs.Is(err, vfs.KindDirectoryNotEmpty))
}

func TestGetPutRejectNonZeroStartPos(t *testing.T) {
	backend, _, _ := newTestBackend(t, 0)
	ctx := context.Background()

	_, err := backend.Put(ctx, "/x", bytes.NewReader([]byte("x")), 5)
	require.Error(t, err)
	assert.True(t, vfs.Is(err, vfs.KindNotImplemented))

	_, err = backend.Get(ctx, "/x", 5)
	require.Error(t, err)
	assert.True(t, vfs.Is(err, vfs.KindNotImplemented))
}

func TestIndexClosureAcrossOperations(t *testing.T) {
	backend, _, indexPath := newTestBackend(t, 10)
	ctx := context.Background()

	require.NoError(t, backend.Mkd(ctx, "/a"))
	require.NoError(t, backend.Mkd(ctx, "/a/b"))
	_, err := backend.Put(ctx, "/a/b/f", bytes.NewReader(bytes.Repeat([]byte("y"), 21)), 0)
	require.NoError(t, err)
	require.NoError(t, backend.Rename(ctx, "/a/b/f", "/a/g"))
	require.NoError(t, backend.Del(ctx, "/a/g"))
	require.NoError(t, backend.Rmd(ctx, "/a/b"))
	require.NoError(t, backend.Rmd(ctx, "/a"))

	assertClosure(t, indexPath)
}

func assertClosure(t *testing.T, indexPath string) {
	t.Helper()
	store := vfs.NewStore(indexPath)
	f, err := store.Load()
	require.NoError(t, err)

	for dir, children := range f.FolderMap {
		for _, c := range children {
			_, ok := f.FileMap[c]
			assert.Truef(t, ok, "folder %s references missing child %s", dir, c)
		}
	}
	for p := range f.FileMap {
		if p == "/" {
			continue
		}
		parent := "/"
		if idx := lastSlash(p); idx > 0 {
			parent = p[:idx]
		}
		count := 0
		for _, c := range f.FolderMap[parent] {
			if c == p {
				count++
			}
		}
		assert.Equalf(t, 1, count, "path %s should appear exactly once in parent %s's child list", p, parent)
	}
}

func lastSlash(p string) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return i
		}
	}
	return -1
}
