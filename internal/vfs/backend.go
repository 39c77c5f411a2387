// Package vfs implements the virtual filesystem index and the
// StorageBackend operations that mutate it on top of a remote
// message-oriented object store.
package vfs

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/riverrun/discordftpd/internal/chunkio"
	"github.com/sirupsen/logrus"
)

// ChunkCeiling is the maximum byte size of any single uploaded chunk (N).
const ChunkCeiling int64 = 25_000_000

// bufferedReaderSize is the capacity of the buffered reader placed over a
// put's input stream and a get's reconstructed output stream.
const bufferedReaderSize = 1 << 20 // 1 MiB

// RemoteObjectClient is everything Backend needs from the remote chat
// service. Implemented by internal/discordremote.Client.
type RemoteObjectClient interface {
	Upload(ctx context.Context, content string, payload []byte) (messageID, url string, err error)
	Delete(ctx context.Context, messageID string) error
	FetchAttachment(ctx context.Context, url, messageID string) ([]byte, error)
}

// Backend implements the metadata/list/get/put/del/mkd/rename/rmd/cwd
// operations of spec.md §4.3 against a persisted Files index and a
// RemoteObjectClient.
type Backend struct {
	store  *Store
	remote RemoteObjectClient
	log    *logrus.Entry

	// ChunkCeiling overrides ChunkCeiling for this Backend. Tests use this
	// to exercise multi-chunk uploads without 25 MB payloads; production
	// callers keep the value NewBackend sets (ChunkCeiling). A zero or
	// negative value also falls back to ChunkCeiling.
	ChunkCeiling int64

	// mu serializes all mutating operations against this process's index,
	// matching the "exclusive-writer" discipline spec.md §5 calls for.
	mu sync.Mutex
}

// NewBackend constructs a Backend persisting to store and uploading
// through remote.
func NewBackend(store *Store, remote RemoteObjectClient, log *logrus.Entry) *Backend {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Backend{store: store, remote: remote, log: log, ChunkCeiling: ChunkCeiling}
}

func (b *Backend) chunkCeiling() int64 {
	if b.ChunkCeiling <= 0 {
		return ChunkCeiling
	}
	return b.ChunkCeiling
}

// Metadata returns the attributes of path.
func (b *Backend) Metadata(ctx context.Context, p string) (Meta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.store.Load()
	if err != nil {
		return Meta{}, err
	}
	m, ok := f.FileMap[p]
	if !ok {
		return Meta{}, newErr("metadata", p, KindNotFound, nil)
	}
	return m, nil
}

// Entry is one (path, Meta) pair as returned by List.
type Entry struct {
	Path string
	Meta Meta
}

// List returns the direct children of directory p, in insertion order.
func (b *Backend) List(ctx context.Context, p string) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.store.Load()
	if err != nil {
		return nil, err
	}
	m, ok := f.FileMap[p]
	if !ok || !m.IsDir {
		return nil, newErr("list", p, KindNotFound, nil)
	}
	children := f.FolderMap[p]
	entries := make([]Entry, 0, len(children))
	for _, c := range children {
		entries = append(entries, Entry{Path: c, Meta: f.FileMap[c]})
	}
	return entries, nil
}

// Get reconstructs the file at path from start_pos (which must be 0) and
// returns a buffered stream over its content.
func (b *Backend) Get(ctx context.Context, p string, startPos int64) (io.ReadCloser, error) {
	if startPos != 0 {
		return nil, newErr("get", p, KindNotImplemented, errors.New("start_pos must be 0"))
	}

	b.mu.Lock()
	f, err := b.store.Load()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m, ok := f.FileMap[p]
	if !ok {
		return nil, newErr("get", p, KindNotFound, nil)
	}
	if m.IsDir {
		return nil, newErr("get", p, KindNotFound, errors.New("is a directory"))
	}

	if len(m.Chunks) == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	var buf []byte
	for _, c := range m.Chunks {
		part, err := b.remote.FetchAttachment(ctx, c.URL, c.MessageID)
		if err != nil {
			return nil, newErr("get", p, KindTransportFailure, errors.Wrapf(err, "fetch chunk %s", c.MessageID))
		}
		buf = append(buf, part...)
	}
	return io.NopCloser(bufio.NewReaderSize(bytes.NewReader(buf), bufferedReaderSize)), nil
}

// Put uploads the content of in as a sequence of <=N-byte chunks and
// records path with the resulting chunk list. start_pos must be 0.
func (b *Backend) Put(ctx context.Context, p string, in io.Reader, startPos int64) (int64, error) {
	if startPos != 0 {
		return 0, newErr("put", p, KindNotImplemented, errors.New("start_pos must be 0"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.store.Load()
	if err != nil {
		return 0, err
	}
	parent := parentOf(p)
	if _, ok := f.FolderMap[parent]; !ok {
		return 0, newErr("put", p, KindNotFound, errors.Errorf("parent directory %s does not exist", parent))
	}

	meta := Meta{IsFile: true, Modified: time.Now()}
	reader := bufio.NewReaderSize(in, bufferedReaderSize)

	var total int64
	for {
		limiter := chunkio.NewLimiter(reader, b.chunkCeiling())
		chunk, derr := chunkio.Drain(limiter)
		if derr != nil {
			return total, newErr("put", p, KindTransportFailure, errors.Wrap(derr, "read input stream"))
		}
		if len(chunk) == 0 {
			break
		}

		messageID, url, uerr := b.remote.Upload(ctx, "", chunk)
		if uerr != nil {
			return total, newErr("put", p, KindTransportFailure, errors.Wrap(uerr, "upload chunk"))
		}

		meta.Chunks = append(meta.Chunks, ChunkRef{MessageID: messageID, URL: url})
		meta.Length += int64(len(chunk))
		total += int64(len(chunk))
	}

	f.FolderMap[parent] = append(f.FolderMap[parent], p)
	f.FileMap[p] = meta

	if err := b.store.Flush(f); err != nil {
		return total, err
	}
	b.log.WithField("path", p).WithField("bytes", total).Debug("put complete")
	return total, nil
}

// Del removes path, first deleting every remote chunk message. If any
// chunk deletion fails the index is left untouched.
func (b *Backend) Del(ctx context.Context, p string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.store.Load()
	if err != nil {
		return err
	}
	m, ok := f.FileMap[p]
	if !ok {
		return newErr("del", p, KindNotFound, nil)
	}

	for _, c := range m.Chunks {
		if err := b.remote.Delete(ctx, c.MessageID); err != nil {
			return newErr("del", p, KindTransportFailure, errors.Wrapf(err, "delete chunk message %s", c.MessageID))
		}
	}

	delete(f.FileMap, p)
	removeChild(f.FolderMap, parentOf(p), p)

	return b.store.Flush(f)
}

// Mkd creates an empty directory at path.
func (b *Backend) Mkd(ctx context.Context, p string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.store.Load()
	if err != nil {
		return err
	}
	if _, ok := f.FileMap[p]; ok {
		return newErr("mkd", p, KindAlreadyExists, nil)
	}

	parent := parentOf(p)
	f.FolderMap[p] = []string{}
	f.FolderMap[parent] = append(f.FolderMap[parent], p)
	f.FileMap[p] = Meta{IsDir: true, Modified: time.Now()}

	return b.store.Flush(f)
}

// Rmd removes an empty directory. A non-empty directory is rejected with
// DirectoryNotEmpty rather than recursed into - see DESIGN.md for why this
// choice was pinned.
func (b *Backend) Rmd(ctx context.Context, p string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.store.Load()
	if err != nil {
		return err
	}
	m, ok := f.FileMap[p]
	if !ok || !m.IsDir {
		return newErr("rmd", p, KindNotFound, nil)
	}
	if len(f.FolderMap[p]) > 0 {
		return newErr("rmd", p, KindDirectoryNotEmpty, nil)
	}

	delete(f.FileMap, p)
	delete(f.FolderMap, p)
	removeChild(f.FolderMap, parentOf(p), p)

	return b.store.Flush(f)
}

// Rename moves a file from one virtual path to another. Renaming a
// directory is not implemented, per spec.md §4.3.
func (b *Backend) Rename(ctx context.Context, from, to string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.store.Load()
	if err != nil {
		return err
	}
	m, ok := f.FileMap[from]
	if !ok {
		return newErr("rename", from, KindNotFound, nil)
	}
	if m.IsDir {
		return newErr("rename", from, KindNotImplemented, errors.New("directory rename is not supported"))
	}

	removeChild(f.FolderMap, parentOf(from), from)
	toParent := parentOf(to)
	if _, ok := f.FolderMap[toParent]; !ok {
		return newErr("rename", to, KindNotFound, errors.Errorf("parent directory %s does not exist", toParent))
	}
	f.FolderMap[toParent] = append(f.FolderMap[toParent], to)

	delete(f.FileMap, from)
	f.FileMap[to] = m

	return b.store.Flush(f)
}

// Cwd is a no-op success: it does not check that path exists or is a
// directory. The surrounding FTP driver does that check through Metadata
// before calling Cwd.
func (b *Backend) Cwd(ctx context.Context, p string) error {
	return nil
}

