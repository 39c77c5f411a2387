package vfs

import (
	"encoding/json"
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
)

// ChunkRef is one (message ID, attachment URL) pair. Concatenating the
// bytes fetched from each URL in chunk order reconstitutes a file.
type ChunkRef struct {
	MessageID string
	URL       string
}

// MarshalJSON encodes a ChunkRef as the two-element ["id","url"] array
// data.json expects.
func (c ChunkRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{c.MessageID, c.URL})
}

// UnmarshalJSON decodes a ["id","url"] array into a ChunkRef.
func (c *ChunkRef) UnmarshalJSON(b []byte) error {
	var pair [2]string
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	c.MessageID, c.URL = pair[0], pair[1]
	return nil
}

// Meta holds the attributes of one virtual path.
type Meta struct {
	Length    int64      `json:"len"`
	IsDir     bool       `json:"is_dir"`
	IsFile    bool       `json:"is_file"`
	IsSymlink bool       `json:"is_symlink"`
	Modified  time.Time  `json:"modified"`
	GID       uint32     `json:"gid"`
	UID       uint32     `json:"uid"`
	Chunks    []ChunkRef `json:"ids_and_urls"`
}

// Files is the persisted index: path -> metadata, and directory path ->
// ordered direct-child paths.
type Files struct {
	FileMap   map[string]Meta     `json:"files"`
	FolderMap map[string][]string `json:"folders"`
}

// newEmptyFiles returns an index containing only the root directory.
func newEmptyFiles() *Files {
	return &Files{
		FileMap: map[string]Meta{
			"/": {IsDir: true, Modified: time.Unix(0, 0)},
		},
		FolderMap: map[string][]string{
			"/": {},
		},
	}
}

// Store persists a Files index to a flat document and loads it back.
// A missing document is treated as a fresh, empty filesystem rather than
// an error - see spec.md §3's lifecycle note.
type Store struct {
	path string
}

// NewStore returns a Store backed by the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the index document, creating an empty one in memory (but not
// yet on disk) if the document does not exist yet.
func (s *Store) Load() (*Files, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return newEmptyFiles(), nil
	}
	if err != nil {
		return nil, newErr("load", s.path, KindIndexFailure, errors.Wrap(err, "read index"))
	}
	var f Files
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, newErr("load", s.path, KindDecodingFailure, errors.Wrap(err, "decode index"))
	}
	if f.FileMap == nil {
		f.FileMap = make(map[string]Meta)
	}
	if f.FolderMap == nil {
		f.FolderMap = make(map[string][]string)
	}
	return &f, nil
}

// Flush overwrites the document in place with the given index.
func (s *Store) Flush(f *Files) error {
	data, err := json.Marshal(f)
	if err != nil {
		return newErr("flush", s.path, KindDecodingFailure, errors.Wrap(err, "encode index"))
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return newErr("flush", s.path, KindIndexFailure, errors.Wrap(err, "write index"))
	}
	return nil
}

// parentOf returns the parent directory of an absolute virtual path.
func parentOf(p string) string {
	if p == "/" {
		return "/"
	}
	d := path.Dir(p)
	if d == "." {
		return "/"
	}
	return d
}

// removeChild deletes one occurrence of child from the parent's child
// list, in place.
func removeChild(folders map[string][]string, parent, child string) {
	children := folders[parent]
	for i, c := range children {
		if c == child {
			folders[parent] = append(children[:i], children[i+1:]...)
			return
		}
	}
}
