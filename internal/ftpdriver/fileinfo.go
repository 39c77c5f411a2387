package ftpdriver

import (
	"os"
	"path"
	"strconv"
	"time"

	"github.com/riverrun/discordftpd/internal/vfs"
)

// fileInfo adapts a vfs.Meta to goftp.io/server's FileInfo interface
// (os.FileInfo plus Owner/Group).
type fileInfo struct {
	name string
	meta vfs.Meta
}

func newFileInfo(virtualPath string, meta vfs.Meta) *fileInfo {
	return &fileInfo{name: path.Base(virtualPath), meta: meta}
}

func (fi *fileInfo) Name() string { return fi.name }

func (fi *fileInfo) Size() int64 { return fi.meta.Length }

func (fi *fileInfo) Mode() os.FileMode {
	if fi.meta.IsDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

func (fi *fileInfo) ModTime() time.Time { return fi.meta.Modified }

func (fi *fileInfo) IsDir() bool { return fi.meta.IsDir }

func (fi *fileInfo) Sys() interface{} { return nil }

func (fi *fileInfo) Owner() string { return strconv.FormatUint(uint64(fi.meta.UID), 10) }

func (fi *fileInfo) Group() string { return strconv.FormatUint(uint64(fi.meta.GID), 10) }
