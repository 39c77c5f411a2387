// Package ftpdriver adapts vfs.Backend to goftp.io/server's Driver
// interface - the "standard file-transfer server" collaborator spec.md §1
// leaves external to the core. Session handling, passive-mode port
// negotiation and authentication are goftp.io/server's job; this package
// only translates its per-verb calls into vfs.Backend calls.
package ftpdriver

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/pkg/errors"
	"github.com/riverrun/discordftpd/internal/vfs"
	ftpserver "goftp.io/server"
)

// Driver implements ftpserver.Driver on top of a single vfs.Backend.
type Driver struct {
	backend *vfs.Backend
}

// NewDriver returns a Driver serving files through backend.
func NewDriver(backend *vfs.Backend) *Driver {
	return &Driver{backend: backend}
}

// Init is called once per new client session. The backend has no
// per-session state, so there is nothing to do here.
func (d *Driver) Init(*ftpserver.Conn) {}

// Stat implements metadata(path).
func (d *Driver) Stat(p string) (ftpserver.FileInfo, error) {
	p = clean(p)
	m, err := d.backend.Metadata(context.Background(), p)
	if err != nil {
		return nil, translate(err)
	}
	return newFileInfo(p, m), nil
}

// ChangeDir implements cwd(path).
func (d *Driver) ChangeDir(p string) error {
	p = clean(p)
	m, err := d.backend.Metadata(context.Background(), p)
	if err != nil {
		return translate(err)
	}
	if !m.IsDir {
		return translate(&vfs.Error{Kind: vfs.KindNotFound, Op: "cwd", Path: p, Err: errors.New("not a directory")})
	}
	return d.backend.Cwd(context.Background(), p)
}

// ListDir implements list(path), invoking callback once per direct child.
func (d *Driver) ListDir(p string, callback func(ftpserver.FileInfo) error) error {
	p = clean(p)
	entries, err := d.backend.List(context.Background(), p)
	if err != nil {
		return translate(err)
	}
	for _, e := range entries {
		if err := callback(newFileInfo(e.Path, e.Meta)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDir implements rmd(path).
func (d *Driver) DeleteDir(p string) error {
	return translate(d.backend.Rmd(context.Background(), clean(p)))
}

// DeleteFile implements del(path).
func (d *Driver) DeleteFile(p string) error {
	return translate(d.backend.Del(context.Background(), clean(p)))
}

// Rename implements rename(from, to).
func (d *Driver) Rename(from, to string) error {
	return translate(d.backend.Rename(context.Background(), clean(from), clean(to)))
}

// MakeDir implements mkd(path).
func (d *Driver) MakeDir(p string) error {
	return translate(d.backend.Mkd(context.Background(), clean(p)))
}

// GetFile implements get(path, start_pos).
func (d *Driver) GetFile(p string, offset int64) (int64, io.ReadCloser, error) {
	p = clean(p)
	m, err := d.backend.Metadata(context.Background(), p)
	if err != nil {
		return 0, nil, translate(err)
	}
	rc, err := d.backend.Get(context.Background(), p, offset)
	if err != nil {
		return 0, nil, translate(err)
	}
	return m.Length, rc, nil
}

// PutFile implements put(path, stream, start_pos). appendData is rejected:
// this backend only supports whole-file uploads, matching spec.md's
// start_pos != 0 restriction.
func (d *Driver) PutFile(destPath string, data io.Reader, appendData bool) (int64, error) {
	if appendData {
		return 0, errors.New("append uploads are not supported")
	}
	n, err := d.backend.Put(context.Background(), clean(destPath), data, 0)
	return n, translate(err)
}

// clean normalizes a driver-supplied path to the absolute, forward-slash
// form the index keys on.
func clean(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// translate maps a vfs.Error to a plain error carrying a human-readable
// reason, the shape goftp.io/server's reply-code machinery expects.
func translate(err error) error {
	if err == nil {
		return nil
	}
	ve, ok := err.(*vfs.Error)
	if !ok {
		return err
	}
	switch ve.Kind {
	case vfs.KindNotFound:
		return os.ErrNotExist
	case vfs.KindAlreadyExists:
		return os.ErrExist
	default:
		return errors.Wrap(ve, ve.Kind.String())
	}
}
