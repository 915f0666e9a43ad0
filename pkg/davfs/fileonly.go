package davfs

import (
	"context"
	"os"

	"golang.org/x/net/webdav"
)

// fileOnly resolves every name to the same local file, read-only.
type fileOnly struct {
	path string
}

// FileOnly returns a read-only filesystem that serves path for every name.
func FileOnly(path string) webdav.FileSystem {
	return fileOnly{path: path}
}

func (f fileOnly) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission
}

func (f fileOnly) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, os.ErrPermission
	}
	fd, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	return fd, nil
}

func (f fileOnly) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission
}

func (f fileOnly) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission
}

func (f fileOnly) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	return os.Stat(f.path)
}
