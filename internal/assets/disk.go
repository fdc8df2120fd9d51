package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DiskStore serves assets from a local directory (the "private" disk).
type DiskStore struct {
	root string
}

// NewDiskStore returns a store rooted at dir.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{root: dir}
}

// Path implements Store.Path.
func (d *DiskStore) Path(key string) string {
	cleaned, err := CleanKey(key)
	if err != nil {
		return ""
	}
	return filepath.Join(d.root, filepath.FromSlash(cleaned))
}

func (d *DiskStore) resolve(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(cleaned)), nil
}

// Exists implements Store.Exists.
func (d *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := d.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Get implements Store.Get.
func (d *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := d.resolve(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

// Open implements Store.Open.
func (d *DiskStore) Open(ctx context.Context, key string) (Object, error) {
	p, err := d.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotFound
	}
	return &diskObject{File: f, info: info}, nil
}

type diskObject struct {
	*os.File
	info fs.FileInfo
}

func (o *diskObject) Size() int64        { return o.info.Size() }
func (o *diskObject) ModTime() time.Time { return o.info.ModTime() }
