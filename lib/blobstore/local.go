package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	devenv "casesync-backend/dev/env"
)

type LocalConfig struct {
	Directory string `json:"directory"`
}

// Local keeps objects as files below a root directory. Writes go to a
// temporary file first and are renamed into place.
type Local struct {
	root string
}

func NewLocal(config LocalConfig) (Local, error) {
	if config.Directory == "" {
		return Local{}, fmt.Errorf("local blobstore: directory not specified")
	}
	root, err := devenv.ResolvePath(config.Directory)
	if err != nil {
		return Local{}, err
	}
	err = os.MkdirAll(root, 0700)
	if err != nil {
		return Local{}, err
	}
	return Local{root: root}, nil
}

func (l Local) path(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	if cleaned == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("local blobstore: invalid key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

func (l Local) Put(ctx context.Context, key string, data []byte, contentType string) error {
	target, err := l.path(key)
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(target), 0700)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (l Local) Get(ctx context.Context, key string) ([]byte, error) {
	target, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return data, err
}

func (l Local) Exists(ctx context.Context, key string) (bool, error) {
	target, err := l.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (l Local) Delete(ctx context.Context, key string) error {
	target, err := l.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l Local) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

func (l Local) Ping(ctx context.Context) error {
	_, err := os.Stat(l.root)
	return err
}
