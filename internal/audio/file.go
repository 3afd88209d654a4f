// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const fileScheme = "fs"

var _ Store = (*FileStore)(nil)

// FileStore keeps each blob as a file under a root directory. Files are
// created with O_EXCL and made read-only, so a blob is never rewritten.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed and returns a store rooted there.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, wrenerr.New(wrenerr.CodeAudioPutInvalidInput, "audio directory is required")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeAudioStoreFailure, "creating audio directory %s", root)
	}
	return &FileStore{root: root}, nil
}

func (f *FileStore) Put(ctx context.Context, data []byte, hint Hint) (Locator, error) {
	if err := CheckPut(data); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	loc := NewLocator(fileScheme, hint.MIMEType)
	_, name, _ := loc.Parse()
	p := filepath.Join(f.root, name)

	file, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o400)
	if errors.Is(err, fs.ErrExist) {
		return "", wrenerr.New(wrenerr.CodeAudioPutConflict, "audio blob already exists", wrenerr.Field("locator", string(loc)))
	}
	if err != nil {
		return "", wrenerr.Wrapf(err, wrenerr.CodeAudioStoreFailure, "creating audio file %s", name)
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(p)
		return "", wrenerr.Wrapf(err, wrenerr.CodeAudioStoreFailure, "writing audio file %s", name)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(p)
		return "", wrenerr.Wrapf(err, wrenerr.CodeAudioStoreFailure, "closing audio file %s", name)
	}
	return loc, nil
}

func (f *FileStore) Get(ctx context.Context, loc Locator) (*Blob, error) {
	name, err := ParseFor(loc, fileScheme)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(f.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, NotFound(loc)
	}
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeAudioStoreFailure, "reading audio file %s", name)
	}
	return &Blob{Data: data, MIMEType: MIMETypeFor(path.Ext(name))}, nil
}

func (f *FileStore) String() string {
	return fmt.Sprintf("FileStore(%s)", f.root)
}

func extOf(loc Locator) string {
	return path.Ext(string(loc))
}
