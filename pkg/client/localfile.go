// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// LocalFile is a file waiting to be uploaded.
type LocalFile struct {
	Name string
	Type string
	Size int64

	open func() (io.ReadCloser, error)
}

// Open returns a fresh reader over the file contents.
func (f *LocalFile) Open() (io.ReadCloser, error) {
	return f.open()
}

// OpenLocalFile describes the regular file at path. Its type is detected
// from the contents, not the extension.
func OpenLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type of %s: %w", path, err)
	}
	return &LocalFile{
		Name: filepath.Base(path),
		Type: mediaType(mtype),
		Size: info.Size(),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// NewLocalFile wraps in-memory contents. An empty fileType is detected.
func NewLocalFile(name, fileType string, data []byte) (*LocalFile, error) {
	if name == "" {
		return nil, errors.New("file name is required")
	}
	if fileType == "" {
		fileType = mediaType(mimetype.Detect(data))
	}
	return &LocalFile{
		Name: name,
		Type: fileType,
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}, nil
}

// mediaType drops parameters such as charset.
func mediaType(m *mimetype.MIME) string {
	t, _, _ := strings.Cut(m.String(), ";")
	return strings.TrimSpace(t)
}
