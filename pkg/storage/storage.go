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

package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a code has no record, or when the
	// requested file is not part of it.
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict is returned when a conditional removal kept losing
	// against concurrent writers.
	ErrConflict = errors.New("storage: concurrent modification")
)

// FileDescriptor describes one uploaded file. It is immutable once
// created and identified by Key.
type FileDescriptor struct {
	Name string `json:"name" dynamodbav:"name"`
	Type string `json:"type" dynamodbav:"type"`
	Size int64  `json:"size" dynamodbav:"size"`
	Key  string `json:"key" dynamodbav:"key"`
}

// NamespaceRecord is the ordered list of files shared under one code.
type NamespaceRecord struct {
	Code  string           `json:"code"`
	Files []FileDescriptor `json:"files"`
}

// MetadataStore defines the operations on namespace records.
// This allows for decoupling the business logic from the concrete storage implementation.
type MetadataStore interface {
	// AppendFiles atomically appends files to the record for code,
	// creating it when absent, and returns the updated record.
	AppendFiles(ctx context.Context, code string, files []FileDescriptor) (*NamespaceRecord, error)

	// ListFiles returns the record for code, or ErrNotFound when there is
	// none. An existing record may hold zero files.
	ListFiles(ctx context.Context, code string) (*NamespaceRecord, error)

	// RemoveFileAt removes the file at a literal position.
	RemoveFileAt(ctx context.Context, code string, index int) (*NamespaceRecord, error)

	// RemoveFile removes the first file whose key matches. The removal is
	// matched on the stored value, so interleaved writers can never cause
	// a different file to be dropped.
	RemoveFile(ctx context.Context, code, key string) (*NamespaceRecord, error)

	// DeleteRecord removes the whole record. Deleting an absent record
	// succeeds.
	DeleteRecord(ctx context.Context, code string) error

	// Close releases the underlying connections.
	Close() error
}

// ObjectPresigner issues capability URLs against object storage.
type ObjectPresigner interface {
	// PresignUpload returns a URL authorizing one PUT of contentType to key.
	PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (string, error)

	// PresignDownload returns a URL authorizing one GET of key, answered
	// with an attachment disposition.
	PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error)
}

// indexOfKey returns the position of the first descriptor with key, or -1.
func indexOfKey(files []FileDescriptor, key string) int {
	for i, f := range files {
		if f.Key == key {
			return i
		}
	}
	return -1
}
