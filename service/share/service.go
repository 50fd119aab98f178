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

// Package share issues presigned storage URLs and keeps the per-code file
// lists. It is exposed over plain JSON routes and over Connect RPC.
package share

import (
	"context"
	"errors"
	"hash/maphash"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fawa-io/codedpad/pkg/apierr"
	"github.com/fawa-io/codedpad/pkg/fwlog"
	"github.com/fawa-io/codedpad/pkg/storage"
)

const (
	notifyShards  = 64
	notifyTimeout = 5 * time.Second
)

// keyName flattens separators so a file name stays one key segment.
var keyName = strings.NewReplacer("/", "_", `\`, "_")

// Policy bounds what may be uploaded and how long issued URLs live.
type Policy struct {
	MaxSize        int64
	AllowedTypes   []string
	UploadExpiry   time.Duration
	DownloadExpiry time.Duration
}

// DefaultPolicy allows PNG, JPEG and PDF files of up to 50 MiB.
func DefaultPolicy() Policy {
	return Policy{
		MaxSize:        50 * 1024 * 1024,
		AllowedTypes:   []string{"image/png", "image/jpeg", "application/pdf"},
		UploadExpiry:   5 * time.Minute,
		DownloadExpiry: 10 * time.Minute,
	}
}

// UploadTicket is the answer to an upload request: where to PUT the bytes
// and the object key to record afterwards.
type UploadTicket struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
}

// Service ties the presigner and the metadata store together.
type Service struct {
	presigner storage.ObjectPresigner
	meta      storage.MetadataStore
	policy    atomic.Pointer[Policy]
	metrics   *Metrics
	hub       *Hub
	newID     func() string

	notifySeed maphash.Seed
	notifyMu   [notifyShards]sync.Mutex
}

type Option func(*Service)

// WithMetrics records presign outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIDGenerator replaces the random part of object keys.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func NewService(presigner storage.ObjectPresigner, meta storage.MetadataStore, policy Policy, opts ...Option) *Service {
	s := &Service{
		presigner:  presigner,
		meta:       meta,
		hub:        NewHub(),
		newID:      uuid.NewString,
		notifySeed: maphash.MakeSeed(),
	}
	s.SetPolicy(policy)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPolicy swaps the policy used by subsequent requests.
func (s *Service) SetPolicy(p Policy) {
	p.AllowedTypes = slices.Clone(p.AllowedTypes)
	s.policy.Store(&p)
}

func (s *Service) Policy() Policy {
	return *s.policy.Load()
}

// IssueUploadURL validates the declared file and returns a URL allowing a
// single PUT of it, under a fresh key ending in fileName. Path separators
// in fileName become underscores in the key.
func (s *Service) IssueUploadURL(ctx context.Context, fileName, fileType string, fileSize int64) (*UploadTicket, error) {
	p := s.Policy()
	if fileName == "" || fileType == "" || fileSize <= 0 {
		return nil, apierr.Validation("missing file metadata")
	}
	if fileSize > p.MaxSize {
		return nil, apierr.Validation("file too large (max %dMB)", p.MaxSize/(1024*1024))
	}
	if !slices.Contains(p.AllowedTypes, fileType) {
		return nil, apierr.Validation("file type not allowed")
	}

	key := "uploads/" + s.newID() + "-" + keyName.Replace(fileName)
	uploadURL, err := s.presigner.PresignUpload(ctx, key, fileType, p.UploadExpiry)
	s.metrics.observePresign("upload", err)
	if err != nil {
		fwlog.Errorf("Failed to presign upload of %s: %v", key, err)
		return nil, apierr.Upstream("failed to create presigned URL", err)
	}
	fwlog.Debugf("Issued upload URL for %s", key)
	return &UploadTicket{UploadURL: uploadURL, Key: key}, nil
}

// IssueDownloadURL returns a URL allowing a single GET of key, served as an
// attachment.
func (s *Service) IssueDownloadURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", apierr.Validation("missing file key")
	}
	downloadURL, err := s.presigner.PresignDownload(ctx, key, s.Policy().DownloadExpiry)
	s.metrics.observePresign("download", err)
	if err != nil {
		fwlog.Errorf("Failed to presign download of %s: %v", key, err)
		return "", apierr.Upstream("failed to create download URL", err)
	}
	return downloadURL, nil
}

// AppendFiles records files under code.
func (s *Service) AppendFiles(ctx context.Context, code string, files []storage.FileDescriptor) (*storage.NamespaceRecord, error) {
	if code == "" {
		return nil, apierr.Validation("missing code")
	}
	if len(files) == 0 {
		return nil, apierr.Validation("files must be a non-empty array")
	}
	for i, f := range files {
		if f.Key == "" {
			return nil, apierr.Validation("file %d has no key", i)
		}
	}
	rec, err := s.meta.AppendFiles(ctx, code, files)
	if err != nil {
		return nil, storeError("append files", err)
	}
	fwlog.Infof("Appended %d file(s) to code %q", len(files), code)
	s.notify(ctx, code)
	return rec, nil
}

// ListFiles returns the record for code.
func (s *Service) ListFiles(ctx context.Context, code string) (*storage.NamespaceRecord, error) {
	if code == "" {
		return nil, apierr.Validation("missing code")
	}
	rec, err := s.meta.ListFiles(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apierr.NotFound("code not found")
	}
	if err != nil {
		return nil, storeError("list files", err)
	}
	return rec, nil
}

// RemoveFile drops the file stored under key from code.
func (s *Service) RemoveFile(ctx context.Context, code, key string) (*storage.NamespaceRecord, error) {
	if code == "" {
		return nil, apierr.Validation("missing code")
	}
	if key == "" {
		return nil, apierr.Validation("missing file key")
	}
	rec, err := s.meta.RemoveFile(ctx, code, key)
	if err != nil {
		return nil, storeError("remove file", err)
	}
	fwlog.Infof("Removed %s from code %q", key, code)
	s.notify(ctx, code)
	return rec, nil
}

// RemoveFileAt drops the file at a position from code.
func (s *Service) RemoveFileAt(ctx context.Context, code string, index int) (*storage.NamespaceRecord, error) {
	if code == "" {
		return nil, apierr.Validation("missing code")
	}
	if index < 0 {
		return nil, apierr.Validation("invalid file index")
	}
	rec, err := s.meta.RemoveFileAt(ctx, code, index)
	if err != nil {
		return nil, storeError("remove file", err)
	}
	fwlog.Infof("Removed file #%d from code %q", index, code)
	s.notify(ctx, code)
	return rec, nil
}

// DeleteRecord drops code and all its files. It succeeds for unknown codes.
func (s *Service) DeleteRecord(ctx context.Context, code string) error {
	if code == "" {
		return apierr.Validation("missing code")
	}
	if err := s.meta.DeleteRecord(ctx, code); err != nil {
		return storeError("delete code", err)
	}
	fwlog.Infof("Deleted code %q", code)
	s.notify(ctx, code)
	return nil
}

// Watch subscribes to the changes of code made through this service.
func (s *Service) Watch(code string) (<-chan Event, func()) {
	return s.hub.Subscribe(code)
}

// notify publishes the stored state of code after a change to it. Reads
// for one code are serialized, so the last event always follows the last
// write, whatever order concurrent changes finished in.
func (s *Service) notify(ctx context.Context, code string) {
	if s.hub.Watchers(code) == 0 {
		return
	}
	mu := &s.notifyMu[maphash.String(s.notifySeed, code)%notifyShards]
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	rec, err := s.meta.ListFiles(ctx, code)
	switch {
	case err == nil:
		s.hub.Publish(Event{Code: code, Files: rec.Files})
	case errors.Is(err, storage.ErrNotFound):
		s.hub.Publish(Event{Code: code, Files: []storage.FileDescriptor{}, Absent: true})
	default:
		fwlog.Warnf("Failed to read code %q for its watchers: %v", code, err)
	}
}

// Drain ends all watches and waits for their handlers to say goodbye to
// their clients, or until ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	return s.hub.Drain(ctx)
}

// Close ends all watches and closes the metadata store.
func (s *Service) Close() error {
	s.hub.Close()
	return s.meta.Close()
}

func storeError(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apierr.NotFound("file not found")
	}
	fwlog.Errorf("Failed to %s: %v", op, err)
	return apierr.Upstream("failed to "+op, err)
}
