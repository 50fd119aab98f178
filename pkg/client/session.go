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
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fawa-io/codedpad/pkg/fwlog"
	"github.com/fawa-io/codedpad/pkg/util"
)

// DefaultUploadLimit bounds the uploads a Session runs at once.
const DefaultUploadLimit = 4

// ErrUnknownEntry is returned for ids that are not on the board.
var ErrUnknownEntry = errors.New("unknown entry")

// Session mirrors the files shared under one code.
type Session struct {
	client *Client
	code   string
	limit  int

	mu    sync.Mutex
	board Board
}

type SessionOption func(*Session)

// WithUploadLimit sets how many uploads run at once.
func WithUploadLimit(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.limit = n
		}
	}
}

func NewSession(c *Client, code string, opts ...SessionOption) *Session {
	s := &Session{client: c, code: code, limit: DefaultUploadLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Code() string { return s.code }

// Board returns the current snapshot.
func (s *Session) Board() Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

func (s *Session) apply(fn func(Board) Board) Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = fn(s.board)
	return s.board
}

// Refresh merges the server's list into the board. Uploads still in
// flight stay on it. An unknown code has no files.
func (s *Session) Refresh(ctx context.Context) (Board, error) {
	var files []FileDescriptor
	rec, err := s.client.ListFiles(ctx, s.code)
	switch {
	case err == nil:
		files = rec.Files
	case !errors.Is(err, ErrNotFound):
		return s.Board(), err
	}
	return s.apply(func(b Board) Board { return b.Sync(files, newEntryID) }), nil
}

// Upload sends every file through its own sign, PUT and record sequence.
// A failure marks only that file's entry as failed; nothing is rolled
// back. The returned error joins all failures.
func (s *Session) Upload(ctx context.Context, files ...*LocalFile) (Board, error) {
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = newEntryID()
		s.apply(func(b Board) Board {
			return b.Add(Entry{ID: ids[i], Name: f.Name, Type: f.Type, Size: f.Size, Status: StatusUploading})
		})
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.limit)
	for i, f := range files {
		g.Go(func() error {
			key, err := s.uploadOne(ctx, f)
			if err != nil {
				fwlog.Warnf("Upload of %s failed: %v", f.Name, err)
				s.apply(func(b Board) Board {
					return b.Update(ids[i], func(e Entry) Entry {
						e.Key, e.Status, e.Err = key, StatusError, err.Error()
						return e
					})
				})
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
				mu.Unlock()
				return nil
			}
			s.apply(func(b Board) Board {
				// A refresh may have listed the file already.
				if dup, ok := b.findKey(key); ok && dup.ID != ids[i] {
					b = b.Remove(dup.ID)
				}
				return b.Update(ids[i], func(e Entry) Entry {
					e.Key, e.Status, e.Err = key, StatusUploaded, ""
					return e
				})
			})
			return nil
		})
	}
	_ = g.Wait()
	return s.Board(), errors.Join(errs...)
}

// uploadOne returns the object key as soon as one was issued, even when a
// later step fails.
func (s *Session) uploadOne(ctx context.Context, f *LocalFile) (string, error) {
	ticket, err := s.client.PresignUpload(ctx, f.Name, f.Type, f.Size)
	if err != nil {
		return "", err
	}

	body, err := f.Open()
	if err != nil {
		return ticket.Key, err
	}
	err = s.client.PutObject(ctx, ticket.UploadURL, f.Type, body, f.Size)
	if closeErr := body.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return ticket.Key, fmt.Errorf("put object: %w", err)
	}

	_, err = s.client.AppendFiles(ctx, s.code, FileDescriptor{
		Name: f.Name,
		Type: f.Type,
		Size: f.Size,
		Key:  ticket.Key,
	})
	if err != nil {
		return ticket.Key, fmt.Errorf("record file: %w", err)
	}
	return ticket.Key, nil
}

// Delete removes the entry with id from the server, then from the board.
// Entries that never reached the server are only dropped locally, as are
// entries someone else already removed.
func (s *Session) Delete(ctx context.Context, id string) (Board, error) {
	e, ok := s.Board().Get(id)
	if !ok {
		return s.Board(), ErrUnknownEntry
	}
	if e.Key != "" && e.Status == StatusUploaded {
		_, err := s.client.RemoveFile(ctx, s.code, e.Key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return s.Board(), err
		}
	}
	return s.apply(func(b Board) Board { return b.Remove(id) }), nil
}

// DownloadURL returns a fresh download URL for the entry with id.
func (s *Session) DownloadURL(ctx context.Context, id string) (string, error) {
	e, ok := s.Board().Get(id)
	if !ok {
		return "", ErrUnknownEntry
	}
	if e.Status != StatusUploaded {
		return "", fmt.Errorf("%s is not uploaded", e.Name)
	}
	return s.client.PresignDownload(ctx, e.Key)
}

// Download writes the contents of the entry with id to w.
func (s *Session) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	u, err := s.DownloadURL(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.client.Download(ctx, u, w)
}

// Purge deletes the whole code. Only uploads still in flight or failed
// remain on the board.
func (s *Session) Purge(ctx context.Context) error {
	if err := s.client.DeleteCode(ctx, s.code); err != nil {
		return err
	}
	s.apply(func(b Board) Board { return b.Sync(nil, newEntryID) })
	return nil
}

func newEntryID() string {
	return util.RandomString(12)
}
