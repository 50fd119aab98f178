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

// Package client talks to a codedpad server and moves file bytes directly
// to and from object storage through the presigned URLs it hands out.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/fawa-io/codedpad/pkg/storage"
	"github.com/fawa-io/codedpad/service/share"
)

// ErrNotFound matches any *APIError with a 404 status.
var ErrNotFound = errors.New("not found")

// APIError is a rejected call to the server or to object storage.
// StatusCode is the HTTP status the failure corresponds to.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type (
	FileDescriptor = storage.FileDescriptor
	Record         = storage.NamespaceRecord
	UploadTicket   = share.UploadTicket
)

// Client calls a codedpad server over Connect and moves object bytes with
// plain HTTP against the presigned URLs it hands out.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rpc        *share.RPCClient
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a Client for the server at baseURL, e.g. http://localhost:4000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rpc = share.NewRPCClient(c.httpClient, c.baseURL)
	return c
}

func (c *Client) PresignUpload(ctx context.Context, name, fileType string, size int64) (*UploadTicket, error) {
	ticket, err := c.rpc.PresignUpload(ctx, &share.PresignUploadRequest{
		FileName: name,
		FileType: fileType,
		FileSize: size,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return ticket, nil
}

func (c *Client) PresignDownload(ctx context.Context, key string) (string, error) {
	res, err := c.rpc.PresignDownload(ctx, &share.PresignDownloadRequest{Key: key})
	if err != nil {
		return "", apiError(err)
	}
	return res.DownloadURL, nil
}

func (c *Client) AppendFiles(ctx context.Context, code string, files ...FileDescriptor) (*Record, error) {
	rec, err := c.rpc.AppendFiles(ctx, &share.AppendFilesRequest{Code: code, Files: files})
	if err != nil {
		return nil, apiError(err)
	}
	return rec, nil
}

// ListFiles returns the record of code. An unknown code is ErrNotFound.
func (c *Client) ListFiles(ctx context.Context, code string) (*Record, error) {
	rec, err := c.rpc.ListFiles(ctx, &share.ListFilesRequest{Code: code})
	if err != nil {
		return nil, apiError(err)
	}
	return rec, nil
}

func (c *Client) RemoveFile(ctx context.Context, code, key string) (*Record, error) {
	rec, err := c.rpc.RemoveFile(ctx, &share.RemoveFileRequest{Code: code, FileKey: key})
	if err != nil {
		return nil, apiError(err)
	}
	return rec, nil
}

func (c *Client) RemoveFileAt(ctx context.Context, code string, index int) (*Record, error) {
	rec, err := c.rpc.RemoveFileAt(ctx, &share.RemoveFileAtRequest{Code: code, Index: index})
	if err != nil {
		return nil, apiError(err)
	}
	return rec, nil
}

// DeleteCode drops code and its file list. Stored objects are left alone.
func (c *Client) DeleteCode(ctx context.Context, code string) error {
	if _, err := c.rpc.DeleteCode(ctx, &share.DeleteCodeRequest{Code: code}); err != nil {
		return apiError(err)
	}
	return nil
}

// PutObject uploads size bytes from body to a presigned upload URL.
func (c *Client) PutObject(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return storageError(res)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

// Download copies the object behind a presigned download URL into w.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return 0, storageError(res)
	}
	return io.Copy(w, res.Body)
}

// apiError turns the server's rejections into *APIError. Transport
// failures are returned unchanged.
func apiError(err error) error {
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return err
	}
	switch ce.Code() {
	case connect.CodeInvalidArgument:
		return &APIError{StatusCode: http.StatusBadRequest, Message: ce.Message()}
	case connect.CodeNotFound:
		return &APIError{StatusCode: http.StatusNotFound, Message: ce.Message()}
	case connect.CodeInternal:
		return &APIError{StatusCode: http.StatusInternalServerError, Message: ce.Message()}
	default:
		return err
	}
}

// storageError reads the start of an object storage error body, which is
// XML rather than JSON.
func storageError(res *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return &APIError{StatusCode: res.StatusCode, Message: strings.TrimSpace(string(b))}
}
