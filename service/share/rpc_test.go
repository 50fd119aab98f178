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

package share

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/codedpad/pkg/storage"
)

func newTestRPC(t *testing.T) (*RPCClient, *fakePresigner) {
	t.Helper()
	svc, presigner, _ := newTestService(t)
	mux := http.NewServeMux()
	path, handler := NewRPCHandler(svc)
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewRPCClient(srv.Client(), srv.URL), presigner
}

func assertCode(t *testing.T, err error, code connect.Code, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, connect.CodeOf(err))
	var ce *connect.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, msg, ce.Message())
}

func TestRPCPresign(t *testing.T) {
	client, presigner := newTestRPC(t)
	ctx := context.Background()

	ticket, err := client.PresignUpload(ctx, &PresignUploadRequest{FileName: "scan.pdf", FileType: "application/pdf", FileSize: 2048})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ticket.Key, "-scan.pdf"))
	assert.NotEmpty(t, ticket.UploadURL)

	_, err = client.PresignUpload(ctx, &PresignUploadRequest{FileName: "a.txt", FileType: "text/plain", FileSize: 1})
	assertCode(t, err, connect.CodeInvalidArgument, "file type not allowed")

	res, err := client.PresignDownload(ctx, &PresignDownloadRequest{Key: ticket.Key})
	require.NoError(t, err)
	assert.Contains(t, res.DownloadURL, ticket.Key)

	presigner.fail(errors.New("credentials expired at 03:00"))
	_, err = client.PresignDownload(ctx, &PresignDownloadRequest{Key: ticket.Key})
	assertCode(t, err, connect.CodeInternal, "failed to create download URL")
}

func TestRPCMetadata(t *testing.T) {
	client, _ := newTestRPC(t)
	ctx := context.Background()

	_, err := client.ListFiles(ctx, &ListFilesRequest{Code: "QW12"})
	assertCode(t, err, connect.CodeNotFound, "code not found")

	_, err = client.AppendFiles(ctx, &AppendFilesRequest{Code: "QW12"})
	assertCode(t, err, connect.CodeInvalidArgument, "files must be a non-empty array")

	rec, err := client.AppendFiles(ctx, &AppendFilesRequest{
		Code:  "QW12",
		Files: []storage.FileDescriptor{file("a.png"), file("b.png")},
	})
	require.NoError(t, err)
	assert.Equal(t, "QW12", rec.Code)
	assert.Len(t, rec.Files, 2)

	rec, err = client.RemoveFile(ctx, &RemoveFileRequest{Code: "QW12", FileKey: file("a.png").Key})
	require.NoError(t, err)
	assert.Equal(t, []storage.FileDescriptor{file("b.png")}, rec.Files)

	_, err = client.RemoveFile(ctx, &RemoveFileRequest{Code: "QW12", FileKey: file("a.png").Key})
	assertCode(t, err, connect.CodeNotFound, "file not found")

	listed, err := client.ListFiles(ctx, &ListFilesRequest{Code: "QW12"})
	require.NoError(t, err)
	assert.Equal(t, rec, listed)

	del, err := client.DeleteCode(ctx, &DeleteCodeRequest{Code: "QW12"})
	require.NoError(t, err)
	assert.True(t, del.Success)

	_, err = client.ListFiles(ctx, &ListFilesRequest{Code: "QW12"})
	assertCode(t, err, connect.CodeNotFound, "code not found")
}

func TestRPCRemoveFileAt(t *testing.T) {
	client, _ := newTestRPC(t)
	ctx := context.Background()

	_, err := client.AppendFiles(ctx, &AppendFilesRequest{
		Code:  "POS",
		Files: []storage.FileDescriptor{file("a.png"), file("b.png")},
	})
	require.NoError(t, err)

	rec, err := client.RemoveFileAt(ctx, &RemoveFileAtRequest{Code: "POS", Index: 0})
	require.NoError(t, err)
	assert.Equal(t, []storage.FileDescriptor{file("b.png")}, rec.Files)

	_, err = client.RemoveFileAt(ctx, &RemoveFileAtRequest{Code: "POS", Index: 5})
	assertCode(t, err, connect.CodeNotFound, "file not found")
	_, err = client.RemoveFileAt(ctx, &RemoveFileAtRequest{Code: "POS", Index: -1})
	assertCode(t, err, connect.CodeInvalidArgument, "invalid file index")
}

func TestRPCErrorMapping(t *testing.T) {
	svc := NewService(&fakePresigner{}, brokenStore{err: errors.New("dial tcp 10.0.0.3:6379: refused")}, DefaultPolicy())
	err := rpcError(func() error { _, err := svc.ListFiles(context.Background(), "X"); return err }())
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(err))
	assert.NotContains(t, err.Error(), "10.0.0.3")
}
