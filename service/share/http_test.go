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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/codedpad/pkg/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakePresigner) {
	t.Helper()
	svc, presigner, _ := newTestService(t)
	srv := httptest.NewServer(NewHTTPHandler(svc, nil))
	t.Cleanup(srv.Close)
	return srv, presigner
}

// do sends a JSON request and decodes the JSON answer into out.
func do(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestHTTPPresignUpload(t *testing.T) {
	srv, _ := newTestServer(t)

	var ticket UploadTicket
	status := do(t, http.MethodPost, srv.URL+"/s3/presign-upload",
		`{"fileName":"photo.png","fileType":"image/png","fileSize":1024}`, &ticket)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(ticket.Key, "uploads/"))
	assert.True(t, strings.HasSuffix(ticket.Key, "-photo.png"))
	assert.Contains(t, ticket.UploadURL, ticket.Key)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing fields", `{"fileName":"photo.png"}`, "missing file metadata"},
		{"too large", `{"fileName":"a.png","fileType":"image/png","fileSize":52428801}`, "file too large (max 50MB)"},
		{"wrong type", `{"fileName":"a.txt","fileType":"text/plain","fileSize":1}`, "file type not allowed"},
		{"bad json", `{"fileName":`, "invalid request body"},
		{"fractional size", `{"fileName":"a.png","fileType":"image/png","fileSize":1.5}`, "invalid request body"},
		{"empty body", ``, "missing file metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res errorResponse
			status := do(t, http.MethodPost, srv.URL+"/s3/presign-upload", tt.body, &res)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.want, res.Error)
		})
	}
}

func TestHTTPPresignUploadUpstream(t *testing.T) {
	srv, presigner := newTestServer(t)
	presigner.fail(errors.New("secret upstream detail"))

	var res errorResponse
	status := do(t, http.MethodPost, srv.URL+"/s3/presign-upload",
		`{"fileName":"a.png","fileType":"image/png","fileSize":1}`, &res)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "failed to create presigned URL", res.Error)
}

func TestHTTPPresignDownload(t *testing.T) {
	srv, _ := newTestServer(t)

	var res PresignDownloadResponse
	status := do(t, http.MethodPost, srv.URL+"/s3/presign-download", `{"key":"uploads/id-a.png"}`, &res)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://storage.example/uploads/id-a.png?op=get", res.DownloadURL)

	var errRes errorResponse
	status = do(t, http.MethodPost, srv.URL+"/s3/presign-download", `{}`, &errRes)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "missing file key", errRes.Error)
}

func TestHTTPMetadataLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL + "/metaData/XY12"

	var errRes errorResponse
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, base+"/files", "", &errRes))
	assert.Equal(t, "code not found", errRes.Error)

	var rec storage.NamespaceRecord
	status := do(t, http.MethodPost, base+"/files",
		`{"files":[{"name":"a.png","type":"image/png","size":3,"key":"uploads/1-a.png"}]}`, &rec)
	require.Equal(t, http.StatusOK, status)
	status = do(t, http.MethodPost, base+"/files",
		`{"files":[{"name":"b.pdf","type":"application/pdf","size":4,"key":"uploads/2-b.pdf"}]}`, &rec)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "XY12", rec.Code)
	require.Len(t, rec.Files, 2)
	assert.Equal(t, "uploads/1-a.png", rec.Files[0].Key)
	assert.Equal(t, "uploads/2-b.pdf", rec.Files[1].Key)

	// The lowercase prefix addresses the same record.
	var listed storage.NamespaceRecord
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/metadata/XY12/files", "", &listed))
	assert.Equal(t, rec, listed)

	status = do(t, http.MethodDelete, base+"/files", `{"fileKey":"uploads/1-a.png"}`, &rec)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, rec.Files, 1)
	assert.Equal(t, "uploads/2-b.pdf", rec.Files[0].Key)

	status = do(t, http.MethodDelete, base+"/files", `{"fileKey":"uploads/1-a.png"}`, &errRes)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "file not found", errRes.Error)

	status = do(t, http.MethodDelete, base+"/files", `{}`, &errRes)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "missing file key", errRes.Error)

	status = do(t, http.MethodDelete, base+"/files/0", "", &rec)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, rec.Files)

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, base+"/files/0", "", &errRes))
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodDelete, base+"/files/first", "", &errRes))
	assert.Equal(t, "invalid file index", errRes.Error)

	var del DeleteCodeResponse
	assert.Equal(t, http.StatusOK, do(t, http.MethodDelete, base, "", &del))
	assert.True(t, del.Success)
	assert.Equal(t, "Item deleted", del.Message)
	assert.Equal(t, http.StatusOK, do(t, http.MethodDelete, base, "", &del))

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, base+"/files", "", &errRes))
}

func TestHTTPAppendFilesRejects(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty array", `{"files":[]}`, "files must be a non-empty array"},
		{"missing files", `{}`, "files must be a non-empty array"},
		{"not an array", `{"files":"a.png"}`, "invalid request body"},
		{"descriptor without key", `{"files":[{"name":"a.png"}]}`, "file 0 has no key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res errorResponse
			status := do(t, http.MethodPost, srv.URL+"/metaData/ABCD/files", tt.body, &res)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.want, res.Error)
		})
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	body := `{"key":"` + strings.Repeat("k", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/s3/presign-download", strings.NewReader(body))
	rec := httptest.NewRecorder()

	var v PresignDownloadRequest
	err := decodeJSON(rec, req, &v)
	require.Error(t, err)
	assert.Equal(t, "request body too large", err.Error())
}

func TestHTTPHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	var res map[string]string
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/health", "", &res))
	assert.Equal(t, "ok", res["status"])
}

func TestHTTPMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	res, err := http.Get(srv.URL + "/s3/presign-upload")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}
