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
	"strconv"

	"github.com/fawa-io/codedpad/pkg/apierr"
	"github.com/fawa-io/codedpad/pkg/fwlog"
	"github.com/fawa-io/codedpad/pkg/storage"
)

// Request bodies above this size are rejected.
const maxBodyBytes = 1 << 20

type PresignUploadRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

type PresignDownloadRequest struct {
	Key string `json:"key"`
}

type PresignDownloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

type AppendFilesRequest struct {
	Code  string                   `json:"code,omitempty"`
	Files []storage.FileDescriptor `json:"files"`
}

type ListFilesRequest struct {
	Code string `json:"code"`
}

type RemoveFileRequest struct {
	Code    string `json:"code,omitempty"`
	FileKey string `json:"fileKey"`
}

// RemoveFileAtRequest is only used over RPC; the JSON route carries the
// index in its path.
type RemoveFileAtRequest struct {
	Code  string `json:"code"`
	Index int    `json:"index"`
}

type DeleteCodeRequest struct {
	Code string `json:"code"`
}

type DeleteCodeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type httpHandler struct {
	svc *Service
}

// NewHTTPHandler serves the JSON routes of svc. The metadata routes answer
// under both /metaData and /metadata.
func NewHTTPHandler(svc *Service, m *Metrics) http.Handler {
	h := &httpHandler{svc: svc}
	mux := http.NewServeMux()
	handle := func(pattern, route string, fn http.HandlerFunc) {
		mux.Handle(pattern, m.instrument(route, fn))
	}

	handle("POST /s3/presign-upload", "presign_upload", h.presignUpload)
	handle("POST /s3/presign-download", "presign_download", h.presignDownload)
	for _, prefix := range []string{"/metaData", "/metadata"} {
		handle("POST "+prefix+"/{code}/files", "append_files", h.appendFiles)
		handle("GET "+prefix+"/{code}/files", "list_files", h.listFiles)
		handle("DELETE "+prefix+"/{code}/files", "remove_file", h.removeFile)
		handle("DELETE "+prefix+"/{code}/files/{index}", "remove_file_at", h.removeFileAt)
		handle("DELETE "+prefix+"/{code}", "delete_code", h.deleteCode)
		handle("GET "+prefix+"/{code}/watch", "watch", h.watch)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (h *httpHandler) presignUpload(w http.ResponseWriter, r *http.Request) {
	var req PresignUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ticket, err := h.svc.IssueUploadURL(r.Context(), req.FileName, req.FileType, req.FileSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *httpHandler) presignDownload(w http.ResponseWriter, r *http.Request) {
	var req PresignDownloadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	downloadURL, err := h.svc.IssueDownloadURL(r.Context(), req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PresignDownloadResponse{DownloadURL: downloadURL})
}

func (h *httpHandler) appendFiles(w http.ResponseWriter, r *http.Request) {
	var req AppendFilesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.svc.AppendFiles(r.Context(), r.PathValue("code"), req.Files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *httpHandler) listFiles(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.ListFiles(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *httpHandler) removeFile(w http.ResponseWriter, r *http.Request) {
	var req RemoveFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.svc.RemoveFile(r.Context(), r.PathValue("code"), req.FileKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *httpHandler) removeFileAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, apierr.Validation("invalid file index"))
		return
	}
	rec, err := h.svc.RemoveFileAt(r.Context(), r.PathValue("code"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *httpHandler) deleteCode(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRecord(r.Context(), r.PathValue("code")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteCodeResponse{Success: true, Message: "Item deleted"})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apierr.Validation("request body too large")
		}
		return apierr.Validation("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fwlog.Warnf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apierr.HTTPStatus(err), errorResponse{Error: apierr.Message(err)})
}
