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
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/fawa-io/codedpad/pkg/apierr"
	"github.com/fawa-io/codedpad/pkg/storage"
)

// ShareServiceName is the fully-qualified name of the share service.
const ShareServiceName = "codedpad.share.v1.ShareService"

const (
	PresignUploadProcedure   = "/codedpad.share.v1.ShareService/PresignUpload"
	PresignDownloadProcedure = "/codedpad.share.v1.ShareService/PresignDownload"
	AppendFilesProcedure     = "/codedpad.share.v1.ShareService/AppendFiles"
	ListFilesProcedure       = "/codedpad.share.v1.ShareService/ListFiles"
	RemoveFileProcedure      = "/codedpad.share.v1.ShareService/RemoveFile"
	RemoveFileAtProcedure    = "/codedpad.share.v1.ShareService/RemoveFileAt"
	DeleteCodeProcedure      = "/codedpad.share.v1.ShareService/DeleteCode"
)

// jsonCodec marshals plain Go structs with encoding/json.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// WithJSONCodec is the codec option both ends of the share service need.
func WithJSONCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}

type rpcHandler struct {
	svc *Service
}

// NewRPCHandler builds an HTTP handler serving the share service over the
// Connect protocol. It returns the path on which to mount the handler and
// the handler itself.
func NewRPCHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	h := &rpcHandler{svc: svc}
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)

	presignUpload := connect.NewUnaryHandler(PresignUploadProcedure, h.PresignUpload, opts...)
	presignDownload := connect.NewUnaryHandler(PresignDownloadProcedure, h.PresignDownload, opts...)
	appendFiles := connect.NewUnaryHandler(AppendFilesProcedure, h.AppendFiles, opts...)
	listFiles := connect.NewUnaryHandler(ListFilesProcedure, h.ListFiles, opts...)
	removeFile := connect.NewUnaryHandler(RemoveFileProcedure, h.RemoveFile, opts...)
	removeFileAt := connect.NewUnaryHandler(RemoveFileAtProcedure, h.RemoveFileAt, opts...)
	deleteCode := connect.NewUnaryHandler(DeleteCodeProcedure, h.DeleteCode, opts...)

	return "/" + ShareServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PresignUploadProcedure:
			presignUpload.ServeHTTP(w, r)
		case PresignDownloadProcedure:
			presignDownload.ServeHTTP(w, r)
		case AppendFilesProcedure:
			appendFiles.ServeHTTP(w, r)
		case ListFilesProcedure:
			listFiles.ServeHTTP(w, r)
		case RemoveFileProcedure:
			removeFile.ServeHTTP(w, r)
		case RemoveFileAtProcedure:
			removeFileAt.ServeHTTP(w, r)
		case DeleteCodeProcedure:
			deleteCode.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func (h *rpcHandler) PresignUpload(
	ctx context.Context,
	req *connect.Request[PresignUploadRequest],
) (*connect.Response[UploadTicket], error) {
	ticket, err := h.svc.IssueUploadURL(ctx, req.Msg.FileName, req.Msg.FileType, req.Msg.FileSize)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(ticket), nil
}

func (h *rpcHandler) PresignDownload(
	ctx context.Context,
	req *connect.Request[PresignDownloadRequest],
) (*connect.Response[PresignDownloadResponse], error) {
	downloadURL, err := h.svc.IssueDownloadURL(ctx, req.Msg.Key)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&PresignDownloadResponse{DownloadURL: downloadURL}), nil
}

func (h *rpcHandler) AppendFiles(
	ctx context.Context,
	req *connect.Request[AppendFilesRequest],
) (*connect.Response[storage.NamespaceRecord], error) {
	rec, err := h.svc.AppendFiles(ctx, req.Msg.Code, req.Msg.Files)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(rec), nil
}

func (h *rpcHandler) ListFiles(
	ctx context.Context,
	req *connect.Request[ListFilesRequest],
) (*connect.Response[storage.NamespaceRecord], error) {
	rec, err := h.svc.ListFiles(ctx, req.Msg.Code)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(rec), nil
}

func (h *rpcHandler) RemoveFile(
	ctx context.Context,
	req *connect.Request[RemoveFileRequest],
) (*connect.Response[storage.NamespaceRecord], error) {
	rec, err := h.svc.RemoveFile(ctx, req.Msg.Code, req.Msg.FileKey)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(rec), nil
}

func (h *rpcHandler) RemoveFileAt(
	ctx context.Context,
	req *connect.Request[RemoveFileAtRequest],
) (*connect.Response[storage.NamespaceRecord], error) {
	rec, err := h.svc.RemoveFileAt(ctx, req.Msg.Code, req.Msg.Index)
	if err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(rec), nil
}

func (h *rpcHandler) DeleteCode(
	ctx context.Context,
	req *connect.Request[DeleteCodeRequest],
) (*connect.Response[DeleteCodeResponse], error) {
	if err := h.svc.DeleteRecord(ctx, req.Msg.Code); err != nil {
		return nil, rpcError(err)
	}
	return connect.NewResponse(&DeleteCodeResponse{Success: true, Message: "Item deleted"}), nil
}

// rpcError converts a service error into a Connect error. Upstream causes
// are replaced by their public message.
func rpcError(err error) error {
	msg := errors.New(apierr.Message(err))
	switch apierr.KindOf(err) {
	case apierr.KindValidation:
		return connect.NewError(connect.CodeInvalidArgument, msg)
	case apierr.KindNotFound:
		return connect.NewError(connect.CodeNotFound, msg)
	default:
		return connect.NewError(connect.CodeInternal, msg)
	}
}

// RPCClient calls the share service over the Connect protocol.
type RPCClient struct {
	presignUpload   *connect.Client[PresignUploadRequest, UploadTicket]
	presignDownload *connect.Client[PresignDownloadRequest, PresignDownloadResponse]
	appendFiles     *connect.Client[AppendFilesRequest, storage.NamespaceRecord]
	listFiles       *connect.Client[ListFilesRequest, storage.NamespaceRecord]
	removeFile      *connect.Client[RemoveFileRequest, storage.NamespaceRecord]
	removeFileAt    *connect.Client[RemoveFileAtRequest, storage.NamespaceRecord]
	deleteCode      *connect.Client[DeleteCodeRequest, DeleteCodeResponse]
}

// NewRPCClient constructs a client for the share service at baseURL, for
// example http://localhost:4000.
func NewRPCClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RPCClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSONCodec()}, opts...)
	return &RPCClient{
		presignUpload: connect.NewClient[PresignUploadRequest, UploadTicket](
			httpClient, baseURL+PresignUploadProcedure, opts...),
		presignDownload: connect.NewClient[PresignDownloadRequest, PresignDownloadResponse](
			httpClient, baseURL+PresignDownloadProcedure, opts...),
		appendFiles: connect.NewClient[AppendFilesRequest, storage.NamespaceRecord](
			httpClient, baseURL+AppendFilesProcedure, opts...),
		listFiles: connect.NewClient[ListFilesRequest, storage.NamespaceRecord](
			httpClient, baseURL+ListFilesProcedure, opts...),
		removeFile: connect.NewClient[RemoveFileRequest, storage.NamespaceRecord](
			httpClient, baseURL+RemoveFileProcedure, opts...),
		removeFileAt: connect.NewClient[RemoveFileAtRequest, storage.NamespaceRecord](
			httpClient, baseURL+RemoveFileAtProcedure, opts...),
		deleteCode: connect.NewClient[DeleteCodeRequest, DeleteCodeResponse](
			httpClient, baseURL+DeleteCodeProcedure, opts...),
	}
}

func (c *RPCClient) PresignUpload(ctx context.Context, req *PresignUploadRequest) (*UploadTicket, error) {
	res, err := c.presignUpload.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *RPCClient) PresignDownload(ctx context.Context, req *PresignDownloadRequest) (*PresignDownloadResponse, error) {
	res, err := c.presignDownload.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *RPCClient) AppendFiles(ctx context.Context, req *AppendFilesRequest) (*storage.NamespaceRecord, error) {
	res, err := c.appendFiles.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *RPCClient) ListFiles(ctx context.Context, req *ListFilesRequest) (*storage.NamespaceRecord, error) {
	res, err := c.listFiles.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *RPCClient) RemoveFile(ctx context.Context, req *RemoveFileRequest) (*storage.NamespaceRecord, error) {
	res, err := c.removeFile.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *RPCClient) RemoveFileAt(ctx context.Context, req *RemoveFileAtRequest) (*storage.NamespaceRecord, error) {
	res, err := c.removeFileAt.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *RPCClient) DeleteCode(ctx context.Context, req *DeleteCodeRequest) (*DeleteCodeResponse, error) {
	res, err := c.deleteCode.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
