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
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fawa-io/codedpad/pkg/fwlog"
)

// MinioOptions holds the connection settings for a MinIO (or any S3
// compatible) endpoint.
type MinioOptions struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// Region pins the bucket region. When set, signing never has to ask
	// the server for the bucket location.
	Region string
	UseSSL bool
}

// MinioPresigner implements ObjectPresigner on a MinIO client.
type MinioPresigner struct {
	client     *minio.Client
	bucketName string
}

// NewMinioPresigner creates the MinIO client. It does not contact the server.
func NewMinioPresigner(opts MinioOptions) (*MinioPresigner, error) {
	if opts.Endpoint == "" || opts.AccessKeyID == "" || opts.SecretAccessKey == "" || opts.Bucket == "" {
		return nil, errors.New("minio endpoint, credentials and bucket must be set")
	}

	fwlog.Infof("Initializing MinIO: endpoint=%s bucket=%s ssl=%v", opts.Endpoint, opts.Bucket, opts.UseSSL)

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	return &MinioPresigner{client: client, bucketName: opts.Bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *MinioPresigner) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if MinIO bucket '%s' exists: %w", m.bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create MinIO bucket '%s': %w", m.bucketName, err)
	}
	fwlog.Infof("Successfully created MinIO bucket: %s", m.bucketName)
	return nil
}

// PresignUpload implements the ObjectPresigner interface. Content-Type is
// part of the signature, so the PUT must declare the same type.
func (m *MinioPresigner) PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	headers := make(http.Header)
	headers.Set("Content-Type", contentType)

	u, err := m.client.PresignHeader(ctx, http.MethodPut, m.bucketName, key, expires, nil, headers)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// PresignDownload implements the ObjectPresigner interface.
func (m *MinioPresigner) PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error) {
	params := make(url.Values)
	params.Set("response-content-disposition", "attachment")

	u, err := m.client.PresignedGetObject(ctx, m.bucketName, key, expires, params)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
