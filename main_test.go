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

package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/codedpad/pkg/config"
	"github.com/fawa-io/codedpad/pkg/storage"
)

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "", endpointURL("", true))
	assert.Equal(t, "http://localhost:9000", endpointURL("localhost:9000", false))
	assert.Equal(t, "https://s3.local", endpointURL("s3.local", true))
	assert.Equal(t, "http://localstack:4566", endpointURL("http://localstack:4566", true))
}

func TestNewPresigner(t *testing.T) {
	ctx := context.Background()
	s := config.StorageConfig{
		Driver:          config.DriverMinio,
		Endpoint:        "localhost:9000",
		Region:          "us-east-1",
		Bucket:          "codedpad",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
	}

	p, err := newPresigner(ctx, s)
	require.NoError(t, err)
	assert.IsType(t, &storage.MinioPresigner{}, p)

	noKeys := s
	noKeys.AccessKeyID = ""
	_, err = newPresigner(ctx, noKeys)
	assert.Error(t, err)

	s.Driver = config.DriverS3
	p, err = newPresigner(ctx, s)
	require.NoError(t, err)
	assert.IsType(t, &storage.S3Presigner{}, p)

	s.Driver = "ftp"
	_, err = newPresigner(ctx, s)
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestNewMetadataStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	m, err := newMetadataStore(ctx, config.MetadataConfig{Driver: config.DriverRedis, Addr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &storage.DragonflyStorage{}, m)
	require.NoError(t, m.Close())

	m, err = newMetadataStore(ctx, config.MetadataConfig{
		Driver:   config.DriverDynamoDB,
		Table:    "codedpad-metadata",
		Region:   "us-east-1",
		Endpoint: "http://localhost:8000",
	})
	require.NoError(t, err)
	assert.IsType(t, &storage.DynamoDBStorage{}, m)

	_, err = newMetadataStore(ctx, config.MetadataConfig{Driver: "etcd"})
	assert.ErrorContains(t, err, "unknown metadata driver")
}

func TestPolicyFrom(t *testing.T) {
	p := policyFrom(config.UploadConfig{
		MaxSize:        10,
		AllowedTypes:   []string{"image/png"},
		UploadExpiry:   time.Minute,
		DownloadExpiry: 2 * time.Minute,
	})
	assert.Equal(t, int64(10), p.MaxSize)
	assert.Equal(t, []string{"image/png"}, p.AllowedTypes)
	assert.Equal(t, time.Minute, p.UploadExpiry)
	assert.Equal(t, 2*time.Minute, p.DownloadExpiry)
}
