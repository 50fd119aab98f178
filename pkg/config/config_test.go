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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDefaults(t *testing.T) {
	v := newViper()
	v.AddConfigPath(t.TempDir())

	c, err := read(v)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4000", c.Addr)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, []string{"*"}, c.CORSOrigins)
	assert.Equal(t, DriverMinio, c.Storage.Driver)
	assert.Equal(t, DriverRedis, c.Metadata.Driver)
	assert.Equal(t, int64(50*1024*1024), c.Upload.MaxSize)
	assert.Equal(t, []string{"image/png", "image/jpeg", "application/pdf"}, c.Upload.AllowedTypes)
	assert.Equal(t, 5*time.Minute, c.Upload.UploadExpiry)
	assert.Equal(t, 10*time.Minute, c.Upload.DownloadExpiry)
	assert.Zero(t, c.Metadata.TTL)
}

func TestReadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: 0.0.0.0:8080
logLevel: debug
storage:
  driver: s3
  bucket: shared-files
  region: eu-central-1
metadata:
  driver: dynamodb
  table: files-by-code
  ttl: 25m
upload:
  allowedTypes: [image/png]
  uploadExpiry: 2m
`), 0o600))
	t.Setenv("CODEDPAD_STORAGE_BUCKET", "from-env")
	t.Setenv("CODEDPAD_UPLOAD_MAXSIZE", "1024")

	v := newViper()
	v.SetConfigFile(path)
	c, err := read(v)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", c.Addr)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, DriverS3, c.Storage.Driver)
	assert.Equal(t, "from-env", c.Storage.Bucket)
	assert.Equal(t, "eu-central-1", c.Storage.Region)
	assert.Equal(t, DriverDynamoDB, c.Metadata.Driver)
	assert.Equal(t, "files-by-code", c.Metadata.Table)
	assert.Equal(t, 25*time.Minute, c.Metadata.TTL)
	assert.Equal(t, int64(1024), c.Upload.MaxSize)
	assert.Equal(t, []string{"image/png"}, c.Upload.AllowedTypes)
	assert.Equal(t, 2*time.Minute, c.Upload.UploadExpiry)
	assert.Equal(t, 10*time.Minute, c.Upload.DownloadExpiry)
}

func TestReadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: ftp\n"), 0o600))

	v := newViper()
	v.SetConfigFile(path)
	_, err := read(v)
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestValidate(t *testing.T) {
	v := newViper()
	v.AddConfigPath(t.TempDir())
	base, err := read(v)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"no addr", func(c *Config) { c.Addr = "" }, "addr must be set"},
		{"no bucket", func(c *Config) { c.Storage.Bucket = "" }, "storage.bucket"},
		{"unknown metadata driver", func(c *Config) { c.Metadata.Driver = "etcd" }, "unknown metadata driver"},
		{"redis without addr", func(c *Config) { c.Metadata.Addr = "" }, "metadata.addr"},
		{"dynamodb without table", func(c *Config) {
			c.Metadata.Driver = DriverDynamoDB
			c.Metadata.Table = ""
		}, "metadata.table"},
		{"negative ttl", func(c *Config) { c.Metadata.TTL = -time.Second }, "metadata.ttl"},
		{"zero max size", func(c *Config) { c.Upload.MaxSize = 0 }, "upload.maxSize"},
		{"no types", func(c *Config) { c.Upload.AllowedTypes = nil }, "upload.allowedTypes"},
		{"expiry too long", func(c *Config) { c.Upload.DownloadExpiry = 8 * 24 * time.Hour }, "upload.downloadExpiry"},
		{"expiry too short", func(c *Config) { c.Upload.UploadExpiry = time.Millisecond }, "upload.uploadExpiry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.Upload.AllowedTypes = append([]string(nil), base.Upload.AllowedTypes...)
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
