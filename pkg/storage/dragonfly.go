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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fawa-io/codedpad/pkg/fwlog"
)

// A record is two keys sharing one hash tag: a marker that exists for as
// long as the record does, and the list of JSON encoded descriptors. Redis
// drops empty lists, so the marker is what tells an empty record apart
// from an absent one.
const (
	markerPrefix = "codedpad:code:"
	filesPrefix  = "codedpad:files:"

	// tombstone never decodes as a descriptor.
	tombstone = "\x00removed"
)

func markerKey(code string) string {
	return markerPrefix + "{" + code + "}"
}

func filesKey(code string) string {
	return filesPrefix + "{" + code + "}"
}

// DragonflyOptions configures the connection to Dragonfly/Redis.
type DragonflyOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL expires a record after its last append. Zero keeps it forever.
	TTL time.Duration
}

// DragonflyStorage implements MetadataStore using Dragonfly/Redis lists.
type DragonflyStorage struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewDragonflyStorage connects to Dragonfly/Redis and checks the connection.
func NewDragonflyStorage(ctx context.Context, opts DragonflyOptions) (*DragonflyStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Addr, err)
	}
	return &DragonflyStorage{client: client, ttl: opts.TTL}, nil
}

// AppendFiles implements the MetadataStore interface. RPUSH is the append
// primitive, so concurrent appends to one code never lose entries.
func (d *DragonflyStorage) AppendFiles(ctx context.Context, code string, files []FileDescriptor) (*NamespaceRecord, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to append")
	}
	values := make([]any, 0, len(files))
	for _, f := range files {
		b, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		values = append(values, string(b))
	}

	var all *redis.StringSliceCmd
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, markerKey(code), code, d.ttl)
		pipe.RPush(ctx, filesKey(code), values...)
		if d.ttl > 0 {
			pipe.Expire(ctx, filesKey(code), d.ttl)
		}
		all = pipe.LRange(ctx, filesKey(code), 0, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeRecord(code, all.Val())
}

// ListFiles implements the MetadataStore interface.
func (d *DragonflyStorage) ListFiles(ctx context.Context, code string) (*NamespaceRecord, error) {
	vals, err := d.client.LRange(ctx, filesKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		n, err := d.client.Exists(ctx, markerKey(code)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrNotFound
		}
	}
	return decodeRecord(code, vals)
}

// RemoveFileAt implements the MetadataStore interface. The element is
// overwritten with a tombstone and the tombstone removed in one
// transaction, so the position is resolved and removed atomically.
func (d *DragonflyStorage) RemoveFileAt(ctx context.Context, code string, index int) (*NamespaceRecord, error) {
	if index < 0 {
		return nil, ErrNotFound
	}

	var all *redis.StringSliceCmd
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LSet(ctx, filesKey(code), int64(index), tombstone)
		pipe.LRem(ctx, filesKey(code), 1, tombstone)
		all = pipe.LRange(ctx, filesKey(code), 0, -1)
		return nil
	})
	if err != nil {
		if isMissingElement(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeRecord(code, all.Val())
}

// RemoveFile implements the MetadataStore interface. LREM matches the
// stored value, not a position: if the element moved, it is still the one
// removed; if someone else removed it first, nothing is.
func (d *DragonflyStorage) RemoveFile(ctx context.Context, code, key string) (*NamespaceRecord, error) {
	vals, err := d.client.LRange(ctx, filesKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	raw, ok := findRaw(vals, key)
	if !ok {
		return nil, ErrNotFound
	}

	var (
		removed *redis.IntCmd
		all     *redis.StringSliceCmd
	)
	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.LRem(ctx, filesKey(code), 1, raw)
		all = pipe.LRange(ctx, filesKey(code), 0, -1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if removed.Val() == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(code, all.Val())
}

// DeleteRecord implements the MetadataStore interface.
func (d *DragonflyStorage) DeleteRecord(ctx context.Context, code string) error {
	return d.client.Del(ctx, markerKey(code), filesKey(code)).Err()
}

// Close closes storage connections
func (d *DragonflyStorage) Close() error {
	if client, ok := d.client.(*redis.Client); ok {
		fwlog.Info("Closing Redis/Dragonfly connection...")
		return client.Close()
	}
	if client, ok := d.client.(*redis.ClusterClient); ok {
		fwlog.Info("Closing Redis/Dragonfly cluster connection...")
		return client.Close()
	}
	return nil
}

func findRaw(vals []string, key string) (string, bool) {
	for _, v := range vals {
		var f FileDescriptor
		if err := json.Unmarshal([]byte(v), &f); err != nil {
			continue
		}
		if f.Key == key {
			return v, true
		}
	}
	return "", false
}

func decodeRecord(code string, vals []string) (*NamespaceRecord, error) {
	rec := &NamespaceRecord{Code: code, Files: make([]FileDescriptor, 0, len(vals))}
	for _, v := range vals {
		var f FileDescriptor
		if err := json.Unmarshal([]byte(v), &f); err != nil {
			return nil, fmt.Errorf("decode file descriptor: %w", err)
		}
		rec.Files = append(rec.Files, f)
	}
	return rec, nil
}

// isMissingElement reports the LSET failures for an absent list or an
// index past its end.
func isMissingElement(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "index out of range") || strings.Contains(msg, "no such key")
}
