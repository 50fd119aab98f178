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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoardTransitionsAreImmutable(t *testing.T) {
	empty := NewBoard()
	one := empty.Add(Entry{ID: "a", Name: "a.png", Status: StatusUploading})
	two := one.Add(Entry{ID: "b", Name: "b.pdf", Status: StatusUploading})

	assert.Zero(t, empty.Len())
	assert.Equal(t, 1, one.Len())
	assert.Equal(t, 2, two.Len())

	updated := two.Update("a", func(e Entry) Entry {
		e.Status = StatusUploaded
		e.Key = "uploads/1-a.png"
		return e
	})
	got, ok := updated.Get("a")
	assert.True(t, ok)
	assert.Equal(t, StatusUploaded, got.Status)
	assert.Equal(t, "uploads/1-a.png", got.Key)

	before, _ := two.Get("a")
	assert.Equal(t, StatusUploading, before.Status, "the original board is unchanged")

	removed := updated.Remove("a")
	assert.Equal(t, []string{"b"}, ids(removed))
	assert.Equal(t, []string{"a", "b"}, ids(updated))

	synced := updated.Sync(nil, func() string { return "z" })
	assert.Equal(t, []string{"b"}, ids(synced))
	assert.Equal(t, []string{"a", "b"}, ids(updated))
}

func sequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func TestBoardSync(t *testing.T) {
	b := NewBoard(
		Entry{ID: "up", Name: "a.png", Key: "k-a", Status: StatusUploaded},
		Entry{ID: "busy", Name: "b.png", Status: StatusUploading},
		Entry{ID: "failed", Name: "c.png", Key: "k-c", Status: StatusError, Err: "put object: 500"},
		Entry{ID: "gone", Name: "d.png", Key: "k-d", Status: StatusUploaded},
	)
	server := []FileDescriptor{
		{Name: "a.png", Key: "k-a"},
		{Name: "e.png", Key: "k-e"},
	}

	synced := b.Sync(server, sequence("new"))
	assert.Equal(t, []string{"up", "new1", "busy", "failed"}, ids(synced))
	e, _ := synced.Get("new1")
	assert.Equal(t, StatusUploaded, e.Status)
	assert.Equal(t, "e.png", e.Name)
	assert.Equal(t, 4, b.Len(), "the original board is unchanged")
}

func TestBoardSyncAdoptsRecordedFailures(t *testing.T) {
	// The record call failed on the client but reached the server.
	b := NewBoard(Entry{ID: "late", Name: "a.png", Key: "k-a", Status: StatusError, Err: "record file: timeout"})
	synced := b.Sync([]FileDescriptor{{Name: "a.png", Key: "k-a"}}, sequence("new"))

	assert.Equal(t, []string{"late"}, ids(synced))
	e, _ := synced.Get("late")
	assert.Equal(t, StatusUploaded, e.Status)
	assert.Empty(t, e.Err)
}

func TestBoardSyncDuplicateKeys(t *testing.T) {
	b := NewBoard(Entry{ID: "one", Key: "k", Status: StatusUploaded})
	synced := b.Sync([]FileDescriptor{{Key: "k"}, {Key: "k"}}, sequence("new"))
	assert.Equal(t, []string{"one", "new1"}, ids(synced))
}

func TestBoardUnknownIDs(t *testing.T) {
	b := NewBoard(Entry{ID: "a"})
	assert.Equal(t, b, b.Remove("x"))
	assert.Equal(t, b, b.Update("x", func(e Entry) Entry { e.Name = "changed"; return e }))
	_, ok := b.Get("x")
	assert.False(t, ok)
}

func TestBoardUpdateKeepsID(t *testing.T) {
	b := NewBoard(Entry{ID: "a"}).Update("a", func(e Entry) Entry {
		e.ID = "other"
		return e
	})
	_, ok := b.Get("a")
	assert.True(t, ok)
}

func TestBoardEntriesIsACopy(t *testing.T) {
	b := NewBoard(Entry{ID: "a", Name: "a.png"})
	entries := b.Entries()
	entries[0].Name = "mutated"
	got, _ := b.Get("a")
	assert.Equal(t, "a.png", got.Name)
}

func ids(b Board) []string {
	var out []string
	for _, e := range b.Entries() {
		out = append(out, e.ID)
	}
	return out
}
