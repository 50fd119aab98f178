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

import "slices"

type Status string

const (
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusError     Status = "error"
)

// Entry is one file as the client sees it. ID is local to the client; Key
// is only known once the server issued an upload URL.
type Entry struct {
	ID     string
	Name   string
	Type   string
	Size   int64
	Key    string
	Status Status
	Err    string
}

// Board is an immutable, ordered set of entries. Every transition returns
// a new Board and leaves the receiver untouched.
type Board struct {
	entries []Entry
}

func NewBoard(entries ...Entry) Board {
	return Board{entries: slices.Clone(entries)}
}

func (b Board) Len() int { return len(b.entries) }

// Entries returns a copy of the entries in order.
func (b Board) Entries() []Entry {
	return slices.Clone(b.entries)
}

func (b Board) Get(id string) (Entry, bool) {
	i := b.index(id)
	if i < 0 {
		return Entry{}, false
	}
	return b.entries[i], true
}

// Add appends e.
func (b Board) Add(e Entry) Board {
	next := make([]Entry, 0, len(b.entries)+1)
	next = append(next, b.entries...)
	return Board{entries: append(next, e)}
}

// Update applies fn to the entry with id. Unknown ids leave the board as is.
func (b Board) Update(id string, fn func(Entry) Entry) Board {
	i := b.index(id)
	if i < 0 {
		return b
	}
	next := slices.Clone(b.entries)
	next[i] = fn(next[i])
	next[i].ID = id
	return Board{entries: next}
}

func (b Board) Remove(id string) Board {
	i := b.index(id)
	if i < 0 {
		return b
	}
	return Board{entries: slices.Delete(slices.Clone(b.entries), i, i+1)}
}

// Sync brings the board in line with files, the server's list. Entries
// whose key is on the server keep their ids. Entries still uploading, or
// failed before being recorded, stay after the server's files.
func (b Board) Sync(files []FileDescriptor, newID func() string) Board {
	onServer := make(map[string]bool, len(files))
	for _, f := range files {
		onServer[f.Key] = true
	}
	known := make(map[string][]string)
	var pending []Entry
	for _, e := range b.entries {
		switch {
		case e.Key != "" && (e.Status == StatusUploaded || onServer[e.Key]):
			known[e.Key] = append(known[e.Key], e.ID)
		case e.Status != StatusUploaded:
			pending = append(pending, e)
		}
	}

	next := make([]Entry, 0, len(files)+len(pending))
	for _, f := range files {
		var id string
		if ids := known[f.Key]; len(ids) > 0 {
			id, known[f.Key] = ids[0], ids[1:]
		} else {
			id = newID()
		}
		next = append(next, entryFromFile(id, f))
	}
	return Board{entries: append(next, pending...)}
}

// findKey returns the first entry holding key.
func (b Board) findKey(key string) (Entry, bool) {
	i := slices.IndexFunc(b.entries, func(e Entry) bool { return e.Key == key })
	if i < 0 {
		return Entry{}, false
	}
	return b.entries[i], true
}

func (b Board) index(id string) int {
	return slices.IndexFunc(b.entries, func(e Entry) bool { return e.ID == id })
}

// entryFromFile describes a file already recorded on the server.
func entryFromFile(id string, f FileDescriptor) Entry {
	return Entry{
		ID:     id,
		Name:   f.Name,
		Type:   f.Type,
		Size:   f.Size,
		Key:    f.Key,
		Status: StatusUploaded,
	}
}
