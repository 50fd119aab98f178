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
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fawa-io/codedpad/pkg/apierr"
	"github.com/fawa-io/codedpad/pkg/fwlog"
	"github.com/fawa-io/codedpad/pkg/storage"
)

const (
	watchBuffer       = 16
	watchPingInterval = 30 * time.Second
	watchWriteTimeout = 10 * time.Second
)

// Event carries the full file list of a code after a change. Absent is set
// once the code has been deleted, or when it never existed.
type Event struct {
	Code   string                   `json:"code"`
	Files  []storage.FileDescriptor `json:"files"`
	Absent bool                     `json:"absent,omitempty"`
}

// Hub fans change events out to the watchers of each code. It only sees
// changes made through this process.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	closed bool
	active sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel receiving the events of code, and a function
// ending the subscription. The channel is closed when the subscription
// ends or the hub is closed.
func (h *Hub) Subscribe(code string) (<-chan Event, func()) {
	ch := make(chan Event, watchBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs[code] == nil {
		h.subs[code] = make(map[chan Event]struct{})
	}
	h.subs[code][ch] = struct{}{}
	h.active.Add(1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			defer h.active.Done()
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[code][ch]; !ok {
				return
			}
			delete(h.subs[code], ch)
			if len(h.subs[code]) == 0 {
				delete(h.subs, code)
			}
			close(ch)
		})
	}
}

// Publish delivers ev to every watcher of ev.Code. A watcher whose buffer
// is full misses the event; the next one carries the full list again.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.Code] {
		select {
		case ch <- ev:
		default:
			fwlog.Debugf("Dropping event for a slow watcher of code %q", ev.Code)
		}
	}
}

// Watchers returns the number of subscriptions on code.
func (h *Hub) Watchers(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[code])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for code, chans := range h.subs {
		for ch := range chans {
			close(ch)
		}
		delete(h.subs, code)
	}
}

// Drain closes the hub and waits until every subscription has been
// cancelled, or until ctx is done.
func (h *Hub) Drain(ctx context.Context) error {
	h.Close()
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var upgrader = websocket.Upgrader{
	// Origins are enforced by the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// watch streams the record of a code over a WebSocket: first the current
// state, then one event per change.
func (h *httpHandler) watch(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	events, cancel := h.svc.Watch(code)
	defer cancel()

	initial := Event{Code: code, Files: []storage.FileDescriptor{}}
	rec, err := h.svc.ListFiles(r.Context(), code)
	switch {
	case err == nil:
		initial.Files = rec.Files
	case apierr.KindOf(err) == apierr.KindNotFound:
		initial.Absent = true
	default:
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fwlog.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			fwlog.Debugf("WebSocket close failed: %v", err)
		}
	}()
	fwlog.Debugf("Watcher joined code %q", code)

	// Reading is what processes pongs and the peer's close frame.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := writeEvent(conn, initial); err != nil {
		fwlog.Warnf("Failed to send initial state: %v", err)
		return
	}

	ticker := time.NewTicker(watchPingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(watchWriteTimeout))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					fwlog.Warnf("WebSocket write failed: %v", err)
				}
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteTimeout)); err != nil {
				return
			}
		case <-gone:
			fwlog.Debugf("Watcher left code %q", code)
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}
