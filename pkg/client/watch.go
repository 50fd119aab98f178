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
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Event is the state of a code pushed by the server after a change.
type Event struct {
	Code   string           `json:"code"`
	Files  []FileDescriptor `json:"files"`
	Absent bool             `json:"absent,omitempty"`
}

// Watch calls fn with the current state of code and then once per change,
// until ctx is done, the server goes away, or fn returns an error.
func (c *Client) Watch(ctx context.Context, code string, fn func(Event) error) error {
	wsURL, err := c.watchURL(code)
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, res, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if res != nil && res.StatusCode/100 != 2 {
			defer res.Body.Close()
			return &APIError{StatusCode: res.StatusCode, Message: "watch " + code}
		}
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func (c *Client) watchURL(code string) (string, error) {
	u, err := url.Parse(c.baseURL + "/metaData/" + url.PathEscape(code) + "/watch")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("server URL must be http or https")
	}
	return u.String(), nil
}

// Watch keeps the board in sync with the server and calls fn with every
// new snapshot. Entries keep their ids across updates and uploads in
// flight stay on the board.
func (s *Session) Watch(ctx context.Context, fn func(Board) error) error {
	return s.client.Watch(ctx, s.code, func(ev Event) error {
		return fn(s.apply(func(b Board) Board { return b.Sync(ev.Files, newEntryID) }))
	})
}
