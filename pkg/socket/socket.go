// Copyright 2023 LiveKit, Inc.
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

// Package socket carries the bridge control channel over a websocket relay
// when the bridge runs standalone, outside a host that provides its own
// messaging layer.
package socket

import (
	"context"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/config"
	"github.com/livekit/vtt-av-bridge/pkg/types"
)

var ErrNotConnected = errors.New("control channel is not connected")

const writeTimeout = 5 * time.Second

// envelope is the relay wire format wrapping a control message with its
// addressing.
type envelope struct {
	Sender     string              `json:"sender"`
	Recipients []string            `json:"recipients,omitempty"`
	Message    types.SocketMessage `json:"message"`
}

type ChannelParams struct {
	Conf   config.SocketConfig
	UserID string
	Logger logger.Logger
}

// Channel implements types.MessageChannel over a websocket relay. The link
// is re-dialed at a fixed interval until Close.
type Channel struct {
	params ChannelParams

	lock    sync.Mutex
	conn    *websocket.Conn
	handler func(msg types.SocketMessage, senderID string)

	closed core.Fuse
}

func NewChannel(params ChannelParams) *Channel {
	return &Channel{params: params}
}

// Start dials the relay and keeps the link alive until Close or context
// cancellation. Blocks; run it on its own goroutine.
func (c *Channel) Start(ctx context.Context) {
	for !c.closed.IsBroken() {
		if err := c.run(ctx); err != nil {
			c.params.Logger.Warnw("control channel disconnected", err, "url", c.params.Conf.URL)
		}
		select {
		case <-ctx.Done():
			return
		case <-c.closed.Watch():
			return
		case <-time.After(c.params.Conf.ReconnectInterval):
		}
	}
}

func (c *Channel) run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.params.Conf.URL, nil)
	if err != nil {
		return errors.Wrap(err, "could not dial control relay")
	}
	c.params.Logger.Infow("control channel connected", "url", c.params.Conf.URL)

	c.lock.Lock()
	c.conn = conn
	c.lock.Unlock()
	defer func() {
		c.lock.Lock()
		c.conn = nil
		c.lock.Unlock()
		_ = conn.Close()
	}()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		c.deliver(env)
	}
}

func (c *Channel) deliver(env envelope) {
	if env.Sender == c.params.UserID {
		return
	}
	if len(env.Recipients) > 0 && !funk.ContainsString(env.Recipients, c.params.UserID) {
		return
	}

	c.lock.Lock()
	handler := c.handler
	c.lock.Unlock()
	if handler == nil {
		c.params.Logger.Debugw("dropping control message; no handler registered",
			"action", env.Message.Action)
		return
	}
	handler(env.Message, env.Sender)
}

// Send delivers a control message through the relay. Empty recipients means
// broadcast.
func (c *Channel) Send(msg types.SocketMessage, recipients []string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(envelope{
		Sender:     c.params.UserID,
		Recipients: recipients,
		Message:    msg,
	})
}

// OnMessage registers the receive handler. Only one handler is held; a
// later registration replaces the earlier one.
func (c *Channel) OnMessage(handler func(msg types.SocketMessage, senderID string)) {
	c.lock.Lock()
	c.handler = handler
	c.lock.Unlock()
}

func (c *Channel) Close() {
	c.closed.Once(func() {
		c.lock.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.lock.Unlock()
	})
}
