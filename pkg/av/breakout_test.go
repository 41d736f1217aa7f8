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

package av

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/types"
	"github.com/livekit/vtt-av-bridge/pkg/utils"
)

func newBreakoutFixture(t *testing.T) (*sessionFixture, *BreakoutManager) {
	t.Helper()

	f := newSessionFixture(t)
	bm := NewBreakoutManager(BreakoutManagerParams{
		Host:    f.host.Context,
		Session: f.manager,
		Logger:  logger.GetLogger(),
	})
	return f, bm
}

func TestBreakout(t *testing.T) {
	ctx := context.Background()

	t.Run("same room is a no-op", func(t *testing.T) {
		f, bm := newBreakoutFixture(t)
		f.manager.SetBreakoutRoom("B-1")

		bm.Breakout(ctx, "B-1")
		assert.Empty(t, f.session.ConnectCalls)
	})

	t.Run("new room reconnects into it", func(t *testing.T) {
		f, bm := newBreakoutFixture(t)

		bm.Breakout(ctx, "B-1")
		assert.Equal(t, "B-1", f.manager.BreakoutRoom())
		assert.Equal(t, "B-1", f.manager.CurrentRoom())
		assert.Equal(t, types.ConnectionStateConnected, f.manager.State())
	})

	t.Run("empty room returns to the primary meeting", func(t *testing.T) {
		f, bm := newBreakoutFixture(t)
		bm.Breakout(ctx, "B-1")

		bm.Breakout(ctx, "")
		assert.Equal(t, "", f.manager.BreakoutRoom())
		assert.Equal(t, "primary-room", f.manager.CurrentRoom())
	})
}

func TestBreakoutGMOperations(t *testing.T) {
	t.Run("start breakout persists and messages the target user", func(t *testing.T) {
		f, bm := newBreakoutFixture(t)
		bm.StartBreakout("u2")

		persisted := f.host.Settings.GetString(types.ScopeClient, breakoutSettingKey("u2"))
		assert.True(t, strings.HasPrefix(persisted, utils.BreakoutPrefix))

		require.Len(t, f.host.Messages.Sent, 1)
		sent := f.host.Messages.Sent[0]
		assert.Equal(t, types.MessageActionBreakout, sent.Msg.Action)
		assert.Equal(t, "u2", sent.Msg.UserID)
		require.NotNil(t, sent.Msg.BreakoutRoom)
		assert.Equal(t, persisted, *sent.Msg.BreakoutRoom)
		assert.Equal(t, []string{"u2"}, sent.Recipients)
	})

	t.Run("remove from breakout clears the assignment", func(t *testing.T) {
		f, bm := newBreakoutFixture(t)
		f.host.Settings.Set(types.ScopeClient, breakoutSettingKey("u2"), "B-1")

		bm.RemoveFromBreakout("u2")
		assert.Equal(t, "", f.host.Settings.GetString(types.ScopeClient, breakoutSettingKey("u2")))

		require.Len(t, f.host.Messages.Sent, 1)
		assert.Nil(t, f.host.Messages.Sent[0].Msg.BreakoutRoom)
	})

	t.Run("pull requires being in a breakout", func(t *testing.T) {
		f, bm := newBreakoutFixture(t)
		bm.PullToBreakout("u2")
		assert.Empty(t, f.host.Messages.Sent)

		f.manager.SetBreakoutRoom("B-1")
		bm.PullToBreakout("u2")
		require.Len(t, f.host.Messages.Sent, 1)
		require.NotNil(t, f.host.Messages.Sent[0].Msg.BreakoutRoom)
		assert.Equal(t, "B-1", *f.host.Messages.Sent[0].Msg.BreakoutRoom)
	})

	t.Run("end all breakouts broadcasts and recalls the GM", func(t *testing.T) {
		f, bm := newBreakoutFixture(t)
		f.manager.SetBreakoutRoom("B-1")

		bm.EndAllBreakouts()
		require.Len(t, f.host.Messages.Sent, 1)
		sent := f.host.Messages.Sent[0]
		assert.Empty(t, sent.Recipients)
		assert.Nil(t, sent.Msg.BreakoutRoom)
		assert.Equal(t, "", f.manager.BreakoutRoom())
	})

	t.Run("non-GM operations are dropped", func(t *testing.T) {
		f, bm := newBreakoutFixture(t)
		f.host.Users.Add(types.UserInfo{ID: "gm", Name: "GM", Active: true, IsGM: false})

		bm.StartBreakout("u2")
		bm.EndAllBreakouts()
		assert.Empty(t, f.host.Messages.Sent)
		assert.Equal(t, "", f.host.Settings.GetString(types.ScopeClient, breakoutSettingKey("u2")))
	})
}

func TestBreakoutMessages(t *testing.T) {
	room := "B-1"

	t.Run("GM breakout message moves this client", func(t *testing.T) {
		f, _ := newBreakoutFixture(t)
		f.host.Users.Add(types.UserInfo{ID: "u9", Name: "u9", Active: true, IsGM: true})

		f.host.Messages.Deliver(types.SocketMessage{
			Action:       types.MessageActionBreakout,
			UserID:       "gm",
			BreakoutRoom: &room,
		}, "u9")
		assert.Equal(t, "B-1", f.manager.BreakoutRoom())
	})

	t.Run("non-GM sender is rejected", func(t *testing.T) {
		f, _ := newBreakoutFixture(t)
		f.host.Users.Add(types.UserInfo{ID: "u9", Name: "u9", Active: true, IsGM: false})

		f.host.Messages.Deliver(types.SocketMessage{
			Action:       types.MessageActionBreakout,
			BreakoutRoom: &room,
		}, "u9")
		assert.Equal(t, "", f.manager.BreakoutRoom())
	})

	t.Run("message addressed to another user is ignored", func(t *testing.T) {
		f, _ := newBreakoutFixture(t)
		f.host.Users.Add(types.UserInfo{ID: "u9", Name: "u9", Active: true, IsGM: true})

		f.host.Messages.Deliver(types.SocketMessage{
			Action:       types.MessageActionBreakout,
			UserID:       "someone-else",
			BreakoutRoom: &room,
		}, "u9")
		assert.Equal(t, "", f.manager.BreakoutRoom())
	})

	t.Run("disconnect message tears the session down", func(t *testing.T) {
		f, _ := newBreakoutFixture(t)
		f.host.Users.Add(types.UserInfo{ID: "u9", Name: "u9", Active: true, IsGM: true})
		require.True(t, f.manager.Connect(context.Background()))

		f.host.Messages.Deliver(types.SocketMessage{Action: types.MessageActionDisconnect}, "u9")
		assert.Equal(t, types.ConnectionStateDisconnected, f.manager.State())
	})

	t.Run("render message redraws immediately", func(t *testing.T) {
		f, _ := newBreakoutFixture(t)
		f.host.Users.Add(types.UserInfo{ID: "u9", Name: "u9", Active: true, IsGM: true})

		f.host.Messages.Deliver(types.SocketMessage{Action: types.MessageActionRender}, "u9")
		assert.Equal(t, int32(1), f.host.UI.RenderCount.Load())
	})
}
