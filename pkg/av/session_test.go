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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/config"
	"github.com/livekit/vtt-av-bridge/pkg/testutils"
	"github.com/livekit/vtt-av-bridge/pkg/types"
)

type sessionFixture struct {
	host    *testutils.Host
	conf    *config.Config
	session *testutils.RoomSession
	manager *SessionManager
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	conf, err := config.NewConfig("")
	require.NoError(t, err)
	conf.Reconnect.InitialInterval = time.Millisecond
	conf.Reconnect.MaxInterval = 5 * time.Millisecond

	f := &sessionFixture{
		host:    testutils.NewHost("gm", "GM"),
		conf:    conf,
		session: testutils.NewRoomSession(testutils.NewLocalParticipant("gm-identity", "")),
	}
	f.host.Users.Add(types.UserInfo{ID: "gm", Name: "GM", Active: true, IsGM: true})

	identity := NewIdentityMapper(f.host.Users)
	engine := NewSubscriptionEngine(SubscriptionEngineParams{
		Host:     f.host.Context,
		Identity: identity,
		Logger:   logger.GetLogger(),
	})
	f.manager = NewSessionManager(SessionManagerParams{
		Host:        f.host.Context,
		Conf:        conf,
		ServerTypes: NewServerTypeRegistry(),
		Session:     f.session,
		Identity:    identity,
		Logger:      logger.GetLogger(),
	})
	f.manager.params.Registry = NewRegistry(RegistryParams{
		Host:          f.host.Context,
		Identity:      identity,
		Engine:        engine,
		Logger:        logger.GetLogger(),
		BreakoutRoom:  f.manager.BreakoutRoom,
		CurrentRoom:   f.manager.CurrentRoom,
		RequestRender: func() {},
	})
	f.manager.params.Tracks = NewTrackManager(TrackManagerParams{
		Host:             f.host.Context,
		Devices:          testutils.NewMediaDevices(),
		Logger:           logger.GetLogger(),
		LocalParticipant: f.session.LocalParticipant,
		IsConnected:      func() bool { return f.manager.State() == types.ConnectionStateConnected },
		AttachVideo:      engine.AttachVideoTrack,
		Render:           func() {},
	})
	f.manager.params.RequestRender = func() {}

	f.host.Settings.Set(types.ScopeWorld, types.SettingServerType, "custom")
	f.host.Settings.Set(types.ScopeWorld, types.SettingServerURL, "livekit.example.com")
	f.host.Settings.Set(types.ScopeWorld, types.SettingServerUsername, "devkey")
	f.host.Settings.Set(types.ScopeWorld, types.SettingServerPassword, "devsecretdevsecretdevsecret")
	f.host.Settings.Set(types.ScopeWorld, types.SettingServerRoom, "primary-room")
	return f
}

func TestSessionConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		f := newSessionFixture(t)
		require.True(t, f.manager.Connect(ctx))

		assert.Equal(t, types.ConnectionStateConnected, f.manager.State())
		assert.Equal(t, "primary-room", f.manager.CurrentRoom())
		require.Len(t, f.session.ConnectCalls, 1)
		call := f.session.ConnectCalls[0]
		assert.Equal(t, "wss://livekit.example.com", call.URL)
		assert.NotEmpty(t, call.Token)
		assert.True(t, call.Opts.AutoSubscribe)
		assert.Equal(t, []bool{true}, f.host.UI.Buttons)
	})

	t.Run("scheme pasted into the url setting is stripped", func(t *testing.T) {
		f := newSessionFixture(t)
		f.host.Settings.Set(types.ScopeWorld, types.SettingServerURL, "https://livekit.example.com")

		require.True(t, f.manager.Connect(ctx))
		assert.Equal(t, "wss://livekit.example.com", f.session.ConnectCalls[0].URL)
	})

	t.Run("missing settings open the config form for the GM", func(t *testing.T) {
		f := newSessionFixture(t)
		f.host.Settings.Set(types.ScopeWorld, types.SettingServerURL, "")

		assert.False(t, f.manager.Connect(ctx))
		assert.Equal(t, types.ConnectionStateDisconnected, f.manager.State())
		assert.Empty(t, f.session.ConnectCalls)
		assert.Equal(t, 1, f.host.UI.ConfigOpened)
	})

	t.Run("missing room generates one and aborts", func(t *testing.T) {
		f := newSessionFixture(t)
		f.host.Settings.Set(types.ScopeWorld, types.SettingServerRoom, "")

		assert.False(t, f.manager.Connect(ctx))
		assert.Empty(t, f.session.ConnectCalls)
		generated := f.host.Settings.GetString(types.ScopeWorld, types.SettingServerRoom)
		assert.Len(t, generated, 32)
	})

	t.Run("receive restrictions turn auto-subscribe off", func(t *testing.T) {
		f := newSessionFixture(t)
		f.host.Settings.Set(types.ScopeWorld, types.SettingDisableReceivingAudio, true)

		require.True(t, f.manager.Connect(ctx))
		assert.False(t, f.session.ConnectCalls[0].Opts.AutoSubscribe)
	})

	t.Run("breakout room takes precedence over the primary room", func(t *testing.T) {
		f := newSessionFixture(t)
		f.manager.SetBreakoutRoom("B-side")

		require.True(t, f.manager.Connect(ctx))
		assert.Equal(t, "B-side", f.manager.CurrentRoom())
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		f := newSessionFixture(t)
		f.session.ConnectErrs = []error{errors.New("connection refused"), nil}

		require.True(t, f.manager.Connect(ctx))
		assert.Len(t, f.session.ConnectCalls, 2)
		assert.Equal(t, types.ConnectionStateConnected, f.manager.State())
	})

	t.Run("clock skew is not retried and warns about the clock", func(t *testing.T) {
		f := newSessionFixture(t)
		f.session.ConnectErr = errors.New("token is expired (exp)")

		assert.False(t, f.manager.Connect(ctx))
		assert.Len(t, f.session.ConnectCalls, 1)
		assert.Equal(t, types.ConnectionStateDisconnected, f.manager.State())

		require.NotEmpty(t, f.host.UI.Notifications)
		last := f.host.UI.Notifications[len(f.host.UI.Notifications)-1]
		assert.Contains(t, last.Message, "clock")
		assert.True(t, last.Permanent)
	})

	t.Run("remote participants present at connect are registered", func(t *testing.T) {
		f := newSessionFixture(t)
		f.host.Users.Add(types.UserInfo{ID: "u2", Name: "u2", Active: true})
		md, err := (JoinMetadata{FVTTUserID: "u2"}).Encode()
		require.NoError(t, err)
		f.session.AddRemote(testutils.NewParticipant("identity-u2", md))

		require.True(t, f.manager.Connect(ctx))
		assert.Contains(t, f.manager.params.Registry.ConnectedUserIDs(), "u2")
	})
}

func TestSessionDisconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("returns false when already disconnected", func(t *testing.T) {
		f := newSessionFixture(t)
		assert.False(t, f.manager.Disconnect())
		assert.Empty(t, f.session.DisconnectCalls)
	})

	t.Run("keeps local tracks alive", func(t *testing.T) {
		f := newSessionFixture(t)
		require.True(t, f.manager.Connect(ctx))

		assert.True(t, f.manager.Disconnect())
		assert.Equal(t, types.ConnectionStateDisconnected, f.manager.State())
		require.Len(t, f.session.DisconnectCalls, 1)
		assert.False(t, f.session.DisconnectCalls[0])
		assert.Empty(t, f.manager.params.Registry.ConnectedUserIDs())
	})
}

func TestSessionStateTransitions(t *testing.T) {
	f := newSessionFixture(t)

	// skipping Connecting is rejected
	assert.False(t, f.manager.setState(types.ConnectionStateConnected))
	assert.Equal(t, types.ConnectionStateDisconnected, f.manager.State())

	assert.True(t, f.manager.setState(types.ConnectionStateConnecting))
	assert.True(t, f.manager.setState(types.ConnectionStateConnected))

	// forced reset is always allowed
	assert.True(t, f.manager.setState(types.ConnectionStateDisconnected))
}

func TestResetRoom(t *testing.T) {
	t.Run("GM regenerates the room", func(t *testing.T) {
		f := newSessionFixture(t)
		f.manager.ResetRoom()
		room := f.host.Settings.GetString(types.ScopeWorld, types.SettingServerRoom)
		assert.NotEqual(t, "primary-room", room)
		assert.Len(t, room, 32)
	})

	t.Run("non-GM request is dropped", func(t *testing.T) {
		f := newSessionFixture(t)
		f.host.Users.Add(types.UserInfo{ID: "gm", Name: "GM", Active: true, IsGM: false})
		f.manager.ResetRoom()
		assert.Equal(t, "primary-room", f.host.Settings.GetString(types.ScopeWorld, types.SettingServerRoom))
	})
}
