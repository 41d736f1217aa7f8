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
	"sync"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/config"
	"github.com/livekit/vtt-av-bridge/pkg/telemetry"
	"github.com/livekit/vtt-av-bridge/pkg/types"
	"github.com/livekit/vtt-av-bridge/pkg/utils"
)

type SessionManagerParams struct {
	Host        *types.Context
	Conf        *config.Config
	ServerTypes *ServerTypeRegistry
	Session     types.RoomSession
	Identity    *IdentityMapper
	Registry    *Registry
	Tracks      *TrackManager
	Logger      logger.Logger

	RequestRender func()
}

// SessionManager owns the transport session lifecycle and the connection
// state machine. State only moves Disconnected -> Connecting -> Connected;
// any state may fall back to Disconnected.
type SessionManager struct {
	params SessionManagerParams

	state atomic.Int32

	lock         sync.RWMutex
	breakoutRoom string
	currentRoom  string
}

func NewSessionManager(params SessionManagerParams) *SessionManager {
	return &SessionManager{params: params}
}

func (s *SessionManager) State() types.ConnectionState {
	return types.ConnectionState(s.state.Load())
}

// setState advances the connection state. Forward jumps that skip a state
// are rejected; falling back to Disconnected is always allowed.
func (s *SessionManager) setState(next types.ConnectionState) bool {
	for {
		cur := types.ConnectionState(s.state.Load())
		if cur == next {
			return false
		}
		legal := next == types.ConnectionStateDisconnected ||
			(cur == types.ConnectionStateDisconnected && next == types.ConnectionStateConnecting) ||
			(cur == types.ConnectionStateConnecting && next == types.ConnectionStateConnected)
		if !legal {
			s.params.Logger.Warnw("illegal connection state transition", nil,
				"from", cur.String(), "to", next.String())
			return false
		}
		if s.state.CompareAndSwap(int32(cur), int32(next)) {
			s.params.Logger.Debugw("connection state changed",
				"from", cur.String(), "to", next.String())
			return true
		}
	}
}

// BreakoutRoom returns the active breakout room id, "" when in the primary
// meeting room.
func (s *SessionManager) BreakoutRoom() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.breakoutRoom
}

func (s *SessionManager) SetBreakoutRoom(room string) {
	s.lock.Lock()
	s.breakoutRoom = room
	s.lock.Unlock()
}

// CurrentRoom returns the room the live session is connected to.
func (s *SessionManager) CurrentRoom() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.currentRoom
}

// Connect resolves the connection settings, obtains a token and opens the
// transport session. Returns false when the attempt was aborted or failed;
// aborts caused by incomplete settings leave a notification behind so the
// GM knows what to fill in.
func (s *SessionManager) Connect(ctx context.Context) bool {
	if s.State() != types.ConnectionStateDisconnected {
		s.params.Logger.Warnw("connect requested while not disconnected; resetting", nil,
			"state", s.State().String())
		s.Disconnect()
	}
	s.setState(types.ConnectionStateConnecting)

	profile, url, username, password, ok := s.resolveServerSettings()
	if !ok {
		s.resetToDisconnected()
		return false
	}

	room, ok := s.resolveRoom()
	if !ok {
		s.resetToDisconnected()
		return false
	}

	host := s.params.Host
	metadata, err := (JoinMetadata{
		FVTTUserID:    host.UserID,
		UseExternalAV: host.Settings.GetBool(types.ScopeClient, types.SettingUseExternalAV),
	}).Encode()
	if err != nil {
		s.params.Logger.Errorw("could not encode join metadata", err)
		s.resetToDisconnected()
		return false
	}

	token, err := profile.TokenFunc(ctx, username, password, room, host.UserName, metadata)
	if err != nil {
		s.params.Logger.Errorw("could not obtain an access token", err, "serverType", profile.Key)
		host.UI.Notify(types.NotifyError, "Could not obtain an access token for the meeting server", false)
		s.resetToDisconnected()
		return false
	}

	opts := types.ConnectOptions{AutoSubscribe: true}
	if s.params.Conf.Receive.DisableAudio || s.params.Conf.Receive.DisableVideo ||
		host.Settings.GetBool(types.ScopeWorld, types.SettingDisableReceivingAudio) ||
		host.Settings.GetBool(types.ScopeWorld, types.SettingDisableReceivingVideo) {
		opts.AutoSubscribe = false
	}

	wsURL := "wss://" + StripURLProtocol(url)
	s.params.Logger.Infow("connecting to meeting server", "url", wsURL, "room", room)

	if err = s.connectWithRetry(ctx, wsURL, token, opts); err != nil {
		telemetry.ConnectAttempt(false)
		s.notifyConnectFailure(err)
		s.resetToDisconnected()
		return false
	}

	s.lock.Lock()
	s.currentRoom = room
	s.lock.Unlock()

	s.onConnected(ctx)
	s.setState(types.ConnectionStateConnected)
	telemetry.ConnectAttempt(true)
	s.params.Logger.Infow("connected to meeting server", "room", room)
	return true
}

// connectWithRetry wraps the transport connect in the configured exponential
// backoff. A cancelled context stops the retry loop immediately.
func (s *SessionManager) connectWithRetry(ctx context.Context, url, token string, opts types.ConnectOptions) error {
	operation := func() error {
		err := s.params.Session.Connect(ctx, url, token, opts)
		if err != nil {
			if isTokenClockSkew(err) {
				// retrying cannot fix a wrong clock
				return backoff.Permanent(err)
			}
			s.params.Logger.Warnw("connection attempt failed; retrying", err)
		}
		return err
	}

	rc := s.params.Conf.Reconnect
	if !rc.Enabled {
		return s.params.Session.Connect(ctx, url, token, opts)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rc.InitialInterval
	bo.MaxInterval = rc.MaxInterval
	bo.Multiplier = rc.Multiplier

	var policy backoff.BackOff = backoff.WithContext(bo, ctx)
	if rc.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, rc.MaxAttempts)
	}
	return backoff.Retry(operation, policy)
}

// resolveServerSettings loads the server-type profile and its required
// settings. Missing required values abort the attempt; a GM additionally
// gets the configuration form opened.
func (s *SessionManager) resolveServerSettings() (profile ServerType, url, username, password string, ok bool) {
	host := s.params.Host
	settings := host.Settings

	key := settings.GetString(types.ScopeWorld, types.SettingServerType)
	if key == "" {
		profile = s.params.ServerTypes.Default()
	} else {
		var found bool
		profile, found = s.params.ServerTypes.Get(key)
		if !found {
			s.params.Logger.Errorw("configured server type is not registered", config.ErrServerTypeUnknown,
				"serverType", key)
			profile = s.params.ServerTypes.Default()
		}
	}

	url = profile.URL
	if profile.URLRequired {
		url = settings.GetString(types.ScopeWorld, types.SettingServerURL)
	}
	username = settings.GetString(types.ScopeWorld, types.SettingServerUsername)
	password = settings.GetString(types.ScopeWorld, types.SettingServerPassword)

	missing := (profile.URLRequired && url == "") ||
		(profile.UsernameRequired && username == "") ||
		(profile.PasswordRequired && password == "")
	if !missing {
		return profile, url, username, password, true
	}

	s.params.Logger.Warnw("meeting server settings are incomplete", nil, "serverType", profile.Key)
	host.UI.Notify(types.NotifyError, "Meeting server settings are incomplete; A/V will stay disconnected", true)
	if user, found := host.Users.User(host.UserID); found && user.IsGM {
		host.UI.OpenConfig()
	}
	return profile, "", "", "", false
}

// resolveRoom returns the effective room for this attempt. An unset primary
// room gets a fresh random name persisted and the attempt aborted; the
// settings-changed hook reconnects once the new value lands.
func (s *SessionManager) resolveRoom() (string, bool) {
	if breakout := s.BreakoutRoom(); breakout != "" {
		return breakout, true
	}

	settings := s.params.Host.Settings
	room := settings.GetString(types.ScopeWorld, types.SettingServerRoom)
	if room != "" {
		return room, true
	}

	room = utils.NewRoomName()
	s.params.Logger.Infow("meeting room is not set; generating one", "room", room)
	settings.Set(types.ScopeWorld, types.SettingServerRoom, room)
	return "", false
}

// ResetRoom regenerates the primary meeting room id. The settings-changed
// hook picks the new value up and reconnects everyone.
func (s *SessionManager) ResetRoom() {
	host := s.params.Host
	if user, found := host.Users.User(host.UserID); !found || !user.IsGM {
		s.params.Logger.Warnw("non-GM user attempted to reset the meeting room", nil,
			"userID", host.UserID)
		return
	}

	room := utils.NewRoomName()
	s.params.Logger.Infow("resetting meeting room", "room", room)
	host.Settings.Set(types.ScopeWorld, types.SettingServerRoom, room)
}

func (s *SessionManager) onConnected(ctx context.Context) {
	session := s.params.Session

	s.params.Registry.AddLocal(session.LocalParticipant())
	for _, p := range session.RemoteParticipants() {
		s.params.Registry.OnParticipantConnected(p)
	}

	s.params.Tracks.PublishTracks(ctx)

	s.params.Host.UI.SetConnectionButtons(true)
	s.params.RequestRender()
}

// Disconnect tears the session down, keeping local captures alive for a
// fast reconnect. Returns false when there was nothing to disconnect.
func (s *SessionManager) Disconnect() bool {
	if s.State() == types.ConnectionStateDisconnected {
		s.params.Logger.Debugw("disconnect requested while already disconnected")
		return false
	}

	s.params.Session.Disconnect(false)
	s.params.Registry.Clear()
	s.setState(types.ConnectionStateDisconnected)

	s.lock.Lock()
	s.currentRoom = ""
	s.lock.Unlock()

	s.params.Host.UI.SetConnectionButtons(false)
	s.params.RequestRender()
	return true
}

func (s *SessionManager) onReconnecting() {
	s.params.Logger.Warnw("connection to the meeting server interrupted; reconnecting", nil)
	s.params.Host.UI.Notify(types.NotifyWarn, "Reconnecting to the meeting server", false)
}

func (s *SessionManager) onReconnected() {
	s.params.Logger.Infow("reconnected to the meeting server")
	s.params.RequestRender()
}

func (s *SessionManager) onDisconnected() {
	s.params.Logger.Warnw("disconnected from the meeting server", nil)
	s.Disconnect()
}

// onAudioPlayback surfaces blocked autoplay, then redraws once the host
// unlocks playback after a user gesture.
func (s *SessionManager) onAudioPlayback(canPlayback bool) {
	if !canPlayback {
		s.params.Logger.Warnw("audio playback is blocked pending user interaction", nil)
		s.params.Host.UI.Notify(types.NotifyWarn, "Audio playback is blocked; interact with the page to enable it", false)
		return
	}
	s.params.RequestRender()
}

func (s *SessionManager) notifyConnectFailure(err error) {
	if isTokenClockSkew(err) {
		s.params.Logger.Errorw("token rejected for timing; local clock is likely wrong", err)
		s.params.Host.UI.Notify(types.NotifyError,
			"The meeting server rejected the access token timing; check that your clock is set correctly", true)
		return
	}
	s.params.Logger.Errorw("could not connect to the meeting server", err)
	s.params.Host.UI.Notify(types.NotifyError, "Could not connect to the meeting server", false)
}

func (s *SessionManager) resetToDisconnected() {
	s.setState(types.ConnectionStateDisconnected)
	s.params.Host.UI.SetConnectionButtons(false)
}

// isTokenClockSkew matches the transport errors produced when the signed
// token's validity window misses the server's clock.
func isTokenClockSkew(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "token is expired") ||
		strings.Contains(msg, "token not valid yet")
}

// StripURLProtocol removes a scheme accidentally pasted into the server
// address setting.
func StripURLProtocol(url string) string {
	for _, prefix := range []string{"https://", "http://", "wss://", "ws://"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix)
		}
	}
	return url
}
