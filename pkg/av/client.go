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
	"net/url"
	"sync"

	"github.com/frostbyte73/core"
	"github.com/thoas/go-funk"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/config"
	"github.com/livekit/vtt-av-bridge/pkg/types"
)

const externalMeetBaseURL = "https://meet.livekit.io/custom"

// settings whose change requires a full reconnect
var serverSettingKeys = []string{
	types.SettingServerType,
	types.SettingServerURL,
	types.SettingServerUsername,
	types.SettingServerPassword,
	types.SettingServerRoom,
}

type ClientParams struct {
	Host      *types.Context
	Conf      *config.Config
	Transport types.Transport
	// ServerTypes may be nil; the built-in registry is used
	ServerTypes *ServerTypeRegistry
	Logger      logger.Logger
}

// Client is the surface the host calls into. It wires the identity mapper,
// registry, track manager, subscription engine and session manager around a
// single transport session.
type Client struct {
	params      ClientParams
	serverTypes *ServerTypeRegistry

	identity *IdentityMapper
	engine   *SubscriptionEngine
	registry *Registry
	tracks   *TrackManager
	render   *renderScheduler

	lock       sync.Mutex
	session    *SessionManager
	breakouts  *BreakoutManager
	dispatcher *eventDispatcher
	externalAV bool

	closed core.Fuse
}

func NewClient(params ClientParams) *Client {
	if params.ServerTypes == nil {
		params.ServerTypes = NewServerTypeRegistry()
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}

	c := &Client{
		params:      params,
		serverTypes: params.ServerTypes,
	}

	c.identity = NewIdentityMapper(params.Host.Users)
	c.engine = NewSubscriptionEngine(SubscriptionEngineParams{
		Host:     params.Host,
		Identity: c.identity,
		Logger:   params.Logger,
	})
	c.render = newRenderScheduler(params.Host.UI.Render, params.Conf.Render.Debounce)
	c.registry = NewRegistry(RegistryParams{
		Host:          params.Host,
		Identity:      c.identity,
		Engine:        c.engine,
		Logger:        params.Logger,
		BreakoutRoom:  c.breakoutRoom,
		CurrentRoom:   c.currentRoom,
		RequestRender: c.render.Request,
	})
	c.tracks = NewTrackManager(TrackManagerParams{
		Host:             params.Host,
		Devices:          params.Transport.Devices(),
		Logger:           params.Logger,
		LocalParticipant: c.localParticipant,
		IsConnected:      c.isConnected,
		AttachVideo:      c.engine.AttachVideoTrack,
		Render:           c.render.Request,
	})
	return c
}

// Initialize prepares the client for connection attempts: coerces settings
// the transport handles natively, creates the room session and acquires
// local captures. In external A/V mode the user joins through a separate
// web client, so no session or captures are created here.
func (c *Client) Initialize(ctx context.Context) error {
	host := c.params.Host

	// voice activation is handled natively by the transport
	if host.Settings.GetString(types.ScopeClient, types.SettingVoiceMode) == types.VoiceModeActivity {
		c.params.Logger.Infow("voice activation mode is not needed; switching to always-on broadcast")
		host.Settings.Set(types.ScopeClient, types.SettingVoiceMode, types.VoiceModeAlways)
	}

	c.externalAV = host.Settings.GetBool(types.ScopeClient, types.SettingUseExternalAV)
	if c.externalAV {
		c.params.Logger.Infow("using external A/V client; media stays outside the bridge")
		unmuted := false
		host.Activity.BroadcastActivity(types.ActivityUpdate{Muted: &unmuted, Hidden: &unmuted})
		return nil
	}

	simulcast := host.Settings.GetBool(types.ScopeWorld, types.SettingSimulcast)
	roomSession := c.params.Transport.NewSession(types.SessionOptions{
		AdaptiveStream: true,
		Dynacast:       true,
		Simulcast:      simulcast,
	})

	c.lock.Lock()
	c.session = NewSessionManager(SessionManagerParams{
		Host:          host,
		Conf:          c.params.Conf,
		ServerTypes:   c.serverTypes,
		Session:       roomSession,
		Identity:      c.identity,
		Registry:      c.registry,
		Tracks:        c.tracks,
		Logger:        c.params.Logger,
		RequestRender: c.render.Request,
	})
	c.breakouts = NewBreakoutManager(BreakoutManagerParams{
		Host:    host,
		Session: c.session,
		Logger:  c.params.Logger,
	})
	c.dispatcher = newEventDispatcher(eventDispatcherParams{
		Session:       c.session,
		Registry:      c.registry,
		Engine:        c.engine,
		Logger:        c.params.Logger,
		RequestRender: c.render.Request,
	})
	roomSession.OnEvent(c.dispatcher.dispatch)
	c.lock.Unlock()

	c.tracks.InitializeTracks(ctx)
	c.tracks.SetBroadcastEnabled(
		host.Settings.GetString(types.ScopeClient, types.SettingVoiceMode) == types.VoiceModeAlways)
	return nil
}

// Connect opens the session. In external A/V mode the user instead gets a
// join link for the web client and the bridge stays disconnected.
func (c *Client) Connect(ctx context.Context) bool {
	if c.externalAV {
		return c.sendExternalJoinMessage(ctx)
	}

	session := c.sessionManager()
	if session == nil {
		c.params.Logger.Errorw("connect called before initialize", nil)
		return false
	}
	return session.Connect(ctx)
}

// Disconnect tears the session down. Returns false when there was nothing
// to disconnect.
func (c *Client) Disconnect() bool {
	session := c.sessionManager()
	if session == nil {
		return false
	}
	return session.Disconnect()
}

// GetConnectedUsers returns the host user ids of everyone in the room. The
// local user is always included while a session exists; external A/V mode
// reports nobody since the bridge holds no session.
func (c *Client) GetConnectedUsers() []string {
	if c.externalAV {
		return []string{}
	}

	ids := c.registry.ConnectedUserIDs()
	if !funk.ContainsString(ids, c.params.Host.UserID) {
		ids = append(ids, c.params.Host.UserID)
	}
	return ids
}

func (c *Client) IsAudioEnabled() bool {
	return !c.externalAV && c.tracks.IsAudioEnabled()
}

func (c *Client) IsVideoEnabled() bool {
	return !c.externalAV && c.tracks.IsVideoEnabled()
}

// ToggleAudio mutes/unmutes the microphone. Ignored when broadcast is
// disabled or push-to-talk owns the microphone state.
func (c *Client) ToggleAudio(enable bool) {
	if c.externalAV {
		return
	}
	if !c.tracks.BroadcastEnabled() {
		c.params.Logger.Debugw("ignoring audio toggle; broadcast is disabled")
		return
	}
	if c.voiceMode() == types.VoiceModePTT {
		c.params.Logger.Debugw("ignoring audio toggle; push-to-talk owns the microphone")
		return
	}
	c.tracks.SetAudioEnabled(enable)
}

// ToggleBroadcast flips the broadcast intent itself, e.g. from the PTT key
// handlers.
func (c *Client) ToggleBroadcast(enable bool) {
	if c.externalAV {
		return
	}
	c.tracks.SetBroadcastEnabled(enable)
}

func (c *Client) ToggleVideo(enable bool) {
	if c.externalAV {
		return
	}
	c.tracks.SetVideoEnabled(enable)
}

// SetUserVideo attaches a user's video track to a freshly rendered host
// surface, re-applying audio attachment as well so volume and sink follow
// the new camera view.
func (c *Client) SetUserVideo(userID string, element types.VideoElement) {
	host := c.params.Host

	if userID == host.UserID {
		if track := c.tracks.VideoTrack(); track != nil {
			c.engine.AttachVideoTrack(track, element)
		}
		return
	}

	if track := c.registry.UserVideoTrack(userID); track != nil {
		c.engine.AttachVideoTrack(track, element)
	}
	if track := c.registry.UserAudioTrack(userID); track != nil {
		if audioElement, ok := host.UI.UserAudioElement(userID, track.Source()); ok {
			c.engine.AttachAudioTrack(userID, track, audioElement)
		}
	}
}

// OnSettingsChanged reacts to a host settings diff, keyed by dotted setting
// path. Server settings force a reconnect; device selections reconcile the
// local tracks; everything cosmetic just redraws.
func (c *Client) OnSettingsChanged(ctx context.Context, diff map[string]interface{}) {
	keys := funk.Keys(diff).([]string)
	c.params.Logger.Debugw("settings changed", "keys", keys)

	if len(funk.IntersectString(serverSettingKeys, keys)) > 0 {
		c.params.Logger.Infow("server settings changed; reconnecting")
		c.Disconnect()
		c.Connect(ctx)
		return
	}

	if c.externalAV {
		return
	}

	if funk.ContainsString(keys, types.SettingAudioSrc) {
		c.tracks.ChangeAudioSource(ctx)
	}
	if funk.ContainsString(keys, types.SettingVideoSrc) {
		c.tracks.ChangeVideoSource(ctx)
	}

	if funk.ContainsString(keys, types.SettingVoiceMode) {
		mode := c.voiceMode()
		if mode == types.VoiceModeActivity {
			c.params.Host.Settings.Set(types.ScopeClient, types.SettingVoiceMode, types.VoiceModeAlways)
			mode = types.VoiceModeAlways
		}
		enable := mode == types.VoiceModeAlways
		c.tracks.SetBroadcastEnabled(enable)
		muted := !enable
		c.params.Host.Activity.BroadcastActivity(types.ActivityUpdate{Muted: &muted})
	}

	if funk.Some(keys, types.SettingAudioSink, types.SettingMuteAll, types.SettingDisplayConnectionQuality) {
		c.render.Flush()
	}
}

func (c *Client) GetAudioSources() (map[string]string, error) {
	return c.params.Transport.Devices().EnumerateDevices("audioinput")
}

func (c *Client) GetAudioSinks() (map[string]string, error) {
	return c.params.Transport.Devices().EnumerateDevices("audiooutput")
}

func (c *Client) GetVideoSources() (map[string]string, error) {
	return c.params.Transport.Devices().EnumerateDevices("videoinput")
}

// UpdateLocalStream reconciles both local captures against the current
// settings, used after the host's A/V preferences dialog closes.
func (c *Client) UpdateLocalStream(ctx context.Context) {
	if c.externalAV {
		return
	}
	c.tracks.ChangeAudioSource(ctx)
	c.tracks.ChangeVideoSource(ctx)
}

func (c *Client) GetUserStatistics(userID string) string {
	return c.registry.UserStatistics(userID)
}

func (c *Client) GetAllUserStatistics() map[string]string {
	return c.registry.AllUserStatistics()
}

// Breakouts exposes the breakout operations to GM-facing UI glue.
func (c *Client) Breakouts() *BreakoutManager {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.breakouts
}

// ResetRoom regenerates the primary meeting room id, GM only.
func (c *Client) ResetRoom() {
	if session := c.sessionManager(); session != nil {
		session.ResetRoom()
	}
}

// Close releases all local captures and the session. The client cannot be
// reused afterwards.
func (c *Client) Close() {
	c.closed.Once(func() {
		c.render.Stop()
		if session := c.sessionManager(); session != nil {
			session.Disconnect()
		}
		c.tracks.Close()
	})
}

// sendExternalJoinMessage issues a token for the external web client and
// hands the user a join link.
func (c *Client) sendExternalJoinMessage(ctx context.Context) bool {
	session := c.externalSessionManager()

	profile, serverURL, username, password, ok := session.resolveServerSettings()
	if !ok {
		return false
	}
	room, ok := session.resolveRoom()
	if !ok {
		return false
	}

	host := c.params.Host
	metadata, err := (JoinMetadata{FVTTUserID: host.UserID, UseExternalAV: true}).Encode()
	if err != nil {
		c.params.Logger.Errorw("could not encode join metadata", err)
		return false
	}
	token, err := profile.TokenFunc(ctx, username, password, room, host.UserName, metadata)
	if err != nil {
		c.params.Logger.Errorw("could not obtain an access token for the external client", err)
		return false
	}

	query := url.Values{}
	query.Set("liveKitUrl", "wss://"+StripURLProtocol(serverURL))
	query.Set("token", token)
	link := externalMeetBaseURL + "?" + query.Encode()

	c.params.Logger.Infow("external A/V join link issued", "room", room)
	host.UI.Notify(types.NotifyInfo, "Join the meeting with your external A/V client: "+link, true)
	return true
}

// externalSessionManager returns a settings-resolution-only manager for
// external A/V mode, where Initialize never creates one.
func (c *Client) externalSessionManager() *SessionManager {
	if session := c.sessionManager(); session != nil {
		return session
	}
	return NewSessionManager(SessionManagerParams{
		Host:          c.params.Host,
		Conf:          c.params.Conf,
		ServerTypes:   c.serverTypes,
		Identity:      c.identity,
		Registry:      c.registry,
		Tracks:        c.tracks,
		Logger:        c.params.Logger,
		RequestRender: c.render.Request,
	})
}

func (c *Client) sessionManager() *SessionManager {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.session
}

func (c *Client) voiceMode() string {
	return c.params.Host.Settings.GetString(types.ScopeClient, types.SettingVoiceMode)
}

func (c *Client) breakoutRoom() string {
	if session := c.sessionManager(); session != nil {
		return session.BreakoutRoom()
	}
	return ""
}

func (c *Client) currentRoom() string {
	if session := c.sessionManager(); session != nil {
		return session.CurrentRoom()
	}
	return ""
}

func (c *Client) localParticipant() types.LocalParticipant {
	session := c.sessionManager()
	if session == nil || session.State() != types.ConnectionStateConnected {
		return nil
	}
	return session.params.Session.LocalParticipant()
}

func (c *Client) isConnected() bool {
	session := c.sessionManager()
	return session != nil && session.State() == types.ConnectionStateConnected
}
