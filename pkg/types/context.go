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

package types

// Scope of a persisted host setting.
type SettingScope string

const (
	ScopeWorld  SettingScope = "world"
	ScopeClient SettingScope = "client"
)

// Well-known host setting keys.
const (
	SettingServerType     = "livekit.type"
	SettingServerURL      = "server.url"
	SettingServerUsername = "server.username"
	SettingServerPassword = "server.password"
	SettingServerRoom     = "server.room"

	SettingAudioSrc  = "audioSrc"
	SettingVideoSrc  = "videoSrc"
	SettingAudioSink = "audioSink"
	SettingMuteAll   = "muteAll"
	SettingVoiceMode = "voice.mode"

	SettingDisableReceivingAudio    = "disableReceivingAudio"
	SettingDisableReceivingVideo    = "disableReceivingVideo"
	SettingUseExternalAV            = "useExternalAV"
	SettingAudioMusicMode           = "audioMusicMode"
	SettingDisplayConnectionQuality = "displayConnectionQuality"
	SettingSimulcast                = "simulcast"

	// device source value that disables capture entirely
	DeviceDisabled = "disabled"

	VoiceModeAlways   = "always"
	VoiceModePTT      = "ptt"
	VoiceModeActivity = "activity"
)

// SettingsStore reads and writes host settings at world or client scope.
// Keys use the host's dotted-path convention, e.g. "server.url" or
// "users.<id>.liveKitBreakoutRoom".
type SettingsStore interface {
	GetString(scope SettingScope, key string) string
	GetBool(scope SettingScope, key string) bool
	// GetFloat reports ok=false when the key has never been set
	GetFloat(scope SettingScope, key string) (val float64, ok bool)
	Set(scope SettingScope, key string, value interface{})
}

// UserInfo is the host's view of a user.
type UserInfo struct {
	ID     string
	Name   string
	Active bool
	IsGM   bool
}

// UserDirectory resolves host user ids to users and flips presence state.
type UserDirectory interface {
	User(id string) (UserInfo, bool)
	// SetActive marks a user online/offline in the host presence system
	SetActive(id string, active bool)
}

// PermissionBridge exposes the host's A/V permission predicates.
type PermissionBridge interface {
	CanUserBroadcastAudio(userID string) bool
	CanUserBroadcastVideo(userID string) bool
	CanUserShareAudio(userID string) bool
	CanUserShareVideo(userID string) bool
}

// NotifyLevel is the severity of a user-facing notification.
type NotifyLevel int

const (
	NotifyInfo NotifyLevel = iota
	NotifyWarn
	NotifyError
)

// UIBridge is the host-owned rendering surface the bridge attaches media to.
// The bridge never creates video elements; those belong to the host's camera
// views. Audio elements are created on demand next to a user's video element,
// one per audio source kind.
type UIBridge interface {
	// UserVideoElement returns the host video element for a user, if the
	// camera view has been rendered.
	UserVideoElement(userID string) (VideoElement, bool)
	// UserAudioElement locates or creates the audio element for a user and
	// audio source. Returns false when no video element exists to anchor it.
	UserAudioElement(userID string, source TrackSource) (AudioElement, bool)

	SetUserSpeaking(userID string, speaking bool)
	SetConnectionQuality(userID string, quality ConnectionQuality)
	// SetMutedIndicator toggles the muted (audio) or hidden (video) status
	// icon on a user's camera view.
	SetMutedIndicator(userID string, kind TrackKind, muted bool)
	SetConnectionButtons(connected bool)

	Notify(level NotifyLevel, message string, permanent bool)
	// OpenConfig renders the bridge's connection configuration form.
	OpenConfig()
	// Render redraws all camera views. Callers are expected to go through
	// the debounced scheduler rather than invoking this directly.
	Render()
}

// ActivityUpdate carries a partial muted/hidden state change for broadcast
// to other clients. Nil fields are left untouched.
type ActivityUpdate struct {
	Muted  *bool
	Hidden *bool
}

// ActivityBridge publishes the local user's A/V activity to other clients
// and feeds remote activity into the host's own indicators.
type ActivityBridge interface {
	BroadcastActivity(update ActivityUpdate)
	HandleUserActivity(userID string, update ActivityUpdate)
}

// MessageChannel is the host's point-to-point/broadcast messaging layer used
// for the bridge control channel.
type MessageChannel interface {
	// Send delivers a message to the given recipients, or to everyone when
	// recipients is empty.
	Send(msg SocketMessage, recipients []string) error
	// OnMessage registers the receive handler; senderID is the host user id
	// of the originating client.
	OnMessage(handler func(msg SocketMessage, senderID string))
}

// SocketMessage is the control-channel wire format.
type SocketMessage struct {
	Action       string  `json:"action"`
	UserID       string  `json:"userId,omitempty"`
	BreakoutRoom *string `json:"breakoutRoom,omitempty"`
}

// Control-channel actions.
const (
	MessageActionBreakout   = "breakout"
	MessageActionConnect    = "connect"
	MessageActionDisconnect = "disconnect"
	MessageActionRender     = "render"
)

// Context bundles the host capabilities handed to every bridge component.
// Components receive it explicitly instead of reaching for host globals.
type Context struct {
	// UserID is the local host user
	UserID   string
	UserName string

	Settings    SettingsStore
	Users       UserDirectory
	Permissions PermissionBridge
	UI          UIBridge
	Activity    ActivityBridge
	Messages    MessageChannel
}
