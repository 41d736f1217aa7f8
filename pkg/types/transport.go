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

import "context"

// ConnectionState of the underlying room session. Transitions are owned by
// the session manager and strictly follow
// Disconnected -> Connecting -> Connected -> Disconnected.
type ConnectionState int32

const (
	ConnectionStateDisconnected ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

type TrackSource string

const (
	TrackSourceMicrophone       TrackSource = "microphone"
	TrackSourceCamera           TrackSource = "camera"
	TrackSourceScreenShare      TrackSource = "screen_share"
	TrackSourceScreenShareAudio TrackSource = "screen_share_audio"
	TrackSourceUnknown          TrackSource = "unknown"
)

type ConnectionQuality string

const (
	ConnectionQualityUnknown   ConnectionQuality = "unknown"
	ConnectionQualityPoor      ConnectionQuality = "poor"
	ConnectionQualityGood      ConnectionQuality = "good"
	ConnectionQualityExcellent ConnectionQuality = "excellent"
)

// MediaElement is an opaque host rendering surface a track attaches to.
type MediaElement interface {
	ElementID() string
}

type VideoElement interface {
	MediaElement
}

type AudioElement interface {
	MediaElement
	// SetSinkID selects the audio output device
	SetSinkID(deviceID string) error
	SetVolume(volume float64)
	SetMuted(muted bool)
}

// Track is a media track, local or remote.
type Track interface {
	SID() string
	Kind() TrackKind
	Source() TrackSource
	// CurrentBitrate in bits per second, 0 when unknown
	CurrentBitrate() float64
	AttachedElements() []MediaElement
	Attach(element MediaElement)
	// Detach removes the track from every element it is attached to
	Detach()
}

// LocalTrack is a locally captured track owned by the track manager.
type LocalTrack interface {
	Track
	IsMuted() bool
	Mute()
	Unmute()
	// Restart re-acquires the capture in place, e.g. after a device change
	Restart(ctx context.Context, opts CaptureOptions) error
	Stop()
}

// CaptureOptions describe a local capture request. Zero values mean
// transport defaults.
type CaptureOptions struct {
	// DeviceID is the ideal device, not an exact match
	DeviceID string

	// audio
	ChannelCount     int
	EchoCancellation *bool
	NoiseSuppression *bool
	AutoGainControl  *bool

	// video
	Width  int
	Height int
}

// TrackPublishOptions are hints passed when publishing a local track.
type TrackPublishOptions struct {
	Simulcast    bool
	AudioBitrate int
}

// TrackPublication is a participant's announcement of an available track.
// Track() is nil until the local peer subscribes.
type TrackPublication interface {
	SID() string
	Kind() TrackKind
	Source() TrackSource
	IsMuted() bool
	IsSubscribed() bool
	Track() Track
}

// RemoteTrackPublication additionally supports explicit subscription
// control for admission decisions.
type RemoteTrackPublication interface {
	TrackPublication
	SetSubscribed(subscribed bool) error
}

// Participant is a remote or local peer in the room session.
type Participant interface {
	// Identity is the transport-level identity, not the host user id
	Identity() string
	// Metadata is the opaque string embedded at token issuance
	Metadata() string
	IsLocal() bool
	ConnectionQuality() ConnectionQuality
	Publications() []TrackPublication
}

// LocalParticipant is the local peer, able to publish tracks.
type LocalParticipant interface {
	Participant
	PublishTrack(ctx context.Context, track LocalTrack, opts *TrackPublishOptions) error
	UnpublishTrack(track LocalTrack) error
	// IsPublished reports whether the given track is currently published
	IsPublished(track LocalTrack) bool
}

// EventName identifies a transport event delivered to the session's
// dispatch table.
type EventName string

const (
	EventParticipantConnected    EventName = "participant_connected"
	EventParticipantDisconnected EventName = "participant_disconnected"
	EventTrackPublished          EventName = "track_published"
	EventTrackUnpublished        EventName = "track_unpublished"
	EventTrackSubscribed         EventName = "track_subscribed"
	EventTrackUnsubscribed       EventName = "track_unsubscribed"
	EventTrackSubscriptionFailed EventName = "track_subscription_failed"
	EventTrackMuted              EventName = "track_muted"
	EventTrackUnmuted            EventName = "track_unmuted"
	EventIsSpeakingChanged       EventName = "is_speaking_changed"
	EventConnectionQuality       EventName = "connection_quality_changed"
	EventMetadataChanged         EventName = "participant_metadata_changed"
	EventAudioPlayback           EventName = "audio_playback_changed"
	EventDisconnected            EventName = "disconnected"
	EventReconnecting            EventName = "reconnecting"
	EventReconnected             EventName = "reconnected"
)

// SessionEvent is the typed payload delivered for every transport event.
// Only the fields relevant to the event name are populated.
type SessionEvent struct {
	Name        EventName
	Participant Participant
	Publication TrackPublication
	Track       Track
	Quality     ConnectionQuality
	Speaking    bool
	CanPlayback bool
	Error       error
}

// ConnectOptions for opening a room session.
type ConnectOptions struct {
	AutoSubscribe bool
}

// SessionOptions configure a room session at creation time.
type SessionOptions struct {
	AdaptiveStream   bool
	Dynacast         bool
	Simulcast        bool
	VideoSimulcastRx []int
}

// RoomSession is the single underlying transport session. It is created once
// and reconnected across room switches; only the session manager mutates it.
type RoomSession interface {
	Connect(ctx context.Context, url string, token string, opts ConnectOptions) error
	// Disconnect closes the session; stopTracks=false keeps local captures
	// alive for a fast reconnect
	Disconnect(stopTracks bool)
	State() ConnectionState
	LocalParticipant() LocalParticipant
	RemoteParticipants() []Participant
	// OnEvent installs the single event sink; events are delivered
	// sequentially in the order the transport observed them
	OnEvent(handler func(event SessionEvent))
}

// MediaDevices is the transport's local capture and enumeration capability.
type MediaDevices interface {
	CreateAudioTrack(ctx context.Context, opts CaptureOptions) (LocalTrack, error)
	CreateVideoTrack(ctx context.Context, opts CaptureOptions) (LocalTrack, error)
	// CreateScreenTracks acquires a screen video track, plus a screen audio
	// track when withAudio is set
	CreateScreenTracks(ctx context.Context, withAudio bool) ([]LocalTrack, error)
	// EnumerateDevices returns deviceID -> label for the given kind:
	// "audioinput", "audiooutput" or "videoinput"
	EnumerateDevices(kind string) (map[string]string, error)
}

// Transport is the black-box media SDK: a factory for room sessions plus
// device access.
type Transport interface {
	NewSession(opts SessionOptions) RoomSession
	Devices() MediaDevices
}
