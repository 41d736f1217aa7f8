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
	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/telemetry"
	"github.com/livekit/vtt-av-bridge/pkg/types"
)

const defaultUserVolume = 1.0

type SubscriptionEngineParams struct {
	Host     *types.Context
	Identity *IdentityMapper
	Logger   logger.Logger
}

// SubscriptionEngine decides which published remote tracks get subscribed
// and attaches accepted tracks to the host's rendering surfaces.
type SubscriptionEngine struct {
	params SubscriptionEngineParams
}

func NewSubscriptionEngine(params SubscriptionEngineParams) *SubscriptionEngine {
	return &SubscriptionEngine{params: params}
}

func (e *SubscriptionEngine) receiveDisabled() (audio bool, video bool) {
	settings := e.params.Host.Settings
	return settings.GetBool(types.ScopeWorld, types.SettingDisableReceivingAudio),
		settings.GetBool(types.ScopeWorld, types.SettingDisableReceivingVideo)
}

// TrackPublished applies admission control to a newly published remote
// track. With no receive restrictions the transport auto-subscribes and
// nothing needs to happen here; otherwise only the kinds that remain
// enabled are subscribed explicitly.
func (e *SubscriptionEngine) TrackPublished(pub types.TrackPublication, p types.Participant) {
	e.params.Logger.Debugw("onTrackPublished", "kind", pub.Kind(), "participant", p.Identity())

	disableAudio, disableVideo := e.receiveDisabled()
	if !disableAudio && !disableVideo {
		return
	}

	remote, ok := pub.(types.RemoteTrackPublication)
	if !ok {
		return
	}

	subscribe := (pub.Kind() == types.TrackKindAudio && !disableAudio) ||
		(pub.Kind() == types.TrackKindVideo && !disableVideo)
	if !subscribe {
		e.params.Logger.Infow("not subscribing to track",
			"kind", pub.Kind(), "participant", p.Identity())
		return
	}

	if err := remote.SetSubscribed(true); err != nil {
		e.params.Logger.Errorw("could not subscribe to track", err,
			"kind", pub.Kind(), "participant", p.Identity())
	}
}

// TrackSubscribed attaches a subscribed remote track to the user's
// rendering surfaces. A missing video element means the camera view hasn't
// rendered yet; attachment is skipped and picked up on the next render
// cycle instead of being queued.
func (e *SubscriptionEngine) TrackSubscribed(track types.Track, pub types.TrackPublication, p types.Participant) {
	user, err := e.params.Identity.Resolve(p)
	if err != nil {
		e.params.Logger.Warnw("subscribed track participant is not a host user", err,
			"participant", p.Identity())
		return
	}

	videoElement, ok := e.params.Host.UI.UserVideoElement(user.ID)
	if !ok {
		e.params.Logger.Debugw("video element not yet ready; skipping attach",
			"userID", user.ID, "kind", pub.Kind())
		return
	}

	telemetry.TrackSubscribed(string(pub.Kind()))

	switch pub.Kind() {
	case types.TrackKindAudio:
		audioElement, ok := e.params.Host.UI.UserAudioElement(user.ID, pub.Source())
		if !ok {
			e.params.Logger.Warnw("could not locate or create audio element", nil,
				"userID", user.ID, "source", pub.Source())
			return
		}
		e.AttachAudioTrack(user.ID, track, audioElement)
	case types.TrackKindVideo:
		e.AttachVideoTrack(track, videoElement)
	default:
		e.params.Logger.Warnw("unknown track kind subscribed", nil, "kind", pub.Kind())
	}
}

// TrackUnsubscribed detaches the track everywhere. The audio/video elements
// themselves survive for reuse.
func (e *SubscriptionEngine) TrackUnsubscribed(track types.Track, pub types.TrackPublication, p types.Participant) {
	e.params.Logger.Debugw("onTrackUnsubscribed", "kind", pub.Kind(), "participant", p.Identity())
	track.Detach()
}

// TrackMuteChanged propagates a remote mute/hidden change into the host UI.
// The local participant's own tracks only get a log line; local UI already
// reflects local intent.
func (e *SubscriptionEngine) TrackMuteChanged(pub types.TrackPublication, p types.Participant) {
	if p.IsLocal() {
		e.params.Logger.Debugw("local track mute changed", "kind", pub.Kind(), "muted", pub.IsMuted())
		return
	}

	user, err := e.params.Identity.Resolve(p)
	if err != nil {
		e.params.Logger.Warnw("mute change participant is not a host user", err,
			"participant", p.Identity())
		return
	}

	muted := pub.IsMuted()
	if e.params.Identity.UsesExternalAV(p) {
		// participant joined via the external client; feed the host's own
		// activity indicators instead of the bridge's status icons
		update := types.ActivityUpdate{}
		switch pub.Kind() {
		case types.TrackKindAudio:
			update.Muted = &muted
		case types.TrackKindVideo:
			update.Hidden = &muted
		}
		e.params.Host.Activity.HandleUserActivity(user.ID, update)
		return
	}

	e.params.Host.UI.SetMutedIndicator(user.ID, pub.Kind(), muted)
}

// AttachVideoTrack attaches a video track to an element. Re-attaching the
// same track to the same element is a no-op; attachment stays singular.
func (e *SubscriptionEngine) AttachVideoTrack(track types.Track, element types.VideoElement) {
	if attached(track, element) {
		e.params.Logger.Debugw("video track already attached to element; skipping",
			"elementID", element.ElementID())
		return
	}

	track.Detach()
	track.Attach(element)
}

// AttachAudioTrack attaches an audio track to the user's audio element,
// selecting the configured output sink and applying the persisted per-user
// volume plus the global mute-all flag.
func (e *SubscriptionEngine) AttachAudioTrack(userID string, track types.Track, element types.AudioElement) {
	if attached(track, element) {
		e.params.Logger.Debugw("audio track already attached to element; skipping",
			"elementID", element.ElementID())
		return
	}

	settings := e.params.Host.Settings
	if sink := settings.GetString(types.ScopeClient, types.SettingAudioSink); sink != "" {
		if err := element.SetSinkID(sink); err != nil {
			e.params.Logger.Errorw("could not select audio output device", err, "sink", sink)
		}
	}

	track.Detach()
	track.Attach(element)

	volume, ok := settings.GetFloat(types.ScopeClient, "users."+userID+".volume")
	if !ok {
		volume = defaultUserVolume
	}
	element.SetVolume(volume)
	element.SetMuted(settings.GetBool(types.ScopeClient, types.SettingMuteAll))
}

func attached(track types.Track, element types.MediaElement) bool {
	for _, el := range track.AttachedElements() {
		if el.ElementID() == element.ElementID() {
			return true
		}
	}
	return false
}
