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
	"github.com/livekit/vtt-av-bridge/pkg/types"
)

type eventDispatcherParams struct {
	Session  *SessionManager
	Registry *Registry
	Engine   *SubscriptionEngine
	Logger   logger.Logger

	RequestRender func()
}

// eventDispatcher fans transport events out to the managers through a
// handler table built once at setup. Events arrive sequentially; handlers
// must not block.
type eventDispatcher struct {
	params   eventDispatcherParams
	handlers map[types.EventName]func(types.SessionEvent)
}

func newEventDispatcher(params eventDispatcherParams) *eventDispatcher {
	d := &eventDispatcher{params: params}

	registry := params.Registry
	engine := params.Engine
	session := params.Session

	d.handlers = map[types.EventName]func(types.SessionEvent){
		types.EventParticipantConnected: func(ev types.SessionEvent) {
			registry.OnParticipantConnected(ev.Participant)
		},
		types.EventParticipantDisconnected: func(ev types.SessionEvent) {
			registry.OnParticipantDisconnected(ev.Participant)
		},
		types.EventTrackPublished: func(ev types.SessionEvent) {
			engine.TrackPublished(ev.Publication, ev.Participant)
		},
		types.EventTrackUnpublished: func(ev types.SessionEvent) {
			params.RequestRender()
		},
		types.EventTrackSubscribed: func(ev types.SessionEvent) {
			engine.TrackSubscribed(ev.Track, ev.Publication, ev.Participant)
		},
		types.EventTrackUnsubscribed: func(ev types.SessionEvent) {
			engine.TrackUnsubscribed(ev.Track, ev.Publication, ev.Participant)
		},
		types.EventTrackSubscriptionFailed: func(ev types.SessionEvent) {
			params.Logger.Errorw("track subscription failed", ev.Error,
				"participant", ev.Participant.Identity())
		},
		types.EventTrackMuted: func(ev types.SessionEvent) {
			engine.TrackMuteChanged(ev.Publication, ev.Participant)
		},
		types.EventTrackUnmuted: func(ev types.SessionEvent) {
			engine.TrackMuteChanged(ev.Publication, ev.Participant)
		},
		types.EventIsSpeakingChanged: func(ev types.SessionEvent) {
			registry.OnSpeakingChanged(ev.Participant, ev.Speaking)
		},
		types.EventConnectionQuality: func(ev types.SessionEvent) {
			registry.OnConnectionQualityChanged(ev.Participant, ev.Quality)
		},
		types.EventMetadataChanged: func(ev types.SessionEvent) {
			registry.OnMetadataChanged(ev.Participant)
		},
		types.EventAudioPlayback: func(ev types.SessionEvent) {
			session.onAudioPlayback(ev.CanPlayback)
		},
		types.EventDisconnected: func(ev types.SessionEvent) {
			session.onDisconnected()
		},
		types.EventReconnecting: func(ev types.SessionEvent) {
			session.onReconnecting()
		},
		types.EventReconnected: func(ev types.SessionEvent) {
			session.onReconnected()
		},
	}
	return d
}

func (d *eventDispatcher) dispatch(ev types.SessionEvent) {
	handler, ok := d.handlers[ev.Name]
	if !ok {
		d.params.Logger.Debugw("unhandled transport event", "event", ev.Name)
		return
	}
	handler(ev)
}
