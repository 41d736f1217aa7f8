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
	"math"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/telemetry"
	"github.com/livekit/vtt-av-bridge/pkg/types"
)

func breakoutSettingKey(userID string) string {
	return "users." + userID + ".liveKitBreakoutRoom"
}

type RegistryParams struct {
	Host     *types.Context
	Identity *IdentityMapper
	Engine   *SubscriptionEngine
	Logger   logger.Logger

	// BreakoutRoom returns the active breakout room id, "" in the primary
	// meeting room
	BreakoutRoom func() string
	// CurrentRoom returns the room the live session is connected to
	CurrentRoom   func() string
	RequestRender func()
}

// Registry owns the live set of connected participants, keyed by host user
// id. The mapping from participant to user is derived exactly once, at
// registration.
type Registry struct {
	params RegistryParams

	lock         sync.RWMutex
	participants map[string]types.Participant
}

func NewRegistry(params RegistryParams) *Registry {
	return &Registry{
		params:       params,
		participants: make(map[string]types.Participant),
	}
}

// AddLocal registers the local participant under the local user id.
func (r *Registry) AddLocal(p types.Participant) {
	r.lock.Lock()
	r.participants[r.params.Host.UserID] = p
	r.lock.Unlock()
}

// OnParticipantConnected registers a newly connected remote participant.
// Participants that don't resolve to a host user stay invisible; that is a
// fail-safe, not an error path worth crashing over. Tracks the participant
// published before this handler ran are fed through admission control here,
// since their publish events have already come and gone.
func (r *Registry) OnParticipantConnected(p types.Participant) {
	r.params.Logger.Debugw("onParticipantConnected", "participant", p.Identity())

	user, err := r.params.Identity.Resolve(p)
	if err != nil {
		r.params.Logger.Errorw("joining participant is not a host user; cannot display them", err,
			"participant", p.Identity())
		return
	}

	if !user.Active {
		// a participant actively streaming media is definitionally online
		r.params.Logger.Warnw("joining user is not listed as active; setting to active", nil,
			"userID", user.ID)
		r.params.Host.Users.SetActive(user.ID, true)
		r.params.RequestRender()
	}

	r.lock.Lock()
	r.participants[user.ID] = p
	r.lock.Unlock()
	telemetry.ParticipantJoined()

	// joining the main conference invalidates any stale breakout assignment
	if r.params.BreakoutRoom() == "" {
		r.params.Host.Settings.Set(types.ScopeClient, breakoutSettingKey(user.ID), "")
	}

	for _, pub := range p.Publications() {
		r.params.Engine.TrackPublished(pub, p)
	}

	r.params.RequestRender()
}

// OnParticipantDisconnected removes the registry entry and clears the
// user's breakout assignment when it matches the room just vacated, so a
// reconnecting client doesn't auto-rejoin a dead breakout.
func (r *Registry) OnParticipantDisconnected(p types.Participant) {
	r.params.Logger.Debugw("onParticipantDisconnected", "participant", p.Identity())

	user, err := r.params.Identity.Resolve(p)
	if err != nil {
		r.params.Logger.Warnw("leaving participant is not a host user", err,
			"participant", p.Identity())
		return
	}

	r.lock.Lock()
	_, ok := r.participants[user.ID]
	if ok {
		delete(r.participants, user.ID)
	}
	r.lock.Unlock()
	if ok {
		telemetry.ParticipantLeft()
	}

	settings := r.params.Host.Settings
	currentRoom := r.params.CurrentRoom()
	if settings.GetString(types.ScopeClient, breakoutSettingKey(user.ID)) == currentRoom &&
		currentRoom == r.params.BreakoutRoom() {
		settings.Set(types.ScopeClient, breakoutSettingKey(user.ID), "")
	}

	r.params.RequestRender()
}

// OnSpeakingChanged routes speaking state to the host's camera views.
func (r *Registry) OnSpeakingChanged(p types.Participant, speaking bool) {
	user, err := r.params.Identity.Resolve(p)
	if err != nil {
		return
	}
	r.params.Host.UI.SetUserSpeaking(user.ID, speaking)
}

// OnConnectionQualityChanged updates the quality indicator when the display
// setting is enabled.
func (r *Registry) OnConnectionQualityChanged(p types.Participant, quality types.ConnectionQuality) {
	r.params.Logger.Debugw("onConnectionQualityChanged", "participant", p.Identity(), "quality", quality)

	if !r.params.Host.Settings.GetBool(types.ScopeWorld, types.SettingDisplayConnectionQuality) {
		return
	}

	user, err := r.params.Identity.Resolve(p)
	if err != nil {
		r.params.Logger.Warnw("quality changed participant is not a host user", err,
			"participant", p.Identity())
		return
	}
	r.params.Host.UI.SetConnectionQuality(user.ID, quality)
}

func (r *Registry) OnMetadataChanged(p types.Participant) {
	r.params.Logger.Debugw("participant metadata changed", "participant", p.Identity())
}

func (r *Registry) Participant(userID string) (types.Participant, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.participants[userID]
	return p, ok
}

// ConnectedUserIDs returns the user ids of all registered participants,
// local included, in stable order.
func (r *Registry) ConnectedUserIDs() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear drops every entry, used when the session fully disconnects.
func (r *Registry) Clear() {
	r.lock.Lock()
	r.participants = make(map[string]types.Participant)
	r.lock.Unlock()
	telemetry.ParticipantsReset()
}

// UserAudioTrack returns the user's subscribed audio track, if any.
func (r *Registry) UserAudioTrack(userID string) types.Track {
	return r.userTrack(userID, types.TrackKindAudio)
}

// UserVideoTrack returns the user's subscribed video track, if any.
func (r *Registry) UserVideoTrack(userID string) types.Track {
	return r.userTrack(userID, types.TrackKindVideo)
}

func (r *Registry) userTrack(userID string, kind types.TrackKind) types.Track {
	p, ok := r.Participant(userID)
	if !ok {
		return nil
	}
	for _, pub := range p.Publications() {
		if pub.Kind() == kind && pub.Track() != nil {
			return pub.Track()
		}
	}
	return nil
}

// UserStatistics aggregates the current bitrate across a user's track
// publications for diagnostic display. Returns "" when no data is flowing.
func (r *Registry) UserStatistics(userID string) string {
	p, ok := r.Participant(userID)
	if !ok {
		return ""
	}

	var totalBitrate float64
	for _, pub := range p.Publications() {
		if track := pub.Track(); track != nil {
			totalBitrate += track.CurrentBitrate()
		}
	}
	if totalBitrate <= 0 {
		return ""
	}
	return humanize.Comma(int64(math.Round(totalBitrate/1024))) + " kbps"
}

func (r *Registry) AllUserStatistics() map[string]string {
	stats := make(map[string]string)
	for _, userID := range r.ConnectedUserIDs() {
		stats[userID] = r.UserStatistics(userID)
	}
	return stats
}
