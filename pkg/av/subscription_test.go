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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/testutils"
	"github.com/livekit/vtt-av-bridge/pkg/types"
)

type subscriptionFixture struct {
	host   *testutils.Host
	engine *SubscriptionEngine
}

func newSubscriptionFixture(t *testing.T) *subscriptionFixture {
	t.Helper()

	f := &subscriptionFixture{host: testutils.NewHost("gm", "GM")}
	f.engine = NewSubscriptionEngine(SubscriptionEngineParams{
		Host:     f.host.Context,
		Identity: NewIdentityMapper(f.host.Users),
		Logger:   logger.GetLogger(),
	})
	return f
}

func (f *subscriptionFixture) remoteParticipant(t *testing.T, userID string) *testutils.Participant {
	t.Helper()

	f.host.Users.Add(types.UserInfo{ID: userID, Name: userID, Active: true})
	md, err := (JoinMetadata{FVTTUserID: userID}).Encode()
	require.NoError(t, err)
	return testutils.NewParticipant("identity-"+userID, md)
}

func TestAdmissionControl(t *testing.T) {
	t.Run("no restrictions leaves auto-subscribe alone", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		p := f.remoteParticipant(t, "u1")
		pub := testutils.NewTrackPublication(types.TrackKindVideo, types.TrackSourceCamera)

		f.engine.TrackPublished(pub, p)
		assert.Empty(t, pub.SubscribeCalls)
	})

	t.Run("disabled kind is never subscribed", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		f.host.Settings.Set(types.ScopeWorld, types.SettingDisableReceivingVideo, true)
		p := f.remoteParticipant(t, "u1")

		videoPub := testutils.NewTrackPublication(types.TrackKindVideo, types.TrackSourceCamera)
		audioPub := testutils.NewTrackPublication(types.TrackKindAudio, types.TrackSourceMicrophone)

		f.engine.TrackPublished(videoPub, p)
		f.engine.TrackPublished(audioPub, p)

		assert.Empty(t, videoPub.SubscribeCalls)
		assert.Equal(t, []bool{true}, audioPub.SubscribeCalls)
	})
}

func TestTrackSubscribed(t *testing.T) {
	t.Run("skips when the video element has not rendered", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		p := f.remoteParticipant(t, "u1")
		track := testutils.NewRemoteTrack(types.TrackKindVideo, types.TrackSourceCamera)
		pub := testutils.NewTrackPublication(types.TrackKindVideo, types.TrackSourceCamera)

		f.engine.TrackSubscribed(track, pub, p)
		assert.Empty(t, track.AttachedElements())
	})

	t.Run("attaches video to the rendered element", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		p := f.remoteParticipant(t, "u1")
		el := f.host.UI.AddVideoElement("u1")
		track := testutils.NewRemoteTrack(types.TrackKindVideo, types.TrackSourceCamera)
		pub := testutils.NewTrackPublication(types.TrackKindVideo, types.TrackSourceCamera)

		f.engine.TrackSubscribed(track, pub, p)
		require.Len(t, track.AttachedElements(), 1)
		assert.Equal(t, el.ElementID(), track.AttachedElements()[0].ElementID())
	})

	t.Run("attaches audio with sink, volume and mute-all", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		p := f.remoteParticipant(t, "u1")
		f.host.UI.AddVideoElement("u1")
		f.host.Settings.Set(types.ScopeClient, types.SettingAudioSink, "sink-1")
		f.host.Settings.Set(types.ScopeClient, "users.u1.volume", 0.4)
		f.host.Settings.Set(types.ScopeClient, types.SettingMuteAll, true)

		track := testutils.NewRemoteTrack(types.TrackKindAudio, types.TrackSourceMicrophone)
		pub := testutils.NewTrackPublication(types.TrackKindAudio, types.TrackSourceMicrophone)

		f.engine.TrackSubscribed(track, pub, p)

		el := f.host.UI.AudioElements["u1/microphone"]
		require.NotNil(t, el)
		assert.Equal(t, "sink-1", el.Sink)
		assert.Equal(t, 0.4, el.Volume)
		assert.True(t, el.Muted)
		assert.Len(t, track.AttachedElements(), 1)
	})

	t.Run("volume defaults to full", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		p := f.remoteParticipant(t, "u1")
		f.host.UI.AddVideoElement("u1")

		track := testutils.NewRemoteTrack(types.TrackKindAudio, types.TrackSourceMicrophone)
		pub := testutils.NewTrackPublication(types.TrackKindAudio, types.TrackSourceMicrophone)
		f.engine.TrackSubscribed(track, pub, p)

		el := f.host.UI.AudioElements["u1/microphone"]
		require.NotNil(t, el)
		assert.Equal(t, defaultUserVolume, el.Volume)
	})
}

func TestIdempotentAttach(t *testing.T) {
	f := newSubscriptionFixture(t)
	el := f.host.UI.AddVideoElement("u1")
	track := testutils.NewRemoteTrack(types.TrackKindVideo, types.TrackSourceCamera)

	f.engine.AttachVideoTrack(track, el)
	f.engine.AttachVideoTrack(track, el)
	assert.Len(t, track.AttachedElements(), 1)

	// a different element replaces the attachment rather than stacking
	other := f.host.UI.AddVideoElement("u2")
	f.engine.AttachVideoTrack(track, other)
	require.Len(t, track.AttachedElements(), 1)
	assert.Equal(t, other.ElementID(), track.AttachedElements()[0].ElementID())
}

func TestTrackUnsubscribed(t *testing.T) {
	f := newSubscriptionFixture(t)
	p := f.remoteParticipant(t, "u1")
	el := f.host.UI.AddVideoElement("u1")
	track := testutils.NewRemoteTrack(types.TrackKindVideo, types.TrackSourceCamera)
	pub := testutils.NewTrackPublication(types.TrackKindVideo, types.TrackSourceCamera)

	f.engine.AttachVideoTrack(track, el)
	f.engine.TrackUnsubscribed(track, pub, p)
	assert.Empty(t, track.AttachedElements())
}

func TestTrackMuteChanged(t *testing.T) {
	t.Run("local mute is log-only", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		local := testutils.NewLocalParticipant("gm-identity", "")
		pub := testutils.NewTrackPublication(types.TrackKindAudio, types.TrackSourceMicrophone)
		pub.SetMuted(true)

		f.engine.TrackMuteChanged(pub, local)
		assert.Empty(t, f.host.UI.MutedIndicators)
		assert.Empty(t, f.host.Activity.Handled)
	})

	t.Run("remote mute toggles the status indicator", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		p := f.remoteParticipant(t, "u1")
		pub := testutils.NewTrackPublication(types.TrackKindAudio, types.TrackSourceMicrophone)
		pub.SetMuted(true)

		f.engine.TrackMuteChanged(pub, p)
		assert.True(t, f.host.UI.MutedIndicators["u1/audio"])
	})

	t.Run("external AV participants feed host activity", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		f.host.Users.Add(types.UserInfo{ID: "u2", Name: "u2", Active: true})
		md, err := (JoinMetadata{FVTTUserID: "u2", UseExternalAV: true}).Encode()
		require.NoError(t, err)
		p := testutils.NewParticipant("identity-u2", md)

		pub := testutils.NewTrackPublication(types.TrackKindVideo, types.TrackSourceCamera)
		pub.SetMuted(true)
		f.engine.TrackMuteChanged(pub, p)

		require.Len(t, f.host.Activity.Handled, 1)
		handled := f.host.Activity.Handled[0]
		assert.Equal(t, "u2", handled.UserID)
		require.NotNil(t, handled.Update.Hidden)
		assert.True(t, *handled.Update.Hidden)
		assert.Empty(t, f.host.UI.MutedIndicators)
	})
}
