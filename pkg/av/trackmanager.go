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
	"sync"

	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/types"
)

const (
	screenShareAudioBitrate = 160000

	videoWidthDefault    = 320
	videoHeightDefault   = 240
	videoWidthSimulcast  = 1280
	videoHeightSimulcast = 720
)

type TrackManagerParams struct {
	Host    *types.Context
	Devices types.MediaDevices
	Logger  logger.Logger

	// LocalParticipant returns nil while the session is not connected
	LocalParticipant func() types.LocalParticipant
	IsConnected      func() bool
	// AttachVideo is the engine's idempotent attach, reused for the local
	// camera preview
	AttachVideo func(track types.Track, element types.VideoElement)
	Render      func()
}

// TrackManager exclusively owns the local capture tracks: one microphone,
// one camera, plus a transient set of screen share tracks.
type TrackManager struct {
	params TrackManagerParams

	lock         sync.Mutex
	audioTrack   types.LocalTrack
	videoTrack   types.LocalTrack
	screenTracks []types.LocalTrack

	audioBroadcastEnabled atomic.Bool
}

func NewTrackManager(params TrackManagerParams) *TrackManager {
	return &TrackManager{params: params}
}

// AudioCaptureParams derives the microphone capture request from the current
// device setting and broadcast permission. Returns nil when no capture
// should exist.
func (t *TrackManager) AudioCaptureParams() *types.CaptureOptions {
	host := t.params.Host
	src := host.Settings.GetString(types.ScopeClient, types.SettingAudioSrc)
	if src == "" || src == types.DeviceDisabled {
		return nil
	}
	if !host.Permissions.CanUserBroadcastAudio(host.UserID) {
		return nil
	}

	opts := &types.CaptureOptions{DeviceID: src}
	if host.Settings.GetBool(types.ScopeWorld, types.SettingAudioMusicMode) {
		// stereo capture with voice processing off, for music broadcasts
		off := false
		opts.ChannelCount = 2
		opts.EchoCancellation = &off
		opts.NoiseSuppression = &off
		opts.AutoGainControl = &off
	}
	return opts
}

// VideoCaptureParams derives the camera capture request. Resolution is
// raised when simulcast is enabled since lower layers are generated anyway.
func (t *TrackManager) VideoCaptureParams() *types.CaptureOptions {
	host := t.params.Host
	src := host.Settings.GetString(types.ScopeClient, types.SettingVideoSrc)
	if src == "" || src == types.DeviceDisabled {
		return nil
	}
	if !host.Permissions.CanUserBroadcastVideo(host.UserID) {
		return nil
	}

	opts := &types.CaptureOptions{
		DeviceID: src,
		Width:    videoWidthDefault,
		Height:   videoHeightDefault,
	}
	if t.simulcastEnabled() {
		opts.Width = videoWidthSimulcast
		opts.Height = videoHeightSimulcast
	}
	return opts
}

func (t *TrackManager) simulcastEnabled() bool {
	return t.params.Host.Settings.GetBool(types.ScopeWorld, types.SettingSimulcast)
}

func (t *TrackManager) isVoiceAlways() bool {
	return t.params.Host.Settings.GetString(types.ScopeClient, types.SettingVoiceMode) == types.VoiceModeAlways
}

// InitializeTracks acquires the local audio and video captures. A failure to
// acquire one device is logged and leaves that track nil; the other track
// still initializes.
func (t *TrackManager) InitializeTracks(ctx context.Context) {
	t.initializeAudioTrack(ctx)
	t.initializeVideoTrack(ctx)
}

func (t *TrackManager) initializeAudioTrack(ctx context.Context) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.audioTrack = nil
	opts := t.AudioCaptureParams()
	if opts == nil {
		return
	}

	track, err := t.params.Devices.CreateAudioTrack(ctx, *opts)
	if err != nil {
		t.params.Logger.Errorw("unable to acquire local audio", err, "deviceID", opts.DeviceID)
		return
	}
	t.audioTrack = track

	host := t.params.Host
	if !(t.isVoiceAlways() && host.Permissions.CanUserShareAudio(host.UserID)) {
		t.audioTrack.Mute()
	}
}

func (t *TrackManager) initializeVideoTrack(ctx context.Context) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.videoTrack = nil
	opts := t.VideoCaptureParams()
	if opts == nil {
		return
	}

	track, err := t.params.Devices.CreateVideoTrack(ctx, *opts)
	if err != nil {
		t.params.Logger.Errorw("unable to acquire local video", err, "deviceID", opts.DeviceID)
		return
	}
	t.videoTrack = track

	host := t.params.Host
	if !host.Permissions.CanUserShareVideo(host.UserID) {
		t.videoTrack.Mute()
	}
}

// ChangeAudioSource reconciles the microphone track against the current
// settings: tears it down when capture should no longer exist, acquires and
// publishes when it should but doesn't, and otherwise restarts the existing
// track in place.
func (t *TrackManager) ChangeAudioSource(ctx context.Context) {
	opts := t.AudioCaptureParams()

	t.lock.Lock()
	existing := t.audioTrack
	t.lock.Unlock()

	switch {
	case existing != nil && opts == nil:
		t.lock.Lock()
		t.unpublishTrack(existing)
		existing.Stop()
		t.audioTrack = nil
		t.lock.Unlock()
		t.broadcastMuted(true)

	case existing == nil:
		t.initializeAudioTrack(ctx)
		t.lock.Lock()
		track := t.audioTrack
		t.lock.Unlock()
		if track != nil {
			t.publishTrack(ctx, track, nil)
			t.broadcastMuted(false)
			t.params.Render()
		}

	default:
		// device change only; restart in place rather than recreating
		if err := existing.Restart(ctx, *opts); err != nil {
			t.params.Logger.Errorw("could not restart audio track", err, "deviceID", opts.DeviceID)
		}
	}
}

// ChangeVideoSource mirrors ChangeAudioSource for the camera track, also
// re-attaching the local preview after a fresh publish.
func (t *TrackManager) ChangeVideoSource(ctx context.Context) {
	opts := t.VideoCaptureParams()

	t.lock.Lock()
	existing := t.videoTrack
	t.lock.Unlock()

	switch {
	case existing != nil && opts == nil:
		t.lock.Lock()
		t.unpublishTrack(existing)
		existing.Detach()
		existing.Stop()
		t.videoTrack = nil
		t.lock.Unlock()
		t.broadcastHidden(true)

	case existing == nil:
		t.initializeVideoTrack(ctx)
		t.lock.Lock()
		track := t.videoTrack
		t.lock.Unlock()
		if track != nil {
			t.publishTrack(ctx, track, &types.TrackPublishOptions{Simulcast: t.simulcastEnabled()})
			t.attachLocalPreview(track)
			t.broadcastHidden(false)
			t.params.Render()
		}

	default:
		if err := existing.Restart(ctx, *opts); err != nil {
			t.params.Logger.Errorw("could not restart video track", err, "deviceID", opts.DeviceID)
		}
	}
}

// SetBroadcastEnabled records the host's broadcast intent and applies it to
// the audio track.
func (t *TrackManager) SetBroadcastEnabled(broadcast bool) {
	t.audioBroadcastEnabled.Store(broadcast)
	t.SetAudioEnabled(broadcast)
}

func (t *TrackManager) BroadcastEnabled() bool {
	return t.audioBroadcastEnabled.Load()
}

// SetAudioEnabled mutes or unmutes the existing audio track. Safe to call
// redundantly; the current muted state is checked before acting.
func (t *TrackManager) SetAudioEnabled(enable bool) {
	t.lock.Lock()
	track := t.audioTrack
	t.lock.Unlock()

	if track == nil {
		t.params.Logger.Debugw("setAudioEnabled called but no audio track available")
		return
	}
	if !t.params.IsConnected() {
		t.params.Logger.Debugw("setAudioEnabled called but session is not connected")
		return
	}

	switch {
	case !enable && !track.IsMuted():
		t.params.Logger.Debugw("muting audio track")
		track.Mute()
	case enable && track.IsMuted():
		t.params.Logger.Debugw("un-muting audio track")
		track.Unmute()
	default:
		t.params.Logger.Debugw("audio track already in requested state", "enable", enable)
	}
}

// SetVideoEnabled mutes or unmutes the camera track. Un-muting an
// unpublished track would error in the transport, so that case is skipped.
func (t *TrackManager) SetVideoEnabled(enable bool) {
	t.lock.Lock()
	track := t.videoTrack
	t.lock.Unlock()

	if track == nil {
		t.params.Logger.Debugw("setVideoEnabled called but no video track available")
		return
	}

	if !enable {
		t.params.Logger.Debugw("muting video track")
		track.Mute()
	} else {
		lp := t.params.LocalParticipant()
		if lp == nil || !lp.IsPublished(track) {
			t.params.Logger.Debugw("un-mute requested but video track is not published")
			return
		}
		t.params.Logger.Debugw("un-muting video track")
		track.Unmute()
	}
	t.params.Render()
}

// ShareScreen acquires and publishes screen capture tracks, parking the
// camera publication while the share is active.
func (t *TrackManager) ShareScreen(ctx context.Context, enabled bool) error {
	t.params.Logger.Infow("shareScreen", "enabled", enabled)

	if enabled {
		screenTracks, err := t.params.Devices.CreateScreenTracks(ctx, true)
		if err != nil {
			return err
		}

		t.lock.Lock()
		t.screenTracks = screenTracks
		camera := t.videoTrack
		t.lock.Unlock()

		for _, screenTrack := range screenTracks {
			t.params.Logger.Debugw("publishing screen track", "kind", screenTrack.Kind())
			if screenTrack.Kind() == types.TrackKindVideo {
				if camera != nil {
					t.lock.Lock()
					t.unpublishTrack(camera)
					t.lock.Unlock()
				}
				t.attachLocalPreview(screenTrack)
				t.publishTrack(ctx, screenTrack, nil)
			} else {
				t.publishTrack(ctx, screenTrack, &types.TrackPublishOptions{AudioBitrate: screenShareAudioBitrate})
			}
		}
		return nil
	}

	t.lock.Lock()
	screenTracks := t.screenTracks
	t.screenTracks = nil
	camera := t.videoTrack
	t.lock.Unlock()

	for _, screenTrack := range screenTracks {
		t.params.Logger.Debugw("unpublishing screen track", "kind", screenTrack.Kind())
		t.lock.Lock()
		t.unpublishTrack(screenTrack)
		t.lock.Unlock()

		if screenTrack.Kind() == types.TrackKindVideo && camera != nil {
			t.publishTrack(ctx, camera, &types.TrackPublishOptions{Simulcast: t.simulcastEnabled()})
			t.attachLocalPreview(camera)
			if camera.IsMuted() {
				camera.Unmute()
			}
		}
		screenTrack.Stop()
	}
	return nil
}

// PublishTracks publishes whatever local tracks exist, used after a
// (re)connect since disconnect keeps captures alive.
func (t *TrackManager) PublishTracks(ctx context.Context) {
	t.lock.Lock()
	audio := t.audioTrack
	video := t.videoTrack
	t.lock.Unlock()

	if audio != nil {
		t.publishTrack(ctx, audio, nil)
	}
	if video != nil {
		t.publishTrack(ctx, video, &types.TrackPublishOptions{Simulcast: t.simulcastEnabled()})
	}
}

func (t *TrackManager) IsAudioEnabled() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.audioTrack != nil
}

func (t *TrackManager) IsVideoEnabled() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.videoTrack != nil
}

func (t *TrackManager) AudioTrack() types.LocalTrack {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.audioTrack
}

func (t *TrackManager) VideoTrack() types.LocalTrack {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.videoTrack
}

// Close stops all local captures. Only used when the bridge itself shuts
// down; a plain disconnect keeps tracks for fast reconnects.
func (t *TrackManager) Close() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.audioTrack != nil {
		t.audioTrack.Stop()
		t.audioTrack = nil
	}
	if t.videoTrack != nil {
		t.videoTrack.Detach()
		t.videoTrack.Stop()
		t.videoTrack = nil
	}
	for _, track := range t.screenTracks {
		track.Stop()
	}
	t.screenTracks = nil
}

func (t *TrackManager) publishTrack(ctx context.Context, track types.LocalTrack, opts *types.TrackPublishOptions) {
	lp := t.params.LocalParticipant()
	if lp == nil {
		t.params.Logger.Debugw("skipping publish, not connected", "kind", track.Kind())
		return
	}
	if err := lp.PublishTrack(ctx, track, opts); err != nil {
		t.params.Logger.Errorw("could not publish track", err, "kind", track.Kind())
	}
}

// callers hold t.lock
func (t *TrackManager) unpublishTrack(track types.LocalTrack) {
	lp := t.params.LocalParticipant()
	if lp == nil {
		return
	}
	if err := lp.UnpublishTrack(track); err != nil {
		t.params.Logger.Warnw("could not unpublish track", err, "kind", track.Kind())
	}
}

func (t *TrackManager) attachLocalPreview(track types.Track) {
	element, ok := t.params.Host.UI.UserVideoElement(t.params.Host.UserID)
	if !ok {
		t.params.Logger.Debugw("local video element not ready; skipping preview attach")
		return
	}
	t.params.AttachVideo(track, element)
}

func (t *TrackManager) broadcastMuted(muted bool) {
	t.params.Host.Activity.BroadcastActivity(types.ActivityUpdate{Muted: &muted})
}

func (t *TrackManager) broadcastHidden(hidden bool) {
	t.params.Host.Activity.BroadcastActivity(types.ActivityUpdate{Hidden: &hidden})
}
