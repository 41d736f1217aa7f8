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

package testutils

import (
	"context"
	"sync"

	"github.com/lithammer/shortuuid/v3"

	"github.com/livekit/vtt-av-bridge/pkg/types"
)

type LocalTrack struct {
	lock sync.Mutex

	id       string
	kind     types.TrackKind
	source   types.TrackSource
	muted    bool
	stopped  bool
	elements []types.MediaElement

	Bitrate      float64
	RestartCalls []types.CaptureOptions
	RestartErr   error
}

func NewLocalTrack(kind types.TrackKind, source types.TrackSource) *LocalTrack {
	return &LocalTrack{
		id:     shortuuid.New(),
		kind:   kind,
		source: source,
	}
}

func (t *LocalTrack) SID() string               { return t.id }
func (t *LocalTrack) Kind() types.TrackKind     { return t.kind }
func (t *LocalTrack) Source() types.TrackSource { return t.source }
func (t *LocalTrack) CurrentBitrate() float64   { return t.Bitrate }

func (t *LocalTrack) AttachedElements() []types.MediaElement {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]types.MediaElement{}, t.elements...)
}

func (t *LocalTrack) Attach(element types.MediaElement) {
	t.lock.Lock()
	t.elements = append(t.elements, element)
	t.lock.Unlock()
}

func (t *LocalTrack) Detach() {
	t.lock.Lock()
	t.elements = nil
	t.lock.Unlock()
}

func (t *LocalTrack) IsMuted() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.muted
}

func (t *LocalTrack) Mute() {
	t.lock.Lock()
	t.muted = true
	t.lock.Unlock()
}

func (t *LocalTrack) Unmute() {
	t.lock.Lock()
	t.muted = false
	t.lock.Unlock()
}

func (t *LocalTrack) Restart(_ context.Context, opts types.CaptureOptions) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.RestartCalls = append(t.RestartCalls, opts)
	return t.RestartErr
}

func (t *LocalTrack) Stop() {
	t.lock.Lock()
	t.stopped = true
	t.lock.Unlock()
}

func (t *LocalTrack) IsStopped() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.stopped
}

// RemoteTrack is a subscribed track from a fake remote participant.
type RemoteTrack struct {
	LocalTrack
}

func NewRemoteTrack(kind types.TrackKind, source types.TrackSource) *RemoteTrack {
	rt := &RemoteTrack{}
	rt.id = shortuuid.New()
	rt.kind = kind
	rt.source = source
	return rt
}

type TrackPublication struct {
	lock sync.Mutex

	id     string
	kind   types.TrackKind
	source types.TrackSource
	muted  bool
	track  types.Track

	subscribed       bool
	SubscribeCalls   []bool
	SetSubscribedErr error
}

func NewTrackPublication(kind types.TrackKind, source types.TrackSource) *TrackPublication {
	return &TrackPublication{
		id:     shortuuid.New(),
		kind:   kind,
		source: source,
	}
}

func (p *TrackPublication) SID() string               { return p.id }
func (p *TrackPublication) Kind() types.TrackKind     { return p.kind }
func (p *TrackPublication) Source() types.TrackSource { return p.source }

func (p *TrackPublication) IsMuted() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.muted
}

func (p *TrackPublication) SetMuted(muted bool) {
	p.lock.Lock()
	p.muted = muted
	p.lock.Unlock()
}

func (p *TrackPublication) IsSubscribed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.subscribed
}

func (p *TrackPublication) Track() types.Track {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.track
}

func (p *TrackPublication) SetTrack(track types.Track) {
	p.lock.Lock()
	p.track = track
	p.lock.Unlock()
}

func (p *TrackPublication) SetSubscribed(subscribed bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.SubscribeCalls = append(p.SubscribeCalls, subscribed)
	if p.SetSubscribedErr != nil {
		return p.SetSubscribedErr
	}
	p.subscribed = subscribed
	return nil
}

type Participant struct {
	lock sync.Mutex

	identity string
	metadata string
	local    bool
	quality  types.ConnectionQuality
	pubs     []types.TrackPublication
}

func NewParticipant(identity, metadata string) *Participant {
	return &Participant{
		identity: identity,
		metadata: metadata,
		quality:  types.ConnectionQualityUnknown,
	}
}

func (p *Participant) Identity() string { return p.identity }
func (p *Participant) Metadata() string { return p.metadata }
func (p *Participant) IsLocal() bool    { return p.local }

func (p *Participant) ConnectionQuality() types.ConnectionQuality {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.quality
}

func (p *Participant) Publications() []types.TrackPublication {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]types.TrackPublication{}, p.pubs...)
}

func (p *Participant) AddPublication(pub types.TrackPublication) {
	p.lock.Lock()
	p.pubs = append(p.pubs, pub)
	p.lock.Unlock()
}

type LocalParticipant struct {
	Participant

	publishLock sync.Mutex
	published   []types.LocalTrack

	PublishErr   error
	PublishCalls []*types.TrackPublishOptions
}

func NewLocalParticipant(identity, metadata string) *LocalParticipant {
	lp := &LocalParticipant{}
	lp.identity = identity
	lp.metadata = metadata
	lp.local = true
	lp.quality = types.ConnectionQualityUnknown
	return lp
}

func (p *LocalParticipant) PublishTrack(_ context.Context, track types.LocalTrack, opts *types.TrackPublishOptions) error {
	p.publishLock.Lock()
	defer p.publishLock.Unlock()
	p.PublishCalls = append(p.PublishCalls, opts)
	if p.PublishErr != nil {
		return p.PublishErr
	}
	for _, t := range p.published {
		if t == track {
			return nil
		}
	}
	p.published = append(p.published, track)
	return nil
}

func (p *LocalParticipant) UnpublishTrack(track types.LocalTrack) error {
	p.publishLock.Lock()
	defer p.publishLock.Unlock()
	for i, t := range p.published {
		if t == track {
			p.published = append(p.published[:i], p.published[i+1:]...)
			return nil
		}
	}
	return nil
}

func (p *LocalParticipant) IsPublished(track types.LocalTrack) bool {
	p.publishLock.Lock()
	defer p.publishLock.Unlock()
	for _, t := range p.published {
		if t == track {
			return true
		}
	}
	return false
}

type MediaDevices struct {
	lock sync.Mutex

	AudioErr  error
	VideoErr  error
	ScreenErr error

	AudioCalls  []types.CaptureOptions
	VideoCalls  []types.CaptureOptions
	ScreenCalls []bool

	// DeviceMap is keyed by enumeration kind, e.g. "audioinput"
	DeviceMap map[string]map[string]string
}

func NewMediaDevices() *MediaDevices {
	return &MediaDevices{DeviceMap: make(map[string]map[string]string)}
}

func (d *MediaDevices) CreateAudioTrack(_ context.Context, opts types.CaptureOptions) (types.LocalTrack, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.AudioCalls = append(d.AudioCalls, opts)
	if d.AudioErr != nil {
		return nil, d.AudioErr
	}
	return NewLocalTrack(types.TrackKindAudio, types.TrackSourceMicrophone), nil
}

func (d *MediaDevices) CreateVideoTrack(_ context.Context, opts types.CaptureOptions) (types.LocalTrack, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.VideoCalls = append(d.VideoCalls, opts)
	if d.VideoErr != nil {
		return nil, d.VideoErr
	}
	return NewLocalTrack(types.TrackKindVideo, types.TrackSourceCamera), nil
}

func (d *MediaDevices) CreateScreenTracks(_ context.Context, withAudio bool) ([]types.LocalTrack, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.ScreenCalls = append(d.ScreenCalls, withAudio)
	if d.ScreenErr != nil {
		return nil, d.ScreenErr
	}
	tracks := []types.LocalTrack{NewLocalTrack(types.TrackKindVideo, types.TrackSourceScreenShare)}
	if withAudio {
		tracks = append(tracks, NewLocalTrack(types.TrackKindAudio, types.TrackSourceScreenShareAudio))
	}
	return tracks, nil
}

func (d *MediaDevices) EnumerateDevices(kind string) (map[string]string, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.DeviceMap[kind], nil
}

type ConnectCall struct {
	URL   string
	Token string
	Opts  types.ConnectOptions
}

type RoomSession struct {
	lock sync.Mutex

	state   types.ConnectionState
	local   *LocalParticipant
	remotes []types.Participant
	handler func(types.SessionEvent)

	// ConnectErrs are returned in order, then ConnectErr
	ConnectErr      error
	ConnectErrs     []error
	ConnectCalls    []ConnectCall
	DisconnectCalls []bool
}

func NewRoomSession(local *LocalParticipant) *RoomSession {
	return &RoomSession{local: local}
}

func (s *RoomSession) Connect(_ context.Context, url string, token string, opts types.ConnectOptions) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ConnectCalls = append(s.ConnectCalls, ConnectCall{url, token, opts})

	if len(s.ConnectErrs) > 0 {
		err := s.ConnectErrs[0]
		s.ConnectErrs = s.ConnectErrs[1:]
		if err != nil {
			return err
		}
	} else if s.ConnectErr != nil {
		return s.ConnectErr
	}

	s.state = types.ConnectionStateConnected
	return nil
}

func (s *RoomSession) Disconnect(stopTracks bool) {
	s.lock.Lock()
	s.DisconnectCalls = append(s.DisconnectCalls, stopTracks)
	s.state = types.ConnectionStateDisconnected
	s.lock.Unlock()
}

func (s *RoomSession) State() types.ConnectionState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

func (s *RoomSession) LocalParticipant() types.LocalParticipant {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.local == nil {
		return nil
	}
	return s.local
}

func (s *RoomSession) RemoteParticipants() []types.Participant {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]types.Participant{}, s.remotes...)
}

func (s *RoomSession) AddRemote(p types.Participant) {
	s.lock.Lock()
	s.remotes = append(s.remotes, p)
	s.lock.Unlock()
}

func (s *RoomSession) OnEvent(handler func(event types.SessionEvent)) {
	s.lock.Lock()
	s.handler = handler
	s.lock.Unlock()
}

// Emit drives the installed event handler the way the transport would.
func (s *RoomSession) Emit(ev types.SessionEvent) {
	s.lock.Lock()
	handler := s.handler
	s.lock.Unlock()
	if handler != nil {
		handler(ev)
	}
}

type Transport struct {
	Session      *RoomSession
	MediaDevices *MediaDevices

	SessionOpts []types.SessionOptions
}

func NewTransport(session *RoomSession) *Transport {
	return &Transport{
		Session:      session,
		MediaDevices: NewMediaDevices(),
	}
}

func (t *Transport) NewSession(opts types.SessionOptions) types.RoomSession {
	t.SessionOpts = append(t.SessionOpts, opts)
	return t.Session
}

func (t *Transport) Devices() types.MediaDevices {
	return t.MediaDevices
}
