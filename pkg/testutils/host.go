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

// Package testutils provides in-memory fakes for the host capabilities and
// the media transport.
package testutils

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/livekit/vtt-av-bridge/pkg/types"
)

type SettingsStore struct {
	lock   sync.Mutex
	values map[string]interface{}
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string]interface{})}
}

func settingKey(scope types.SettingScope, key string) string {
	return string(scope) + "/" + key
}

func (s *SettingsStore) GetString(scope types.SettingScope, key string) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	if v, ok := s.values[settingKey(scope, key)].(string); ok {
		return v
	}
	return ""
}

func (s *SettingsStore) GetBool(scope types.SettingScope, key string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if v, ok := s.values[settingKey(scope, key)].(bool); ok {
		return v
	}
	return false
}

func (s *SettingsStore) GetFloat(scope types.SettingScope, key string) (float64, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	v, ok := s.values[settingKey(scope, key)].(float64)
	return v, ok
}

func (s *SettingsStore) Set(scope types.SettingScope, key string, value interface{}) {
	s.lock.Lock()
	s.values[settingKey(scope, key)] = value
	s.lock.Unlock()
}

type UserDirectory struct {
	lock  sync.Mutex
	users map[string]types.UserInfo
}

func NewUserDirectory(users ...types.UserInfo) *UserDirectory {
	d := &UserDirectory{users: make(map[string]types.UserInfo)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *UserDirectory) Add(user types.UserInfo) {
	d.lock.Lock()
	d.users[user.ID] = user
	d.lock.Unlock()
}

func (d *UserDirectory) User(id string) (types.UserInfo, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	u, ok := d.users[id]
	return u, ok
}

func (d *UserDirectory) SetActive(id string, active bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if u, ok := d.users[id]; ok {
		u.Active = active
		d.users[id] = u
	}
}

// Permissions answers every predicate from a flag, default all allowed.
type Permissions struct {
	DenyBroadcastAudio bool
	DenyBroadcastVideo bool
	DenyShareAudio     bool
	DenyShareVideo     bool
}

func (p *Permissions) CanUserBroadcastAudio(string) bool { return !p.DenyBroadcastAudio }
func (p *Permissions) CanUserBroadcastVideo(string) bool { return !p.DenyBroadcastVideo }
func (p *Permissions) CanUserShareAudio(string) bool     { return !p.DenyShareAudio }
func (p *Permissions) CanUserShareVideo(string) bool     { return !p.DenyShareVideo }

type VideoElement struct {
	ID string
}

func (e *VideoElement) ElementID() string { return e.ID }

type AudioElement struct {
	ID      string
	Sink    string
	Volume  float64
	Muted   bool
	SinkErr error
}

func (e *AudioElement) ElementID() string { return e.ID }

func (e *AudioElement) SetSinkID(deviceID string) error {
	if e.SinkErr != nil {
		return e.SinkErr
	}
	e.Sink = deviceID
	return nil
}

func (e *AudioElement) SetVolume(volume float64) { e.Volume = volume }
func (e *AudioElement) SetMuted(muted bool)      { e.Muted = muted }

type Notification struct {
	Level     types.NotifyLevel
	Message   string
	Permanent bool
}

// UIBridge records every UI interaction. Video elements must be added by
// the test; audio elements are created on demand once a video element
// exists, mirroring the host contract.
type UIBridge struct {
	lock sync.Mutex

	VideoElements   map[string]*VideoElement
	AudioElements   map[string]*AudioElement
	Speaking        map[string]bool
	Quality         map[string]types.ConnectionQuality
	MutedIndicators map[string]bool
	Buttons         []bool
	Notifications   []Notification
	ConfigOpened    int
	RenderCount     atomic.Int32
}

func NewUIBridge() *UIBridge {
	return &UIBridge{
		VideoElements:   make(map[string]*VideoElement),
		AudioElements:   make(map[string]*AudioElement),
		Speaking:        make(map[string]bool),
		Quality:         make(map[string]types.ConnectionQuality),
		MutedIndicators: make(map[string]bool),
	}
}

func (u *UIBridge) AddVideoElement(userID string) *VideoElement {
	u.lock.Lock()
	defer u.lock.Unlock()
	el := &VideoElement{ID: "video-" + userID}
	u.VideoElements[userID] = el
	return el
}

func (u *UIBridge) UserVideoElement(userID string) (types.VideoElement, bool) {
	u.lock.Lock()
	defer u.lock.Unlock()
	el, ok := u.VideoElements[userID]
	return el, ok
}

func (u *UIBridge) UserAudioElement(userID string, source types.TrackSource) (types.AudioElement, bool) {
	u.lock.Lock()
	defer u.lock.Unlock()
	if _, ok := u.VideoElements[userID]; !ok {
		return nil, false
	}
	key := userID + "/" + string(source)
	el, ok := u.AudioElements[key]
	if !ok {
		el = &AudioElement{ID: "audio-" + key}
		u.AudioElements[key] = el
	}
	return el, true
}

func (u *UIBridge) SetUserSpeaking(userID string, speaking bool) {
	u.lock.Lock()
	u.Speaking[userID] = speaking
	u.lock.Unlock()
}

func (u *UIBridge) SetConnectionQuality(userID string, quality types.ConnectionQuality) {
	u.lock.Lock()
	u.Quality[userID] = quality
	u.lock.Unlock()
}

func (u *UIBridge) SetMutedIndicator(userID string, kind types.TrackKind, muted bool) {
	u.lock.Lock()
	u.MutedIndicators[userID+"/"+string(kind)] = muted
	u.lock.Unlock()
}

func (u *UIBridge) SetConnectionButtons(connected bool) {
	u.lock.Lock()
	u.Buttons = append(u.Buttons, connected)
	u.lock.Unlock()
}

func (u *UIBridge) Notify(level types.NotifyLevel, message string, permanent bool) {
	u.lock.Lock()
	u.Notifications = append(u.Notifications, Notification{level, message, permanent})
	u.lock.Unlock()
}

func (u *UIBridge) OpenConfig() {
	u.lock.Lock()
	u.ConfigOpened++
	u.lock.Unlock()
}

func (u *UIBridge) Render() {
	u.RenderCount.Inc()
}

type UserActivity struct {
	UserID string
	Update types.ActivityUpdate
}

type ActivityBridge struct {
	lock       sync.Mutex
	Broadcasts []types.ActivityUpdate
	Handled    []UserActivity
}

func (a *ActivityBridge) BroadcastActivity(update types.ActivityUpdate) {
	a.lock.Lock()
	a.Broadcasts = append(a.Broadcasts, update)
	a.lock.Unlock()
}

func (a *ActivityBridge) HandleUserActivity(userID string, update types.ActivityUpdate) {
	a.lock.Lock()
	a.Handled = append(a.Handled, UserActivity{userID, update})
	a.lock.Unlock()
}

type SentMessage struct {
	Msg        types.SocketMessage
	Recipients []string
}

type MessageChannel struct {
	lock    sync.Mutex
	Sent    []SentMessage
	SendErr error
	handler func(msg types.SocketMessage, senderID string)
}

func (m *MessageChannel) Send(msg types.SocketMessage, recipients []string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, SentMessage{msg, recipients})
	return nil
}

func (m *MessageChannel) OnMessage(handler func(msg types.SocketMessage, senderID string)) {
	m.lock.Lock()
	m.handler = handler
	m.lock.Unlock()
}

// Deliver feeds an inbound message through the registered handler.
func (m *MessageChannel) Deliver(msg types.SocketMessage, senderID string) {
	m.lock.Lock()
	handler := m.handler
	m.lock.Unlock()
	if handler != nil {
		handler(msg, senderID)
	}
}

// Host bundles all capability fakes behind a ready-to-use types.Context.
type Host struct {
	Settings *SettingsStore
	Users    *UserDirectory
	Perms    *Permissions
	UI       *UIBridge
	Activity *ActivityBridge
	Messages *MessageChannel
	Context  *types.Context
}

func NewHost(userID, userName string) *Host {
	h := &Host{
		Settings: NewSettingsStore(),
		Users:    NewUserDirectory(),
		Perms:    &Permissions{},
		UI:       NewUIBridge(),
		Activity: &ActivityBridge{},
		Messages: &MessageChannel{},
	}
	h.Users.Add(types.UserInfo{ID: userID, Name: userName, Active: true})
	h.Context = &types.Context{
		UserID:      userID,
		UserName:    userName,
		Settings:    h.Settings,
		Users:       h.Users,
		Permissions: h.Perms,
		UI:          h.UI,
		Activity:    h.Activity,
		Messages:    h.Messages,
	}
	return h
}
