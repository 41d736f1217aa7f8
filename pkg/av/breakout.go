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

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/types"
	"github.com/livekit/vtt-av-bridge/pkg/utils"
)

type BreakoutManagerParams struct {
	Host    *types.Context
	Session *SessionManager
	Logger  logger.Logger
}

// BreakoutManager moves users between the primary meeting room and GM
// created breakout rooms. Assignments are persisted per user in client
// scope settings and coordinated over the host message channel; only GM
// senders are honored.
type BreakoutManager struct {
	params BreakoutManagerParams
}

func NewBreakoutManager(params BreakoutManagerParams) *BreakoutManager {
	m := &BreakoutManager{params: params}
	params.Host.Messages.OnMessage(m.onMessage)
	return m
}

// Breakout moves the local user to the given room, or back to the primary
// meeting room when roomID is "". Re-targeting the room we are already in
// is a no-op.
func (m *BreakoutManager) Breakout(ctx context.Context, roomID string) {
	session := m.params.Session
	if roomID == session.BreakoutRoom() {
		m.params.Logger.Debugw("already in the requested room", "room", roomID)
		return
	}

	host := m.params.Host
	if roomID != "" {
		m.params.Logger.Infow("joining breakout room", "room", roomID)
		host.UI.Notify(types.NotifyInfo, "Joining a breakout room", false)
	} else {
		m.params.Logger.Infow("returning to the main meeting room")
		host.UI.Notify(types.NotifyInfo, "Leaving the breakout room", false)
	}

	session.SetBreakoutRoom(roomID)
	session.Disconnect()
	session.Connect(ctx)
}

// StartBreakout creates a fresh breakout room and sends the given user
// there. GM only.
func (m *BreakoutManager) StartBreakout(userID string) {
	if !m.requireGM("start a breakout") {
		return
	}

	room := utils.NewGuid(utils.BreakoutPrefix)
	m.assign(userID, &room)
}

// PullToBreakout moves a user into the breakout room the local GM is
// currently in.
func (m *BreakoutManager) PullToBreakout(userID string) {
	if !m.requireGM("pull a user into a breakout") {
		return
	}

	room := m.params.Session.BreakoutRoom()
	if room == "" {
		m.params.Logger.Warnw("cannot pull user; not in a breakout room", nil, "userID", userID)
		return
	}
	m.assign(userID, &room)
}

// RemoveFromBreakout sends a user back to the primary meeting room.
func (m *BreakoutManager) RemoveFromBreakout(userID string) {
	if !m.requireGM("remove a user from a breakout") {
		return
	}
	m.assign(userID, nil)
}

// EndAllBreakouts recalls every user to the primary meeting room.
func (m *BreakoutManager) EndAllBreakouts() {
	if !m.requireGM("end all breakouts") {
		return
	}

	m.params.Logger.Infow("ending all breakout rooms")
	m.send(types.SocketMessage{
		Action:       types.MessageActionBreakout,
		BreakoutRoom: nil,
	}, nil)

	if m.params.Session.BreakoutRoom() != "" {
		m.Breakout(context.Background(), "")
	}
}

// assign persists a user's breakout assignment and tells that user's client
// to move. A nil room means back to the primary meeting room.
func (m *BreakoutManager) assign(userID string, room *string) {
	persisted := ""
	if room != nil {
		persisted = *room
	}
	m.params.Host.Settings.Set(types.ScopeClient, breakoutSettingKey(userID), persisted)

	m.params.Logger.Infow("sending user to room", "userID", userID, "breakoutRoom", persisted)
	m.send(types.SocketMessage{
		Action:       types.MessageActionBreakout,
		UserID:       userID,
		BreakoutRoom: room,
	}, []string{userID})
}

func (m *BreakoutManager) send(msg types.SocketMessage, recipients []string) {
	if err := m.params.Host.Messages.Send(msg, recipients); err != nil {
		m.params.Logger.Errorw("could not send control message", err, "action", msg.Action)
	}
}

// onMessage handles control messages from other clients. Non-GM senders
// are dropped, as is anything addressed to a different user.
func (m *BreakoutManager) onMessage(msg types.SocketMessage, senderID string) {
	host := m.params.Host

	sender, ok := host.Users.User(senderID)
	if !ok || !sender.IsGM {
		m.params.Logger.Warnw("ignoring control message from non-GM sender", nil,
			"action", msg.Action, "senderID", senderID)
		return
	}
	if msg.UserID != "" && msg.UserID != host.UserID {
		return
	}

	ctx := context.Background()
	switch msg.Action {
	case types.MessageActionBreakout:
		room := ""
		if msg.BreakoutRoom != nil {
			room = *msg.BreakoutRoom
		}
		m.Breakout(ctx, room)
	case types.MessageActionConnect:
		m.params.Session.Connect(ctx)
	case types.MessageActionDisconnect:
		m.params.Session.Disconnect()
	case types.MessageActionRender:
		host.UI.Render()
	default:
		m.params.Logger.Warnw("unknown control message action", nil, "action", msg.Action)
	}
}

func (m *BreakoutManager) requireGM(what string) bool {
	host := m.params.Host
	if user, ok := host.Users.User(host.UserID); ok && user.IsGM {
		return true
	}
	m.params.Logger.Warnw("non-GM user attempted a GM operation", nil,
		"operation", what, "userID", host.UserID)
	return false
}
