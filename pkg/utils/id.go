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

package utils

import (
	"github.com/lithammer/shortuuid/v3"
)

const (
	RoomPrefix     = "R-"
	BreakoutPrefix = "B-"

	roomNameLength = 32
)

func NewGuid(prefix string) string {
	return prefix + shortuuid.New()
}

// NewRoomName generates a fixed-length random room id, used when no meeting
// room has been configured yet or when a breakout room is started.
func NewRoomName() string {
	name := shortuuid.New() + shortuuid.New()
	return name[:roomNameLength]
}
