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
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/livekit/vtt-av-bridge/pkg/types"
)

var (
	ErrNoMetadata  = errors.New("participant has no join metadata")
	ErrUnknownUser = errors.New("participant does not map to a host user")
)

// JoinMetadata is embedded into the access token at issuance and read back
// from every participant to map transport identities to host users.
type JoinMetadata struct {
	FVTTUserID    string `json:"fvttUserId"`
	UseExternalAV bool   `json:"useExternalAV"`
}

func (m JoinMetadata) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// IdentityMapper resolves participants to host users. It holds no state of
// its own; resolution is a pure function of the participant's metadata and
// the host user directory.
type IdentityMapper struct {
	users types.UserDirectory
}

func NewIdentityMapper(users types.UserDirectory) *IdentityMapper {
	return &IdentityMapper{users: users}
}

// Metadata parses the participant's embedded join metadata.
func (m *IdentityMapper) Metadata(p types.Participant) (JoinMetadata, error) {
	raw := p.Metadata()
	if raw == "" {
		return JoinMetadata{}, ErrNoMetadata
	}

	var md JoinMetadata
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return JoinMetadata{}, errors.Wrap(ErrNoMetadata, err.Error())
	}
	if md.FVTTUserID == "" {
		return JoinMetadata{}, ErrNoMetadata
	}
	return md, nil
}

// Resolve returns the host user a participant belongs to. Callers treat a
// failed resolution as an unrenderable participant, never as a fatal error.
func (m *IdentityMapper) Resolve(p types.Participant) (types.UserInfo, error) {
	md, err := m.Metadata(p)
	if err != nil {
		return types.UserInfo{}, err
	}

	user, ok := m.users.User(md.FVTTUserID)
	if !ok {
		return types.UserInfo{}, errors.Wrapf(ErrUnknownUser, "userID: %s", md.FVTTUserID)
	}
	return user, nil
}

// UsesExternalAV reports whether the participant joined through the external
// web client rather than the embedded bridge.
func (m *IdentityMapper) UsesExternalAV(p types.Participant) bool {
	md, err := m.Metadata(p)
	if err != nil {
		return false
	}
	return md.UseExternalAV
}
