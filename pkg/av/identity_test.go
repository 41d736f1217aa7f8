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

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/vtt-av-bridge/pkg/testutils"
	"github.com/livekit/vtt-av-bridge/pkg/types"
)

func TestIdentityMapper(t *testing.T) {
	users := testutils.NewUserDirectory(
		types.UserInfo{ID: "u1", Name: "Alice", Active: true},
	)
	mapper := NewIdentityMapper(users)

	t.Run("resolves participant to host user", func(t *testing.T) {
		md, err := (JoinMetadata{FVTTUserID: "u1"}).Encode()
		require.NoError(t, err)

		p := testutils.NewParticipant("alice", md)
		user, err := mapper.Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, "u1", user.ID)
		assert.Equal(t, "Alice", user.Name)
	})

	t.Run("rejects missing metadata", func(t *testing.T) {
		p := testutils.NewParticipant("anon", "")
		_, err := mapper.Resolve(p)
		assert.Equal(t, ErrNoMetadata, errors.Cause(err))
	})

	t.Run("rejects malformed metadata", func(t *testing.T) {
		p := testutils.NewParticipant("garbled", "{not json")
		_, err := mapper.Resolve(p)
		assert.Equal(t, ErrNoMetadata, errors.Cause(err))
	})

	t.Run("rejects unknown user", func(t *testing.T) {
		md, err := (JoinMetadata{FVTTUserID: "u404"}).Encode()
		require.NoError(t, err)

		p := testutils.NewParticipant("ghost", md)
		_, err = mapper.Resolve(p)
		assert.Equal(t, ErrUnknownUser, errors.Cause(err))
	})

	t.Run("external AV flag", func(t *testing.T) {
		md, err := (JoinMetadata{FVTTUserID: "u1", UseExternalAV: true}).Encode()
		require.NoError(t, err)

		assert.True(t, mapper.UsesExternalAV(testutils.NewParticipant("alice", md)))
		assert.False(t, mapper.UsesExternalAV(testutils.NewParticipant("anon", "")))
	})
}
