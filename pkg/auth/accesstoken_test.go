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

package auth

import (
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey    = "APIabcdefg"
	testAPISecret = "thisisasecretlongenoughtosignwith"
)

func TestAccessToken(t *testing.T) {
	t.Run("keys are required", func(t *testing.T) {
		_, err := NewAccessToken("", "").SetIdentity("alice").ToJWT()
		assert.Equal(t, ErrKeysMissing, err)
	})

	t.Run("round trip through the verifier", func(t *testing.T) {
		raw, err := NewAccessToken(testAPIKey, testAPISecret).
			SetIdentity("alice").
			SetMetadata(`{"fvttUserId":"u1","useExternalAV":false}`).
			AddGrant(&VideoGrant{RoomJoin: true, Room: "primary-room"}).
			ToJWT()
		require.NoError(t, err)

		v, err := ParseAPIToken(raw)
		require.NoError(t, err)
		assert.Equal(t, testAPIKey, v.APIKey())
		assert.Equal(t, "alice", v.Identity())

		grants, err := v.Verify(testAPISecret)
		require.NoError(t, err)
		assert.Equal(t, "alice", grants.Identity)
		require.NotNil(t, grants.Video)
		assert.True(t, grants.Video.RoomJoin)
		assert.Equal(t, "primary-room", grants.Video.Room)
		assert.Contains(t, grants.Metadata, "u1")
	})

	t.Run("wrong secret fails verification", func(t *testing.T) {
		raw, err := NewAccessToken(testAPIKey, testAPISecret).
			SetIdentity("alice").
			AddGrant(&VideoGrant{RoomJoin: true, Room: "r"}).
			ToJWT()
		require.NoError(t, err)

		v, err := ParseAPIToken(raw)
		require.NoError(t, err)
		_, err = v.Verify("someothersecretthatisalsolong")
		assert.Error(t, err)
	})

	t.Run("validity window is backdated for clock skew", func(t *testing.T) {
		raw, err := NewAccessToken(testAPIKey, testAPISecret).
			SetIdentity("alice").
			SetValidFor(time.Hour).
			AddGrant(&VideoGrant{RoomJoin: true, Room: "r"}).
			ToJWT()
		require.NoError(t, err)

		tok, err := jwt.ParseSigned(raw)
		require.NoError(t, err)
		claims := jwt.Claims{}
		require.NoError(t, tok.UnsafeClaimsWithoutVerification(&claims))

		now := time.Now()
		assert.True(t, claims.NotBefore.Time().Before(now.Add(-10*time.Minute)))
		assert.True(t, claims.Expiry.Time().After(now.Add(50*time.Minute)))
		assert.True(t, claims.Expiry.Time().Before(now.Add(70*time.Minute)))
	})
}
