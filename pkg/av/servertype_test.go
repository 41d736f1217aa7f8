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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerTypeRegistry(t *testing.T) {
	tokenFunc := func(_ context.Context, _, _, _, _, _ string) (string, error) {
		return "token", nil
	}

	t.Run("built-in profiles", func(t *testing.T) {
		r := NewServerTypeRegistry()

		custom, ok := r.Get("custom")
		require.True(t, ok)
		assert.True(t, custom.URLRequired)
		assert.Equal(t, custom, r.Default())

		tavern, ok := r.Get("tavern")
		require.True(t, ok)
		assert.False(t, tavern.URLRequired)
		assert.NotEmpty(t, tavern.URL)
	})

	t.Run("registers a valid profile", func(t *testing.T) {
		r := NewServerTypeRegistry()
		err := r.Register(ServerType{
			Key:       "selfhosted",
			Label:     "Self-hosted",
			TokenFunc: tokenFunc,
		})
		require.NoError(t, err)

		st, ok := r.Get("selfhosted")
		require.True(t, ok)
		assert.Equal(t, "Self-hosted", st.Label)
	})

	t.Run("rejects an incomplete profile", func(t *testing.T) {
		r := NewServerTypeRegistry()
		assert.Equal(t, ErrInvalidServerType, r.Register(ServerType{Key: "nolabel", TokenFunc: tokenFunc}))
		assert.Equal(t, ErrInvalidServerType, r.Register(ServerType{Key: "notoken", Label: "No token"}))
	})

	t.Run("rejects duplicate keys", func(t *testing.T) {
		r := NewServerTypeRegistry()
		err := r.Register(ServerType{Key: "custom", Label: "Shadowing", TokenFunc: tokenFunc})
		assert.Equal(t, ErrDuplicateServerType, err)
	})
}

func TestStripURLProtocol(t *testing.T) {
	assert.Equal(t, "livekit.example.com", StripURLProtocol("https://livekit.example.com"))
	assert.Equal(t, "livekit.example.com", StripURLProtocol("wss://livekit.example.com"))
	assert.Equal(t, "livekit.example.com", StripURLProtocol("livekit.example.com"))
}
