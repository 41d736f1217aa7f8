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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	conf, err := NewConfig("")
	require.NoError(t, err)

	assert.Equal(t, "custom", conf.Server.Type)
	assert.Equal(t, DefaultRenderDebounce, conf.Render.Debounce)
	assert.True(t, conf.Reconnect.Enabled)
	assert.Equal(t, 2*time.Second, conf.Reconnect.InitialInterval)
}

func TestConfigParsing(t *testing.T) {
	conf, err := NewConfig(`
server:
  url: livekit.example.com
  username: devkey
  password: secret
  room: primary-room
receive:
  disable_video: true
reconnect:
  max_attempts: 3
render:
  debounce: 500ms
logging:
  level: debug
`)
	require.NoError(t, err)

	assert.Equal(t, "livekit.example.com", conf.Server.URL)
	assert.True(t, conf.Receive.DisableVideo)
	assert.False(t, conf.Receive.DisableAudio)
	assert.Equal(t, uint64(3), conf.Reconnect.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, conf.Render.Debounce)
	assert.Equal(t, "debug", conf.Logging.Level)
}

func TestConfigValidation(t *testing.T) {
	t.Run("multiplier below one is rejected", func(t *testing.T) {
		_, err := NewConfig("reconnect:\n  multiplier: 0.5\n")
		assert.Error(t, err)
	})

	t.Run("non-positive debounce falls back to the default", func(t *testing.T) {
		conf, err := NewConfig("render:\n  debounce: -1s\n")
		require.NoError(t, err)
		assert.Equal(t, DefaultRenderDebounce, conf.Render.Debounce)
	})

	t.Run("max interval is raised to the initial interval", func(t *testing.T) {
		conf, err := NewConfig("reconnect:\n  initial_interval: 10s\n  max_interval: 1s\n")
		require.NoError(t, err)
		assert.Equal(t, conf.Reconnect.InitialInterval, conf.Reconnect.MaxInterval)
	})
}
