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
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	// trailing-edge window used to coalesce bursts of participant and track
	// events into a single camera view redraw
	DefaultRenderDebounce = 2 * time.Second
)

var (
	ErrServerTypeUnknown = errors.New("unknown server type")
)

type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Receive   ReceiveConfig   `yaml:"receive,omitempty"`
	Reconnect ReconnectConfig `yaml:"reconnect,omitempty"`
	Render    RenderConfig    `yaml:"render,omitempty"`
	Socket    SocketConfig    `yaml:"socket,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`

	PrometheusPort uint32 `yaml:"prometheus_port,omitempty"`
	Development    bool   `yaml:"development,omitempty"`
}

// ServerConfig seeds the world-scope connection settings when the bridge
// runs standalone; inside a host the same values come from the settings
// store.
type ServerConfig struct {
	Type string `yaml:"type,omitempty"`
	URL  string `yaml:"url,omitempty"`
	// Username is the API key for signed-token server types
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Room     string `yaml:"room,omitempty"`
}

// ReceiveConfig disables inbound media by kind; when either flag is set the
// session connects with auto-subscribe off and admission control subscribes
// per kind.
type ReceiveConfig struct {
	DisableAudio bool `yaml:"disable_audio,omitempty"`
	DisableVideo bool `yaml:"disable_video,omitempty"`
}

// ReconnectConfig is the retry policy applied to failed connection attempts.
type ReconnectConfig struct {
	Enabled         bool          `yaml:"enabled,omitempty"`
	InitialInterval time.Duration `yaml:"initial_interval,omitempty"`
	MaxInterval     time.Duration `yaml:"max_interval,omitempty"`
	Multiplier      float64       `yaml:"multiplier,omitempty"`
	MaxAttempts     uint64        `yaml:"max_attempts,omitempty"`
}

type RenderConfig struct {
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// SocketConfig points the standalone bridge at the host's messaging relay.
type SocketConfig struct {
	URL string `yaml:"url,omitempty"`
	// ReconnectInterval between attempts to re-establish the relay link
	ReconnectInterval time.Duration `yaml:"reconnect_interval,omitempty"`
}

type LoggingConfig struct {
	// valid levels: debug, info, warn, error
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

func NewConfig(confString string) (*Config, error) {
	conf := &Config{
		Server: ServerConfig{
			Type: "custom",
		},
		Reconnect: ReconnectConfig{
			Enabled:         true,
			InitialInterval: 2 * time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      1.5,
			MaxAttempts:     5,
		},
		Render: RenderConfig{
			Debounce: DefaultRenderDebounce,
		},
		Socket: SocketConfig{
			ReconnectInterval: 5 * time.Second,
		},
	}

	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.Wrap(err, "could not parse config")
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (conf *Config) Validate() error {
	if conf.Render.Debounce <= 0 {
		conf.Render.Debounce = DefaultRenderDebounce
	}
	if conf.Reconnect.Multiplier < 1 {
		return errors.New("reconnect.multiplier must be >= 1")
	}
	if conf.Reconnect.InitialInterval <= 0 {
		conf.Reconnect.InitialInterval = 2 * time.Second
	}
	if conf.Reconnect.MaxInterval < conf.Reconnect.InitialInterval {
		conf.Reconnect.MaxInterval = conf.Reconnect.InitialInterval
	}
	return nil
}

// UpdateFromCLI overlays command line flags onto the loaded config.
func (conf *Config) UpdateFromCLI(c *cli.Context) error {
	if c.IsSet("server-url") {
		conf.Server.URL = c.String("server-url")
	}
	if c.IsSet("api-key") {
		conf.Server.Username = c.String("api-key")
	}
	if c.IsSet("api-secret") {
		conf.Server.Password = c.String("api-secret")
	}
	if c.IsSet("room") {
		conf.Server.Room = c.String("room")
	}
	if c.IsSet("log-level") {
		conf.Logging.Level = c.String("log-level")
	}
	return nil
}
