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

package serverlogger

import (
	"github.com/go-logr/zapr"
	"github.com/livekit/protocol/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/livekit/vtt-av-bridge/pkg/config"
)

// InitFromConfig configures the process-wide logger used by every bridge
// component.
func InitFromConfig(conf config.LoggingConfig, development bool) {
	zapConf := zap.NewProductionConfig()
	if development && !conf.JSON {
		zapConf = zap.NewDevelopmentConfig()
	}
	initLogger(zapConf, conf.Level)
}

// valid levels: debug, info, warn, error, fatal, panic
func initLogger(conf zap.Config, level string) {
	if level != "" {
		lvl := zapcore.Level(0)
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			conf.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	l, _ := conf.Build()
	logger.SetLogger(logger.LogRLogger(zapr.NewLogger(l)), "vtt-av-bridge")
}
