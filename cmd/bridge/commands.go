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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/auth"
	"github.com/livekit/vtt-av-bridge/pkg/av"
	"github.com/livekit/vtt-av-bridge/pkg/socket"
)

// runBridge starts the standalone daemon: the control-channel relay link
// plus the metrics endpoint. Media sessions are driven by the embedding
// host through av.Client; standalone mode only keeps the control plane up.
func runBridge(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if conf.PrometheusPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", conf.PrometheusPort)
			logger.Infow("serving metrics", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Errorw("metrics server stopped", err)
			}
		}()
	}

	var channel *socket.Channel
	if conf.Socket.URL != "" {
		channel = socket.NewChannel(socket.ChannelParams{
			Conf:   conf.Socket,
			UserID: "bridge",
			Logger: logger.GetLogger(),
		})
		go channel.Start(ctx)
	}

	logger.Infow("bridge started", "room", conf.Server.Room)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sigChan
	logger.Infow("exit requested, shutting down", "signal", sig)

	if channel != nil {
		channel.Close()
	}
	return nil
}

// createToken signs a development join token using the configured API key
// and secret.
func createToken(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}
	if conf.Server.Username == "" || conf.Server.Password == "" {
		return fmt.Errorf("api-key and api-secret are required")
	}

	metadata := ""
	if userID := c.String("user-id"); userID != "" {
		if metadata, err = (av.JoinMetadata{FVTTUserID: userID}).Encode(); err != nil {
			return err
		}
	}

	token, err := auth.NewAccessToken(conf.Server.Username, conf.Server.Password).
		SetIdentity(c.String("identity")).
		SetMetadata(metadata).
		AddGrant(&auth.VideoGrant{RoomJoin: true, Room: c.String("room")}).
		ToJWT()
	if err != nil {
		return err
	}

	fmt.Println("access token: ", token)
	return nil
}
