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
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/livekit/vtt-av-bridge/pkg/config"
	serverlogger "github.com/livekit/vtt-av-bridge/pkg/logger"
	"github.com/livekit/vtt-av-bridge/version"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Usage: "path to bridge config file",
	},
	&cli.StringFlag{
		Name:    "config-body",
		Usage:   "bridge config in YAML, typically passed in as an environment var in a container",
		EnvVars: []string{"VTT_AV_BRIDGE_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "server-url",
		Usage: "address of the meeting server",
	},
	&cli.StringFlag{
		Name:  "api-key",
		Usage: "API key used to sign access tokens",
	},
	&cli.StringFlag{
		Name:  "api-secret",
		Usage: "API secret used to sign access tokens",
	},
	&cli.StringFlag{
		Name:  "room",
		Usage: "primary meeting room name",
	},
	&cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
	},
}

func main() {
	app := &cli.App{
		Name:        "vtt-av-bridge",
		Usage:       "bridges a virtual tabletop's A/V subsystem to a LiveKit server",
		Description: "run without subcommands to start the bridge",
		Flags:       baseFlags,
		Action:      runBridge,
		Commands: []*cli.Command{
			{
				Name:   "create-token",
				Usage:  "create a room join token for development use",
				Action: createToken,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "room",
						Usage:    "name of room to join",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "identity",
						Usage:    "identity of participant that holds the token",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "user-id",
						Usage: "host user id embedded in the token metadata",
					},
				},
			},
		},
		Version: version.Version,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
	}
}

func getConfig(c *cli.Context) (*config.Config, error) {
	confString, err := getConfigString(c.String("config"), c.String("config-body"))
	if err != nil {
		return nil, err
	}

	conf, err := config.NewConfig(confString)
	if err != nil {
		return nil, err
	}
	if err = conf.UpdateFromCLI(c); err != nil {
		return nil, err
	}

	serverlogger.InitFromConfig(conf.Logging, conf.Development)
	return conf, nil
}

func getConfigString(configFile string, inConfigBody string) (string, error) {
	if inConfigBody != "" || configFile == "" {
		return inConfigBody, nil
	}

	outConfigBody, err := os.ReadFile(configFile)
	if err != nil {
		return "", err
	}
	return string(outConfigBody), nil
}
