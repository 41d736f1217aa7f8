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
	"sync"

	"github.com/pkg/errors"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/vtt-av-bridge/pkg/auth"
)

var (
	ErrInvalidServerType   = errors.New("server type does not meet the requirements")
	ErrDuplicateServerType = errors.New("server type key already registered")
)

// TokenFunc issues an access credential for a room join. Hosted server
// types may call out to their own auth service; the default signs locally.
type TokenFunc func(ctx context.Context, apiKey string, apiSecret string, room string, userName string, metadata string) (string, error)

// ServerType is a named connection profile: which settings it requires and
// how it obtains a token.
type ServerType struct {
	Key   string
	Label string
	// URL is the fixed server address for hosted types that don't require
	// one from settings
	URL              string
	URLRequired      bool
	UsernameRequired bool
	PasswordRequired bool
	TokenFunc        TokenFunc
}

func (st ServerType) valid() bool {
	return st.Key != "" && st.Label != "" && st.TokenFunc != nil
}

// ServerTypeRegistry holds the connection profiles selectable through the
// world server-type setting. Additional profiles may be registered at
// runtime by host add-ons.
type ServerTypeRegistry struct {
	lock       sync.RWMutex
	types      map[string]ServerType
	defaultKey string
}

func NewServerTypeRegistry() *ServerTypeRegistry {
	r := &ServerTypeRegistry{
		types:      make(map[string]ServerType),
		defaultKey: "custom",
	}
	r.types["custom"] = ServerType{
		Key:              "custom",
		Label:            "Custom server",
		URLRequired:      true,
		UsernameRequired: true,
		PasswordRequired: true,
		TokenFunc:        LocalAccessToken,
	}
	r.types["tavern"] = ServerType{
		Key:              "tavern",
		Label:            "Tavern hosted server",
		URL:              "livekit.tavern.at",
		URLRequired:      false,
		UsernameRequired: true,
		PasswordRequired: true,
		TokenFunc:        LocalAccessToken,
	}
	return r
}

// Register validates a profile against the required shape and adds it.
func (r *ServerTypeRegistry) Register(st ServerType) error {
	if !st.valid() {
		logger.Errorw("attempted to register an invalid server type", ErrInvalidServerType, "key", st.Key)
		return ErrInvalidServerType
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.types[st.Key]; ok {
		logger.Errorw("attempted to register a duplicate server type", ErrDuplicateServerType, "key", st.Key)
		return ErrDuplicateServerType
	}
	r.types[st.Key] = st
	return nil
}

func (r *ServerTypeRegistry) Get(key string) (ServerType, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	st, ok := r.types[key]
	return st, ok
}

func (r *ServerTypeRegistry) Default() ServerType {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.types[r.defaultKey]
}

// LocalAccessToken signs a join token with the configured API key and
// secret, embedding the host user metadata.
func LocalAccessToken(_ context.Context, apiKey string, apiSecret string, room string, userName string, metadata string) (string, error) {
	return auth.NewAccessToken(apiKey, apiSecret).
		SetIdentity(userName).
		SetMetadata(metadata).
		AddGrant(&auth.VideoGrant{RoomJoin: true, Room: room}).
		ToJWT()
}
