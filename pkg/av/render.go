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
	"time"

	"github.com/bep/debounce"
	"github.com/frostbyte73/core"

	"github.com/livekit/vtt-av-bridge/pkg/telemetry"
)

// renderScheduler coalesces bursts of participant/track events into a single
// camera view redraw. Any number of requests inside the window cost one
// render at window close (trailing edge).
type renderScheduler struct {
	debounced func(func())
	render    func()
	stopped   core.Fuse
}

func newRenderScheduler(render func(), window time.Duration) *renderScheduler {
	return &renderScheduler{
		debounced: debounce.New(window),
		render:    render,
	}
}

func (r *renderScheduler) Request() {
	if r.stopped.IsBroken() {
		return
	}
	r.debounced(func() {
		if r.stopped.IsBroken() {
			return
		}
		telemetry.RenderFlushed()
		r.render()
	})
}

// Flush renders immediately, bypassing the window. Used for user-initiated
// actions where a two second delay would be visible.
func (r *renderScheduler) Flush() {
	if r.stopped.IsBroken() {
		return
	}
	telemetry.RenderFlushed()
	r.render()
}

func (r *renderScheduler) Stop() {
	r.stopped.Break()
}
