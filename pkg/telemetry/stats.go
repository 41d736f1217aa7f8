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

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const bridgeNamespace = "vtt_av_bridge"

var (
	participantCurrent atomic.Int32

	promConnectCounter     *prometheus.CounterVec
	promParticipantCurrent prometheus.Gauge
	promTrackSubscribed    *prometheus.CounterVec
	promRenderFlushes      prometheus.Counter
)

func init() {
	promConnectCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: bridgeNamespace,
		Subsystem: "session",
		Name:      "connect_attempts",
	}, []string{"result"})
	promParticipantCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: bridgeNamespace,
		Subsystem: "participant",
		Name:      "total",
	})
	promTrackSubscribed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: bridgeNamespace,
		Subsystem: "track",
		Name:      "subscribed",
	}, []string{"kind"})
	promRenderFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: bridgeNamespace,
		Subsystem: "render",
		Name:      "flushes",
	})

	prometheus.MustRegister(promConnectCounter)
	prometheus.MustRegister(promParticipantCurrent)
	prometheus.MustRegister(promTrackSubscribed)
	prometheus.MustRegister(promRenderFlushes)
}

func ConnectAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	promConnectCounter.WithLabelValues(result).Inc()
}

func ParticipantJoined() {
	promParticipantCurrent.Set(float64(participantCurrent.Inc()))
}

func ParticipantLeft() {
	promParticipantCurrent.Set(float64(participantCurrent.Dec()))
}

func ParticipantsReset() {
	participantCurrent.Store(0)
	promParticipantCurrent.Set(0)
}

func TrackSubscribed(kind string) {
	promTrackSubscribed.WithLabelValues(kind).Inc()
}

func RenderFlushed() {
	promRenderFlushes.Inc()
}
