// Copyright 2025 Tom Barlow
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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestQueueDepthGaugeTracksSetValue(t *testing.T) {
	QueueDepth.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(QueueDepth))
	QueueDepth.Set(0)
}

func TestRunsTotalIncrementsByState(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.With(prometheus.Labels{"state": "finished"}))
	RunsTotal.With(prometheus.Labels{"state": "finished"}).Inc()
	after := testutil.ToFloat64(RunsTotal.With(prometheus.Labels{"state": "finished"}))
	assert.Equal(t, before+1, after)
}

func TestRunDurationObservesWithoutPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		RunDuration.WithLabelValues("ci", "finished").Observe(12.5)
	})
}
