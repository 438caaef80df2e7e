// Copyright (c) 2025, Hostwatch Authors.  All rights reserved.
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

package platform

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MonitorStarts counts monitor start attempts.
	MonitorStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostwatch_monitor_starts_total",
		Help: "Total number of monitor start attempts",
	})

	// BuildFailures counts samplers that failed construction or startup.
	BuildFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostwatch_sampler_build_failures_total",
		Help: "Total number of sampler construction or startup failures",
	}, []string{"sampler"})
)
