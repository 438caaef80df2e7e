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

package sampler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sampling loop metrics
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_sampler_ticks_total",
			Help: "Total number of sampling cycles executed",
		},
		[]string{"sampler"},
	)

	ParseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_sampler_parse_errors_total",
			Help: "Total number of unparseable lines encountered",
		},
		[]string{"sampler"},
	)

	FatalShutdowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_sampler_fatal_shutdowns_total",
			Help: "Total number of samplers that shut themselves down on a fatal error",
		},
		[]string{"sampler"},
	)

	// Record lifecycle metrics
	RecordsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_records_published_total",
			Help: "Total number of records published to the registry",
		},
		[]string{"sampler"},
	)

	RecordsReaped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostwatch_records_reaped_total",
			Help: "Total number of stale records removed by the freshness sweep",
		},
		[]string{"sampler"},
	)
)
