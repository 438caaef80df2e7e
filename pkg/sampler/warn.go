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
	"log/slog"

	"golang.org/x/time/rate"
)

// LineWarner logs unexpected input lines at warn level, rate limited so a
// misbehaving tool cannot flood the log. Every occurrence is still counted
// in the parse-error metric.
type LineWarner struct {
	sampler string
	limiter *rate.Limiter
}

// NewLineWarner creates a warner for the named sampler allowing at most one
// warning per second with a small burst.
func NewLineWarner(sampler string) *LineWarner {
	return &LineWarner{
		sampler: sampler,
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

// Warn records an unexpected line, logging it unless rate limited.
func (w *LineWarner) Warn(msg, line string) {
	ParseErrorsTotal.WithLabelValues(w.sampler).Inc()
	if !w.limiter.Allow() {
		return
	}
	slog.Warn(msg,
		slog.String("sampler", w.sampler),
		slog.String("line", line),
	)
}
