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

package server

import (
	"net/http"
	"time"

	"github.com/hostwatch/hostwatch/pkg/serializer"
)

// RecordView is the wire form of one registry record.
type RecordView struct {
	Name        string         `json:"name" yaml:"name"`
	LastUpdated time.Time      `json:"lastUpdated" yaml:"lastUpdated"`
	Values      map[string]any `json:"values" yaml:"values"`
}

// RecordsResponse is the response for GET /v1/records.
type RecordsResponse struct {
	Root      string       `json:"root" yaml:"root"`
	Count     int          `json:"count" yaml:"count"`
	Timestamp time.Time    `json:"timestamp" yaml:"timestamp"`
	Records   []RecordView `json:"records" yaml:"records"`
}

// handleRecords handles GET /v1/records. The optional q parameter is a
// glob matched against full record paths, e.g.
// q=hostwatch.linux:type=io-device,devicename=sd?
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed,
			"Method not allowed", false, nil)
		return
	}

	pattern := r.URL.Query().Get("q")
	records := s.reg.Query(pattern)

	resp := RecordsResponse{
		Root:      s.reg.Root(),
		Count:     len(records),
		Timestamp: time.Now().UTC(),
		Records:   make([]RecordView, 0, len(records)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, RecordView{
			Name:        rec.Key().Path(s.reg.Root()),
			LastUpdated: rec.LastUpdated(),
			Values:      rec.Values(),
		})
	}

	serializer.RespondJSON(w, http.StatusOK, resp)
}
