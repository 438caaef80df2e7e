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

package cli

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistration(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["snapshot"])
	assert.True(t, names["config"])
}

func TestGlobalFlags(t *testing.T) {
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
	assert.Equal(t, "info", rootCmd.PersistentFlags().Lookup("log-level").DefValue)
}

func TestSnapshotRejectsUnknownFormat(t *testing.T) {
	prev := format
	defer func() { format = prev }()

	format = "xml"
	err := snapshotCmd.RunE(snapshotCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestSourceConfigFlattening(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("hostwatch.linux.uptime.period", 30)

	cfg := sourceConfig()
	assert.Equal(t, "30", cfg["hostwatch.linux.uptime.period"])
}
