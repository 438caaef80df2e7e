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

// Package cli implements the hostwatch command line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hostwatch/hostwatch/pkg/config"
	"github.com/hostwatch/hostwatch/pkg/logging"
)

const (
	name           = "hostwatch"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"

	cfgFile  string
	logLevel string

	output string
	format string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   name,
	Short: "hostwatch - Linux host metrics daemon",
	Long: fmt.Sprintf(`hostwatch - Linux host metrics daemon

Version: %s
Commit:  %s
Built:   %s

Collects host metrics by sampling Linux monitoring tools and pseudo-files:

run      - runs the monitoring daemon with the HTTP management server
snapshot - captures a one-shot reading of every source (uptime, vmstat,
           iostat, df, /proc/net/dev, entropy) and writes it out
config   - prints the effective source configuration`, version, commit, date),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.AddGroup(
		&cobra.Group{
			ID:    "functional",
			Title: "Functional Commands:",
		},
	)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hostwatch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// Fail fast if user-specified config doesn't exist
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
		return
	}

	// Auto-discover config
	home, err := os.UserHomeDir()
	if err != nil {
		// Gracefully degrade if home directory not available
		return
	}

	// Search config in home directory and current directory
	viper.AddConfigPath(home)
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.SetConfigName(".hostwatch")

	// Automatic environment variable binding
	viper.AutomaticEnv()
	viper.SetEnvPrefix("HOSTWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// If a config file is found, read it in (optional)
	_ = viper.ReadInConfig()
}

// initLogger configures slog after Cobra parses flags/config so overrides like
// --log-level take effect before any command executes.
func initLogger() {
	logging.SetDefaultStructuredLoggerWithLevel(name, version, logLevel)
	slog.Info("starting",
		"name", name,
		"version", version,
		"commit", commit,
		"date", date,
		"logLevel", logLevel)
}

// sourceConfig flattens the loaded viper state into the sampler config map.
func sourceConfig() config.Map {
	return config.FromViper(viper.GetViper())
}
