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
	"fmt"
	"log/slog"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hostwatch/hostwatch/pkg/platform"
	"github.com/hostwatch/hostwatch/pkg/server"
)

var (
	runAddress string
	runPort    int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "functional",
	Short:   "Run the monitoring daemon",
	Long: `Run the monitoring daemon: starts every sampler and serves the
collected records over HTTP.

Endpoints:
  GET /v1/records - current records (q= for glob filtering)
  GET /metrics    - Prometheus metrics
  GET /health     - liveness probe
  GET /ready      - readiness probe

When running under systemd with Type=notify, readiness and shutdown are
signalled over the notify socket.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceID := uuid.New().String()
		logger := slog.Default().With("instance", instanceID)

		monitor := platform.NewLinux(sourceConfig())
		if err := monitor.Verify(); err != nil {
			return fmt.Errorf("host verification failed: %w", err)
		}

		if err := monitor.Start(); err != nil {
			return fmt.Errorf("error starting monitor: %w", err)
		}
		logger.Info("monitor started", "root", monitor.Registry().Root())

		srvConfig := server.NewConfig()
		srvConfig.Name = name
		srvConfig.Version = version
		srvConfig.Address = runAddress
		srvConfig.Port = runPort
		srv := server.New(srvConfig, monitor.Registry())

		// Running under systemd Type=notify this unblocks dependents;
		// everywhere else it is a no-op.
		if ok, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
			logger.Warn("sd_notify failed", "error", err)
		} else if ok {
			logger.Debug("notified systemd of readiness")
		}

		ctx := cmd.Context()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(gctx)
		})

		err := g.Wait()

		if _, notifyErr := sd.SdNotify(false, sd.SdNotifyStopping); notifyErr != nil {
			logger.Warn("sd_notify failed", "error", notifyErr)
		}

		if stopErr := monitor.Stop(); stopErr != nil {
			logger.Warn("monitor did not stop cleanly", "error", stopErr)
			if err == nil {
				err = stopErr
			}
		}

		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
		logger.Info("daemon stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runAddress, "address", "", "", "management server bind address (default: all interfaces)")
	runCmd.Flags().IntVarP(&runPort, "port", "", 8080, "management server port")
}
