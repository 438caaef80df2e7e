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

	"github.com/spf13/cobra"

	"github.com/hostwatch/hostwatch/pkg/serializer"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "functional",
	Short:   "Print the effective source configuration",
	Long: `Print the effective source configuration after merging the config
file and environment variables. Unset keys use per-source defaults and are
not listed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		outFormat := serializer.Format(format)
		if outFormat.IsUnknown() {
			return fmt.Errorf("unknown output format: %q", outFormat)
		}

		w := serializer.NewFileWriterOrStdout(outFormat, output)
		if c, ok := w.(serializer.Closer); ok {
			defer c.Close()
		}
		return w.Serialize(cmd.Context(), sourceConfig())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVarP(&output, "output", "", "", "output file path (default: stdout)")
	configCmd.Flags().StringVarP(&format, "format", "", "yaml", "output format (json, yaml, table)")
}
