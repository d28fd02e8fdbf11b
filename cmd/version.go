////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Handles command-line version functionality

package cmd

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Change this value to set the version for this build
const currentVersion = "1.0.0"

// Version returns the client version followed by the module versions it was
// built with.
func Version() string {
	out := fmt.Sprintf("Chatwave Client v%s\n\n", currentVersion)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}

	deps := make([]string, 0, len(info.Deps))
	for _, d := range info.Deps {
		deps = append(deps, fmt.Sprintf("\t%s %s", d.Path, d.Version))
	}
	out += fmt.Sprintf("Dependencies:\n\n%s\n", strings.Join(deps, "\n"))
	return out
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and dependency information for the Chatwave binary",
	Long:  `Print the version and dependency information for the Chatwave binary`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(Version())
	},
}
