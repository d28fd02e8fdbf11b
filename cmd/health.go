////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/chatwave/client/backend"
)

// healthCmd checks the auxiliary service. It needs no access token.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Checks that the auxiliary service is up",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		api := backend.NewClient(initParams().Backend, "")

		ctx, cancel := requestContext()
		defer cancel()
		h, err := api.Health(ctx)
		if err != nil {
			jww.FATAL.Panicf("Health check failed: %+v", err)
		}

		fmt.Printf("%s at %s\n", h.Status, h.Timestamp)
		if !h.Healthy() {
			os.Exit(1)
		}
	},
}

// lookupCmd fetches a user's profile through the auxiliary service.
var lookupCmd = &cobra.Command{
	Use:   "lookup <user id>",
	Short: "Looks up a user's profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := login(nil)

		ctx, cancel := requestContext()
		defer cancel()
		p, err := client.Session().LookupUser(ctx, args[0])
		if err != nil {
			jww.FATAL.Panicf("Failed to look up %s: %+v", args[0], err)
		}

		out, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		fmt.Println(string(out))
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(lookupCmd)
}
