////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// registerTokenCmd registers or removes the device's push token.
var registerTokenCmd = &cobra.Command{
	Use:   "register-token [token]",
	Short: "Registers a push notification token for this device",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := login(nil)
		push := client.Push()

		if viper.GetBool(removeFlag) {
			if err := push.RemoveToken(); err != nil {
				jww.FATAL.Panicf("Failed to remove token: %+v", err)
			}
			fmt.Println("Push token removed")
			return
		}

		if len(args) != 1 {
			jww.FATAL.Panicf("A token is required unless --%s is set",
				removeFlag)
		}
		ctx, cancel := requestContext()
		defer cancel()
		if err := push.AddToken(ctx, args[0], viper.GetString(appFlag)); err != nil {
			jww.FATAL.Panicf("Failed to register token: %+v", err)
		}
		fmt.Printf("Push token registered for %s\n", client.Identity().UserID)
	},
}

func init() {
	registerTokenCmd.Flags().String(appFlag, "android",
		"Platform of the token, e.g. android or ios")
	bindFlagHelper(appFlag, registerTokenCmd)

	registerTokenCmd.Flags().Bool(removeFlag, false,
		"Removes the stored token instead")
	bindFlagHelper(removeFlag, registerTokenCmd)

	rootCmd.AddCommand(registerTokenCmd)
}
