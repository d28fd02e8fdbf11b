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

	"github.com/chatwave/client/prefs"
)

// initCmd creates the local preferences and remembers the sign-in without
// connecting.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Creates the local preferences and remembers a sign-in",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if viper.GetString(prefsFlag) == "" {
			jww.FATAL.Panicf("--%s is required", prefsFlag)
		}
		p := openPrefs()

		creds := prefs.Credentials{
			Email:        viper.GetString(emailFlag),
			RefreshToken: viper.GetString(refreshTokenFlag),
		}
		if creds.Email == "" {
			jww.FATAL.Panicf("--%s is required", emailFlag)
		}
		if err := p.RememberCredentials(creds); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}

		jww.INFO.Printf("Remembered sign-in of %s", creds.Email)
		fmt.Printf("%s\n", viper.GetString(prefsFlag))
	},
}

func init() {
	initCmd.Flags().String(emailFlag, "", "Email of the account")
	bindFlagHelper(emailFlag, initCmd)

	initCmd.Flags().String(refreshTokenFlag, "",
		"Refresh token of the account")
	bindFlagHelper(refreshTokenFlag, initCmd)

	rootCmd.AddCommand(initCmd)
}
