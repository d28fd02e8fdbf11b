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

// prefsCmd shows and edits the local preferences.
var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Shows or changes the local preferences",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		p := openPrefs()

		switch sound := viper.GetString(soundFlag); sound {
		case "":
		case "on", "off":
			if err := p.SetSoundEnabled(sound == "on"); err != nil {
				jww.FATAL.Panicf("%+v", err)
			}
		default:
			jww.FATAL.Panicf("--%s must be on or off, not %q", soundFlag,
				sound)
		}

		if viper.GetBool(forgetFlag) {
			if err := p.ForgetCredentials(); err != nil {
				jww.FATAL.Panicf("%+v", err)
			}
			if err := p.ClearLastSelectedChat(); err != nil {
				jww.FATAL.Panicf("%+v", err)
			}
		}

		fmt.Printf("sound: %t\n", p.SoundEnabled())
		if c, ok, err := p.Credentials(); err != nil {
			jww.ERROR.Printf("Failed to read credentials: %+v", err)
		} else if ok {
			fmt.Printf("signed in as: %s\n", c.Email)
		}
		if s, ok, err := p.LastSelectedChat(); err != nil {
			jww.ERROR.Printf("Failed to read last chat: %+v", err)
		} else if ok {
			kind := "conversation"
			if s.Group {
				kind = "group"
			}
			fmt.Printf("last chat: %s %s\n", kind, s.ID)
		}
		if t, ok, err := p.PushToken(); err != nil {
			jww.ERROR.Printf("Failed to read push token: %+v", err)
		} else if ok {
			fmt.Printf("push token: %s (%s)\n", t.Token, t.App)
		}
	},
}

func init() {
	prefsCmd.Flags().String(soundFlag, "",
		"Turns notification sounds on or off")
	bindFlagHelper(soundFlag, prefsCmd)

	prefsCmd.Flags().Bool(forgetFlag, false,
		"Forgets the remembered sign-in and last open chat")
	bindFlagHelper(forgetFlag, prefsCmd)

	rootCmd.AddCommand(prefsCmd)
}
