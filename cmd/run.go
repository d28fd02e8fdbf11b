////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"github.com/chatwave/client/app"
	"github.com/chatwave/client/event"
)

// runCmd connects and prints chat activity until interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connects and prints chat activity until interrupted",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := login(messagePrinter())
		registerEventPrinter(client)
		startClient(client)

		ctx, cancel := requestContext()
		openScope(ctx, client, viper.GetString(openFlag),
			viper.GetString(openGroupFlag))
		cancel()

		profile := client.Session().Profile()
		jww.INFO.Printf("Signed in as %s (%s)", profile.Name(), profile.ID)
		fmt.Printf("%d conversations, %d groups, %d pending requests, "+
			"%d unread\n", len(client.Session().Conversations()),
			len(client.Session().Groups()), len(client.Session().Requests()),
			client.Session().UnreadTotal())

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		var timeout <-chan time.Time
		if wait := viper.GetDuration(waitTimeoutFlag); wait > 0 {
			timeout = time.After(wait)
		}

		select {
		case <-sigs:
			jww.INFO.Printf("Interrupted, shutting down")
		case reason := <-client.LoggedOut():
			jww.WARN.Printf("Logged out: %s", reason)
		case <-timeout:
			jww.INFO.Printf("Wait timeout reached, shutting down")
		}

		stopClient(client)
	},
}

// registerEventPrinter prints notices, call changes and session events to
// stdout. Sounds are left to a real UI.
func registerEventPrinter(client *app.Client) {
	err := client.Events().RegisterEventCallback("cli",
		func(priority int, category, evtType, details string) {
			if priority >= event.Warning {
				jww.WARN.Printf("[EVENT] %s %s %s", category, evtType, details)
			}
			fmt.Printf("%s: %s %s\n", category, evtType, details)
		}, event.Notice, event.Call, event.Session)
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
}

func init() {
	runCmd.Flags().String(openFlag, "",
		"ID of a conversation to open on start")
	bindFlagHelper(openFlag, runCmd)

	runCmd.Flags().String(openGroupFlag, "",
		"ID of a group to open on start")
	bindFlagHelper(openGroupFlag, runCmd)

	runCmd.Flags().Duration(waitTimeoutFlag, 0,
		"Stops after this long. Zero waits for an interrupt")
	bindFlagHelper(waitTimeoutFlag, runCmd)

	rootCmd.AddCommand(runCmd)
}
