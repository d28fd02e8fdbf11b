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
	"path/filepath"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"github.com/chatwave/client/messages"
)

// sendCmd sends one message or attachment and exits.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sends a message or file to a conversation or group",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		to, group := viper.GetString(toFlag), viper.GetString(groupFlag)
		if (to == "") == (group == "") {
			jww.FATAL.Panicf("Exactly one of --%s and --%s must be set",
				toFlag, groupFlag)
		}

		client := login(nil)
		startClient(client)
		defer stopClient(client)

		ctx, cancel := requestContext()
		defer cancel()
		openScope(ctx, client, to, group)

		var (
			m   messages.Message
			err error
		)
		text := viper.GetString(messageFlag)
		if path := viper.GetString(fileFlag); path != "" {
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				jww.FATAL.Panicf("Failed to read %s: %+v", path, readErr)
			}
			m, err = client.Session().SendAttachment(ctx, filepath.Base(path),
				data, text)
		} else {
			m, err = client.Session().SendMessage(ctx, text,
				viper.GetString(replyToFlag))
		}
		if err != nil {
			jww.FATAL.Panicf("Failed to send: %+v", err)
		}

		jww.INFO.Printf("Sent message %s to %s", m.ID, m.Scope())
		// NOTE: the message ID is printed for scripts
		fmt.Println(m.ID)
	},
}

func init() {
	sendCmd.Flags().String(toFlag, "", "ID of the conversation to send to")
	bindFlagHelper(toFlag, sendCmd)

	sendCmd.Flags().String(groupFlag, "", "ID of the group to send to")
	bindFlagHelper(groupFlag, sendCmd)

	sendCmd.Flags().StringP(messageFlag, "m", "",
		"Text to send, or the caption of a file")
	bindFlagHelper(messageFlag, sendCmd)

	sendCmd.Flags().StringP(fileFlag, "f", "", "Path of a file to send")
	bindFlagHelper(fileFlag, sendCmd)

	sendCmd.Flags().String(replyToFlag, "",
		"ID of the message being replied to")
	bindFlagHelper(replyToFlag, sendCmd)

	rootCmd.AddCommand(sendCmd)
}
