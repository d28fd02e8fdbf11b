////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/ekv"

	"github.com/chatwave/client/app"
	"github.com/chatwave/client/messages"
	"github.com/chatwave/client/prefs"
)

// initParams returns the client parameters: the defaults, overridden by the
// params JSON, overridden by the individual URL flags.
func initParams() app.Params {
	params, err := app.GetParameters(viper.GetString(paramsFlag))
	if err != nil {
		jww.FATAL.Panicf("Failed to parse params JSON: %+v", err)
	}

	if u := viper.GetString(backendURLFlag); u != "" {
		params.Backend.URL = u
	}
	if u := viper.GetString(realtimeURLFlag); u != "" {
		params.Realtime.URL = u
	}
	if u := viper.GetString(auxURLFlag); u != "" {
		params.Backend.AuxURL = u
	}
	if k := viper.GetString(anonKeyFlag); k != "" {
		params.Backend.AnonKey = k
		params.Realtime.APIKey = k
	}
	if t := viper.GetDuration(timeoutFlag); t > 0 {
		params.Backend.Timeout = t
	}
	return params
}

// openPrefs opens the local preferences, or an in-memory store if no
// directory is set.
func openPrefs() *prefs.Prefs {
	dir := viper.GetString(prefsFlag)
	if dir == "" {
		jww.WARN.Printf("No preferences directory set; preferences will " +
			"not be kept")
		return prefs.New(ekv.MakeMemstore())
	}

	p, err := prefs.Open(dir, parsePassword(viper.GetString(passwordFlag)))
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	return p
}

// login builds a client for the access token without connecting.
func login(onChange messages.ChangeFunc) *app.Client {
	token := viper.GetString(tokenFlag)
	if token == "" {
		jww.FATAL.Panicf("An access token is required; set --%s or %s_TOKEN",
			tokenFlag, envPrefix)
	}

	client, err := app.Login(token, openPrefs(), initParams(), nil, onChange)
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	return client
}

// startClient starts the client's services, crashing on failure.
func startClient(client *app.Client) {
	if err := client.StartServices(); err != nil {
		jww.FATAL.Panicf("Failed to start services: %+v", err)
	}
}

// stopClient stops the client's services, logging a failure.
func stopClient(client *app.Client) {
	if err := client.StopServices(); err != nil {
		jww.ERROR.Printf("Failed to stop services: %+v", err)
	}
}

// requestContext returns a context bounded by the backend timeout.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(),
		initParams().Backend.Timeout)
}

// openScope opens the conversation or group named by the flags, if any.
func openScope(ctx context.Context, client *app.Client, conversationID,
	groupID string) {
	var err error
	switch {
	case conversationID != "":
		err = client.Session().OpenConversation(ctx, conversationID)
	case groupID != "":
		err = client.Session().OpenGroup(ctx, groupID)
	default:
		return
	}
	if err != nil {
		jww.FATAL.Panicf("Failed to open chat: %+v", err)
	}
}

// messagePrinter returns a ChangeFunc printing each confirmed message of
// the open chat once.
func messagePrinter() messages.ChangeFunc {
	var mux sync.Mutex
	printed := make(map[string]bool)
	return func(scope messages.Scope, l messages.List) {
		mux.Lock()
		defer mux.Unlock()
		for _, m := range l {
			if m.Optimistic || printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			fmt.Printf("%s %s %s: %s\n", m.CreatedAt.Format("15:04:05"),
				scope, m.SenderID, describe(m))
		}
	}
}

// describe renders a message's content for the terminal.
func describe(m messages.Message) string {
	if !m.HasAttachment() {
		return m.Content
	}
	out := fmt.Sprintf("[%s %s]", m.FileType, m.FileName)
	if m.Content != "" {
		out += " " + m.Content
	}
	return out
}

func parsePassword(pwStr string) string {
	if strings.HasPrefix(pwStr, "0x") {
		return getPWFromHexString(pwStr[2:])
	} else if strings.HasPrefix(pwStr, "b64:") {
		return getPWFromb64String(pwStr[4:])
	} else {
		return pwStr
	}
}

func getPWFromb64String(pwStr string) string {
	pwBytes, err := base64.StdEncoding.DecodeString(pwStr)
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	return string(pwBytes)
}

func getPWFromHexString(pwStr string) string {
	pwBytes, err := hex.DecodeString(pwStr)
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	return string(pwBytes)
}
