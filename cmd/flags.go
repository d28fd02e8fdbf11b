////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// This is a list of CLI flag name constants. Root level flags are at the top,
// followed by the flags of each subcommand. Pulling flags using Viper should
// use the constants defined here.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Log flags
	logLevelFlag = "logLevel"
	logFlag      = "log"

	// Config flags
	configFlag  = "config"
	envFileFlag = "env"
	paramsFlag  = "params"

	// Session flags
	prefsFlag    = "prefs"
	passwordFlag = "password"
	tokenFlag    = "token"

	// Backend flags
	backendURLFlag  = "backend-url"
	realtimeURLFlag = "realtime-url"
	auxURLFlag      = "aux-url"
	anonKeyFlag     = "anon-key"

	// Misc
	profileCpuFlag = "profile-cpu"
	timeoutFlag    = "timeout"

	///////////////// Run subcommand flags ////////////////////////////////////
	openFlag        = "open"
	openGroupFlag   = "open-group"
	waitTimeoutFlag = "waitTimeout"

	///////////////// Send subcommand flags ///////////////////////////////////
	toFlag      = "to"
	groupFlag   = "group"
	messageFlag = "message"
	fileFlag    = "file"
	replyToFlag = "reply-to"

	///////////////// Register token subcommand flags /////////////////////////
	appFlag    = "app"
	removeFlag = "remove"

	///////////////// Prefs subcommand flags //////////////////////////////////
	soundFlag  = "sound"
	forgetFlag = "forget"

	///////////////// Init subcommand flags ///////////////////////////////////
	emailFlag        = "email"
	refreshTokenFlag = "refresh-token"
)

// bindFlagHelper binds the key to a pflag.Flag used by Cobra and prints an
// error if one occurs.
func bindFlagHelper(key string, command *cobra.Command) {
	err := viper.BindPFlag(key, command.Flags().Lookup(key))
	if err != nil {
		jww.ERROR.Printf("viper.BindPFlag failed for %q: %+v", key, err)
	}
}

// bindPersistentFlagHelper binds the key to a persistent pflag.Flag used by
// Cobra and prints an error if one occurs.
func bindPersistentFlagHelper(key string, command *cobra.Command) {
	err := viper.BindPFlag(key, command.PersistentFlags().Lookup(key))
	if err != nil {
		jww.ERROR.Printf("viper.BindPFlag failed for %q: %+v", key, err)
	}
}
