////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// envPrefix prefixes every environment variable read through viper, e.g.
// CHATWAVE_TOKEN for --token.
const envPrefix = "CHATWAVE"

// cpuProfile is the running CPU profile, if --profile-cpu was set.
var cpuProfile interface{ Stop() }

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to
// happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatwave",
	Short: "Runs a chat client against a chatwave backend",
	Args:  cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))

		if dir := viper.GetString(profileCpuFlag); dir != "" {
			cpuProfile = profile.Start(profile.CPUProfile,
				profile.ProfilePath(dir), profile.NoShutdownHook,
				profile.Quiet)
			jww.INFO.Printf("Writing CPU profile to %s", dir)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cpuProfile != nil {
			cpuProfile.Stop()
		}
	},
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}

	jww.INFO.Print(Version())
}

// initConfig loads the .env file, then binds the environment and the config
// file, if any. Flags set on the command line win over both.
func initConfig() {
	envFile := viper.GetString(envFileFlag)
	if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
		jww.WARN.Printf("Failed to load %s: %+v", envFile, err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cfgFile := viper.GetString(configFlag)
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		jww.FATAL.Panicf("Failed to read config file %s: %+v", cfgFile, err)
	}
}

// init is the initialization function for Cobra which defines commands
// and flags.
func init() {
	// NOTE: The point of init() is to be declarative.
	// There is one init in each sub command. Do not put variable declarations
	// here, and ensure all the Flags are of the *P variety, unless there's a
	// very good reason not to have them as local params to sub command."
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().UintP(logLevelFlag, "v", 0,
		"Verbose mode for debugging")
	bindPersistentFlagHelper(logLevelFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	bindPersistentFlagHelper(logFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(configFlag, "c", "",
		"Path to a YAML config file holding any of the flags")
	bindPersistentFlagHelper(configFlag, rootCmd)

	rootCmd.PersistentFlags().String(envFileFlag, ".env",
		"Path to a .env file of "+envPrefix+"_* variables")
	bindPersistentFlagHelper(envFileFlag, rootCmd)

	rootCmd.PersistentFlags().String(paramsFlag, "",
		"JSON overriding the default client parameters")
	bindPersistentFlagHelper(paramsFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(prefsFlag, "s", "",
		"Directory of the encrypted local preferences. Preferences are "+
			"kept in memory when empty")
	bindPersistentFlagHelper(prefsFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(passwordFlag, "p", "",
		"Password of the local preferences. Prefix with 0x for hex or "+
			"b64: for base64")
	bindPersistentFlagHelper(passwordFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(tokenFlag, "t", "",
		"Access token of the signed-in user")
	bindPersistentFlagHelper(tokenFlag, rootCmd)

	rootCmd.PersistentFlags().String(backendURLFlag, "",
		"Base URL of the REST and storage API")
	bindPersistentFlagHelper(backendURLFlag, rootCmd)

	rootCmd.PersistentFlags().String(realtimeURLFlag, "",
		"URL of the realtime websocket")
	bindPersistentFlagHelper(realtimeURLFlag, rootCmd)

	rootCmd.PersistentFlags().String(auxURLFlag, "",
		"Base URL of the auxiliary service")
	bindPersistentFlagHelper(auxURLFlag, rootCmd)

	rootCmd.PersistentFlags().String(anonKeyFlag, "",
		"Public API key sent with every request")
	bindPersistentFlagHelper(anonKeyFlag, rootCmd)

	rootCmd.PersistentFlags().Duration(timeoutFlag, 0,
		"Bounds each backend request. Zero uses the default")
	bindPersistentFlagHelper(timeoutFlag, rootCmd)

	rootCmd.PersistentFlags().String(profileCpuFlag, "",
		"Enables CPU profiling into the given directory")
	bindPersistentFlagHelper(profileCpuFlag, rootCmd)
}
