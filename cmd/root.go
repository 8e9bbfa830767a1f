/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"log/slog"
	"os"

	"github.com/rotblauer/dashcat/params"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var optVerbose bool
var optDatadir string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dashcat",
	Short: "Fused-speed performance timing from phone sensors",
	Long: `dashcat fuses a phone's accelerometer and GPS streams into one
ground-speed estimate and times acceleration intervals on it:
0-60 mph, eighth- and quarter-mile, and friends.

Sensor traces are NDJSON, one accel or gps record per line, the way the
phone logger writes them. Replay one with 'dashcat replay', serve live
pushes with 'dashcat webd', browse standing records with 'dashcat bests'.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pFlags := rootCmd.PersistentFlags()
	pFlags.BoolVarP(&optVerbose, "verbose", "v", false, "Debug logging")
	pFlags.StringVar(&optDatadir, "datadir", params.DatadirRoot, "Data directory (run history, best times)")

	viper.SetEnvPrefix("DASHCAT")
	viper.AutomaticEnv()
	viper.BindPFlag("datadir", pFlags.Lookup("datadir"))
	viper.BindPFlag("verbose", pFlags.Lookup("verbose"))
}

func setDefaultSlog(cmd *cobra.Command, args []string) {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetLogLoggerLevel(level)
}

func datadir() string {
	return viper.GetString("datadir")
}
