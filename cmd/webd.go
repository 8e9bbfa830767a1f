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
	"log"
	"log/slog"

	"github.com/rotblauer/dashcat/daemon/webd"
	"github.com/rotblauer/dashcat/fuse"
	"github.com/rotblauer/dashcat/params"
	"github.com/rotblauer/dashcat/state"
	"github.com/spf13/cobra"
)

var optHTTPAddr string

// webdCmd represents the webd command
var webdCmd = &cobra.Command{
	Use:   "webd",
	Short: "Start the webserver",
	Long: `Serves the fusion engine over HTTP and websocket: a device streams
raw sensor records to /push, displays poll /snapshot or subscribe to
/socket, and /bests and /runs read the persisted record book.`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)
		slog.Info("webd.Run")

		store, err := state.Open(datadir(), false)
		if err != nil {
			log.Fatalln(err)
		}
		defer store.Close()

		server := webd.NewWebDaemon(&params.WebDaemonConfig{
			DataDir: datadir(),
			ListenerConfig: params.ListenerConfig{
				Network: "tcp",
				Address: optHTTPAddr,
			},
		}, fuse.NewEngine(nil), store)

		if err := server.Run(); err != nil {
			log.Fatalln(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(webdCmd)

	defaults := params.DefaultWebDaemonConfig()
	pFlags := webdCmd.PersistentFlags()
	pFlags.StringVar(&optHTTPAddr, "address", defaults.Address, "HTTP address to listen on")
}
