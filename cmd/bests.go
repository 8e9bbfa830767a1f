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
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotblauer/dashcat/state"
	"github.com/spf13/cobra"
)

// bestsCmd represents the bests command
var bestsCmd = &cobra.Command{
	Use:   "bests",
	Short: "List standing best times per target",
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)

		store, err := state.Open(datadir(), true)
		if err != nil {
			log.Fatalln(err)
		}
		defer store.Close()

		bests, err := store.Bests()
		if err != nil {
			log.Fatalln(err)
		}
		if len(bests) == 0 {
			fmt.Println("no recorded runs yet")
			return
		}

		ids := make([]string, 0, len(bests))
		for id := range bests {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			entry := bests[id]
			when := humanize.Time(time.UnixMilli(entry.RunStart))
			if entry.Speed > 0 {
				fmt.Printf("%-12s %7.3fs  @ %s  (%s)\n",
					id, entry.Elapsed.Seconds(), speedString(entry.Speed), when)
				continue
			}
			fmt.Printf("%-12s %7.3fs  (%s)\n", id, entry.Elapsed.Seconds(), when)
		}
	},
}

func init() {
	rootCmd.AddCommand(bestsCmd)
}
