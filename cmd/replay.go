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
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rotblauer/dashcat/common"
	"github.com/rotblauer/dashcat/events"
	"github.com/rotblauer/dashcat/fuse"
	"github.com/rotblauer/dashcat/geo/smooth"
	"github.com/rotblauer/dashcat/metrics/influxdb"
	"github.com/rotblauer/dashcat/state"
	"github.com/rotblauer/dashcat/stream"
	"github.com/spf13/cobra"
)

var optReplayFile string
var optReplaySmooth bool
var optReplayInflux bool
var optReplayNoPersist bool

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded sensor trace through the fusion engine",
	Long: `

Reads an NDJSON sensor trace (stdin by default, or --file) and drives the
fusion engine with it in file order, exactly as the callbacks would have
arrived live. Emitted events print as they fire; a run summary prints at
the end and the run is persisted to the data directory.

Replays are deterministic: the same trace produces the same fused states
and the same events, tick for tick. Handy for regression-hunting a weird
run somebody mailed in.

Flags:

  --file        Trace file to read instead of stdin.
  --smooth      Also run the trace's GPS fixes through a geodetic Kalman
                filter and report its terminal speed next to the engine's,
                as a second opinion on the trace quality.
  --influx      Export per-tick snapshots to InfluxDB (INFLUXDB_URL et al).
  --no-persist  Skip writing the run record and best times.

Examples:

  dashcat replay --file run-20240612.ndjson
  zcat runs/*.ndjson.gz | dashcat replay --no-persist
`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)

		var reader io.Reader = os.Stdin
		if optReplayFile != "" {
			f, err := os.Open(optReplayFile)
			if err != nil {
				log.Fatalln(err)
			}
			defer f.Close()
			reader = f
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		recs, errs := stream.ScanTraceRecords(ctx, reader)

		engine := fuse.NewEngine(nil)
		smoother := smooth.NewSmoother()

		var started bool
		var firstMillis, lastMillis int64
		var smoothedSpeed float64
		var smoothedOK bool
		var peakSpeed float64
		runEvents := []events.RunEvent{}
		snapshots := []fuse.Snapshot{}

		for rec := range recs {
			t := rec.Time().UnixMilli()
			if !started {
				engine.StartRun(t)
				firstMillis = t
				started = true
			}
			lastMillis = t

			switch {
			case rec.Accel != nil:
				engine.PushAccelSample(*rec.Accel)
			case rec.Gps != nil:
				engine.PushGpsFix(*rec.Gps)
				if optReplaySmooth {
					if v, ok := smoother.Observe(*rec.Gps); ok {
						smoothedSpeed, smoothedOK = v, true
					}
				}
			}
			tickSnap := engine.Snapshot()
			if tickSnap.Speed > peakSpeed {
				peakSpeed = tickSnap.Speed
			}
			if optReplayInflux {
				snapshots = append(snapshots, tickSnap)
			}

			for _, ev := range engine.DrainEvents() {
				printEvent(ev)
				runEvents = append(runEvents, ev)
			}
		}
		if err := <-errs; err != nil {
			log.Fatalln(err)
		}
		if !started {
			log.Fatalln("trace contained no usable records")
		}

		engine.StopRun(lastMillis)
		snap := engine.Snapshot()

		fmt.Printf("run: %s, %s m traveled, %.1f s\n",
			speedString(snap.Speed),
			humanize.Commaf(math.Round(snap.Distance)),
			float64(lastMillis-firstMillis)/1000.0)
		if optReplaySmooth && smoothedOK {
			fmt.Printf("smoothed gps terminal speed: %s\n", speedString(smoothedSpeed))
		}

		if !optReplayNoPersist {
			rec := state.RunRecord{
				StartMillis: firstMillis,
				StopMillis:  lastMillis,
				PeakSpeed:   peakSpeed,
				Distance:    snap.Distance,
				Launched:    snap.Launched,
				Events:      runEvents,
			}
			if store, err := state.Open(datadir(), false); err != nil {
				slog.Error("Failed to open state store", "error", err)
			} else {
				if err := store.WriteRun(rec); err != nil {
					slog.Error("Failed to persist run", "error", err)
				}
				store.Close()
			}
		}

		if optReplayInflux {
			if err := influxdb.ExportRun(firstMillis, snapshots); err != nil {
				slog.Error("InfluxDB export failed", "error", err)
			}
		}
	},
}

func speedString(metersPerSecond float64) string {
	return fmt.Sprintf("%.1f m/s (%.1f mph)", metersPerSecond, common.MPH(metersPerSecond))
}

func printEvent(ev events.RunEvent) {
	switch ev.Kind {
	case events.KindLaunch:
		fmt.Printf("launch          +%.2fs\n", ev.Elapsed.Seconds())
	case events.KindSpeedCheckpoint:
		fmt.Printf("checkpoint      %-10s %.2fs\n", ev.ID, ev.Elapsed.Seconds())
	case events.KindDistanceMilestone:
		fmt.Printf("milestone       %-10s %.2fs @ %s\n", ev.ID, ev.Elapsed.Seconds(), speedString(ev.Speed))
	}
}

func init() {
	rootCmd.AddCommand(replayCmd)

	flags := replayCmd.Flags()
	flags.StringVar(&optReplayFile, "file", "", "Trace file (default stdin)")
	flags.BoolVar(&optReplaySmooth, "smooth", false, "Run GPS fixes through the geodetic Kalman smoother")
	flags.BoolVar(&optReplayInflux, "influx", false, "Export snapshots to InfluxDB")
	flags.BoolVar(&optReplayNoPersist, "no-persist", false, "Skip persisting the run")
}
