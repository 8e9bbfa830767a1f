package influxdb

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/rotblauer/dashcat/fuse"
	"github.com/rotblauer/dashcat/params"
)

// Enabled reports whether the environment configures an InfluxDB target.
func Enabled() bool {
	return params.INFLUXDB_URL != ""
}

// ExportRun posts one run's per-tick snapshots to an InfluxDB Write API.
// Because it accepts a slice, use whole runs. The Write API will buffer and
// flush. The last error encountered is returned.
func ExportRun(runStartMillis int64, snapshots []fuse.Snapshot) error {
	if !Enabled() {
		return fmt.Errorf("influxdb export not configured (INFLUXDB_URL unset)")
	}
	opts := influxdb2.DefaultOptions()
	opts.SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(params.INFLUXDB_URL, params.INFLUXDB_TOKEN, opts)
	writeAPI := client.WriteAPI(params.INFLUXDB_ORG, params.INFLUXDB_BUCKET)

	// Errors returns a channel for reading errors which occurs during async writes.
	// Must be called before performing any writes for errors to be collected.
	// The chan is unbuffered and must be drained or the writer will block.
	// https://github.com/influxdata/influxdb-client-go?tab=readme-ov-file#reading-async-errors
	errorsCh := writeAPI.Errors()
	var err error
	wait := sync.WaitGroup{}
	wait.Add(1)
	go func() {
		defer wait.Done()
		for e := range errorsCh {
			if e != nil {
				err = e
			}
		}
	}()

	runTag := strconv.FormatInt(runStartMillis, 10)
	for _, snap := range snapshots {
		p := influxdb2.NewPointWithMeasurement("fused").
			SetTime(snap.Time).
			AddTag("run", runTag).
			AddField("speed", snap.Speed).
			AddField("distance", snap.Distance).
			AddField("sigma", snap.Sigma).
			AddField("gps_reliability", snap.GpsReliability).
			AddField("moving", boolField(snap.Moving)).
			AddField("launched", boolField(snap.Launched)).
			AddField("gps_reliable", boolField(snap.GpsReliable)).
			AddField("calibrated", boolField(snap.Calibrated))
		writeAPI.WritePoint(p)
	}
	writeAPI.Flush()
	client.Close()
	wait.Wait()
	return err
}

func boolField(b bool) int {
	if b {
		return 1
	}
	return 0
}
