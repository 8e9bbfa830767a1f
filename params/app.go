package params

import (
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

var (
	// CacheLastSnapshotTTL bounds how long the web daemon will greet a new
	// websocket client with a stale snapshot.
	CacheLastSnapshotTTL = 1 * time.Minute
)

var DatadirRoot = func() string {
	home, err := homedir.Dir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".dashcat")
}()

// InfluxDB export settings, all from the environment; export is skipped when
// the URL is unset.
var (
	INFLUXDB_URL    = os.Getenv("INFLUXDB_URL")
	INFLUXDB_TOKEN  = os.Getenv("INFLUXDB_TOKEN")
	INFLUXDB_ORG    = os.Getenv("INFLUXDB_ORG")
	INFLUXDB_BUCKET = os.Getenv("INFLUXDB_BUCKET")
)
