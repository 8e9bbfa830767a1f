package stream

import (
	"bufio"
	"context"
	"io"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotblauer/dashcat/types/sensor"
)

// dedupeCacheSize bounds the recently-seen-line cache. Traces are
// concatenations of whatever the phone logger flushed; flush retries
// duplicate lines near each other, so a small window suffices.
const dedupeCacheSize = 512

// ScanTraceRecords reads NDJSON sensor records from reader and sends them
// in file order. Lines that fail to decode are counted and skipped, not
// fatal: a half-written final line is normal for a logger killed mid-run.
// Exactly-duplicated lines (logger flush retries) are dropped via a
// bounded LRU of recently seen lines.
func ScanTraceRecords(ctx context.Context, reader io.Reader) (<-chan sensor.Record, <-chan error) {
	out := make(chan sensor.Record)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		seen, err := lru.New[string, struct{}](dedupeCacheSize)
		if err != nil {
			errs <- err
			return
		}

		dropped, duped := 0, 0
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if _, dupe := seen.Get(string(line)); dupe {
				duped++
				continue
			}
			seen.Add(string(line), struct{}{})

			rec, err := sensor.DecodeRecord(line)
			if err != nil {
				dropped++
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- rec:
			}
		}
		if dropped > 0 || duped > 0 {
			slog.Warn("trace scan skipped lines", "undecodable", dropped, "duplicate", duped)
		}
		if err := scanner.Err(); err != nil {
			errs <- err
		}
	}()

	return out, errs
}
