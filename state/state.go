// Package state persists run history and best interval times.
// One bbolt database holds two buckets: chronological run records, and the
// best (lowest) elapsed time per configured target.
package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotblauer/dashcat/events"
	"go.etcd.io/bbolt"
)

const stateDBName = "state.db"

var (
	runsBucket  = []byte("runs")
	bestsBucket = []byte("bests")
)

// RunRecord is one completed run.
type RunRecord struct {
	StartMillis int64             `json:"start"`
	StopMillis  int64             `json:"stop"`
	PeakSpeed   float64           `json:"peakSpeed"`
	Distance    float64           `json:"distance"`
	Launched    bool              `json:"launched"`
	Events      []events.RunEvent `json:"events,omitempty"`
}

// BestEntry is the standing record for one target.
type BestEntry struct {
	Elapsed  time.Duration `json:"elapsed"`
	RunStart int64         `json:"runStart"`
	Speed    float64       `json:"speed,omitempty"`
}

// Store wraps the database. Opening a writable store takes an flock; one
// writer at a time, same as any other bbolt consumer.
type Store struct {
	DB    *bbolt.DB
	rOnly bool
}

func Open(dir string, readOnly bool) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(filepath.Join(dir, stateDBName), 0600, &bbolt.Options{
		ReadOnly: readOnly,
		Timeout:  time.Second,
	})
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db, rOnly: readOnly}
	if !readOnly {
		err = db.Update(func(tx *bbolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists(runsBucket); err != nil {
				return err
			}
			_, err := tx.CreateBucketIfNotExists(bestsBucket)
			return err
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func runKey(startMillis int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(startMillis))
	return k
}

// WriteRun persists a run record and folds its checkpoint and milestone
// times into the bests bucket where they beat the standing entries.
func (s *Store) WriteRun(rec RunRecord) error {
	if s.rOnly {
		return fmt.Errorf("store is read-only")
	}
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := tx.Bucket(runsBucket).Put(runKey(rec.StartMillis), b); err != nil {
			return err
		}

		bests := tx.Bucket(bestsBucket)
		for _, ev := range rec.Events {
			if ev.Kind == events.KindLaunch {
				continue
			}
			key := []byte(ev.ID)
			entry := BestEntry{
				Elapsed:  ev.Elapsed,
				RunStart: rec.StartMillis,
				Speed:    ev.Speed,
			}
			if prev := bests.Get(key); prev != nil {
				var standing BestEntry
				if err := json.Unmarshal(prev, &standing); err == nil &&
					standing.Elapsed <= entry.Elapsed {
					continue
				}
			}
			eb, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := bests.Put(key, eb); err != nil {
				return err
			}
		}
		return nil
	})
}

// Runs returns up to limit most-recent runs, newest first. limit <= 0
// returns everything.
func (s *Store) Runs(limit int) ([]RunRecord, error) {
	out := []RunRecord{}
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runsBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Bests returns the standing record per target ID.
func (s *Store) Bests() (map[string]BestEntry, error) {
	out := map[string]BestEntry{}
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bestsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var entry BestEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out[string(k)] = entry
			return nil
		})
	})
	return out, err
}
