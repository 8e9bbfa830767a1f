package webd

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rotblauer/dashcat/state"
	"github.com/rotblauer/dashcat/stream"
)

func pingPong(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"ping":"pong"}`))
}

func (s *WebDaemon) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.engineMu.Lock()
	snap := s.engine.Snapshot()
	s.engineMu.Unlock()
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error("Failed to encode snapshot", "error", err)
	}
}

func (s *WebDaemon) handleBests(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no store", http.StatusServiceUnavailable)
		return
	}
	bests, err := s.store.Bests()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(bests)
}

func (s *WebDaemon) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no store", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	runs, err := s.store.Runs(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(runs)
}

// handlePush ingests a batch of NDJSON sensor records from the device and
// feeds them through the engine in file order. Responds with the post-batch
// snapshot, which doubles as an ack the device can display.
func (s *WebDaemon) handlePush(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	recs, errs := stream.ScanTraceRecords(r.Context(), r.Body)

	s.engineMu.Lock()
	n := 0
	for rec := range recs {
		switch {
		case rec.Accel != nil:
			s.engine.PushAccelSample(*rec.Accel)
		case rec.Gps != nil:
			s.engine.PushGpsFix(*rec.Gps)
		}
		n++
	}
	snap := s.engine.Snapshot()
	drained := s.engine.DrainEvents()
	s.engineMu.Unlock()

	if err := <-errs; err != nil {
		s.logger.Error("Push scan failed", "error", err, "accepted", n)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.lastSnaps.Set(lastSnapshotKey, snap, ttlcache.DefaultTTL)
	if snap.Speed > s.peakSpeed {
		s.peakSpeed = snap.Speed
	}
	s.runEvents = append(s.runEvents, drained...)

	// Events reach websocket clients via the RunEventFeed relay; only the
	// snapshot needs an explicit broadcast here.
	s.broadcastSnapshot(snap)

	json.NewEncoder(w).Encode(snap)
}

type runControl struct {
	Now int64 `json:"now"`
}

func (s *WebDaemon) handleRunStart(w http.ResponseWriter, r *http.Request) {
	var rc runControl
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil || rc.Now == 0 {
		http.Error(w, "body must be {\"now\": <unix millis>}", http.StatusBadRequest)
		return
	}
	s.engineMu.Lock()
	s.engine.StartRun(rc.Now)
	snap := s.engine.Snapshot()
	s.engineMu.Unlock()

	s.runStartMillis = rc.Now
	s.runEvents = nil
	s.peakSpeed = 0
	json.NewEncoder(w).Encode(snap)
}

func (s *WebDaemon) handleRunStop(w http.ResponseWriter, r *http.Request) {
	var rc runControl
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil || rc.Now == 0 {
		http.Error(w, "body must be {\"now\": <unix millis>}", http.StatusBadRequest)
		return
	}
	s.engineMu.Lock()
	s.engine.StopRun(rc.Now)
	snap := s.engine.Snapshot()
	drained := s.engine.DrainEvents()
	s.engineMu.Unlock()

	s.runEvents = append(s.runEvents, drained...)
	if snap.Speed > s.peakSpeed {
		s.peakSpeed = snap.Speed
	}

	if s.store != nil {
		rec := state.RunRecord{
			StartMillis: s.runStartMillis,
			StopMillis:  rc.Now,
			PeakSpeed:   s.peakSpeed,
			Distance:    snap.Distance,
			Launched:    snap.Launched,
			Events:      s.runEvents,
		}
		if err := s.store.WriteRun(rec); err != nil {
			s.logger.Error("Failed to persist run", "error", err)
		}
	}
	json.NewEncoder(w).Encode(snap)
}
