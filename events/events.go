package events

import (
	"time"

	"github.com/ethereum/go-ethereum/event"
)

type Kind string

const (
	KindLaunch            Kind = "launch"
	KindSpeedCheckpoint   Kind = "speed_checkpoint"
	KindDistanceMilestone Kind = "distance_milestone"
)

// RunEvent is one timing event emitted by the fusion engine, at most once
// per target per run. Elapsed is measured from the event basis: launch time
// if a launch was detected, run start otherwise.
type RunEvent struct {
	Kind    Kind          `json:"kind"`
	ID      string        `json:"id,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	// Speed is the fused speed at the crossing tick. Only distance
	// milestones carry it.
	Speed float64   `json:"speed,omitempty"`
	At    time.Time `json:"at"`
}

// RunEventFeed carries every RunEvent emitted by any engine in the process.
// The web daemon subscribes here to broadcast events to connected clients;
// the engine also queues events internally for poll-style collaborators.
var RunEventFeed = event.FeedOf[RunEvent]{}
