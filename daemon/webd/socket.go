package webd

import (
	"encoding/json"
	"log"
	"log/slog"

	"github.com/olahol/melody"
	"github.com/rotblauer/dashcat/events"
	"github.com/rotblauer/dashcat/fuse"
)

type websocketAction string

var (
	websocketActionSnapshot websocketAction = "snapshot"
	websocketActionEvent    websocketAction = "event"
)

type broadcast struct {
	Action   websocketAction  `json:"action"`
	Snapshot *fuse.Snapshot   `json:"snapshot,omitempty"`
	Event    *events.RunEvent `json:"event,omitempty"`
}

// initMelody sets up the websocket handler.
func (s *WebDaemon) initMelody() {
	s.melodyInstance = melody.New()

	// Greet a connecting client with whatever recent state we hold, so the
	// display renders immediately instead of waiting for the next push.
	s.melodyInstance.HandleConnect(func(sess *melody.Session) {
		log.Println("[websocket] connected", sess.Request.RemoteAddr)
		for _, v := range s.lastSnaps.Items() {
			snap := v.Value()
			b, _ := json.Marshal(broadcast{
				Action:   websocketActionSnapshot,
				Snapshot: &snap,
			})
			sess.Write(b)
		}
	})

	// Right now don't care about incoming messages from clients. Log and drop.
	s.melodyInstance.HandleMessage(func(sess *melody.Session, msg []byte) {
		log.Println("[websocket] message", string(msg))
	})

	s.melodyInstance.HandleDisconnect(func(sess *melody.Session) {
		log.Println("[websocket] disconnected", sess.Request.RemoteAddr)
	})

	s.melodyInstance.HandleError(func(sess *melody.Session, e error) {
		log.Println("[websocket] error", e, sess.Request.RemoteAddr)
	})

	// Engines elsewhere in the process (a replay, say) publish onto the
	// global feed; relay those to clients too.
	evs := make(chan events.RunEvent)
	sub := events.RunEventFeed.Subscribe(evs)
	go func() {
		for {
			select {
			case ev := <-evs:
				s.broadcastEvent(ev)
			case err := <-sub.Err():
				slog.Error("Failed to subscribe to RunEventFeed", "error", err)
				return
			}
		}
	}()
}

func (s *WebDaemon) broadcastSnapshot(snap fuse.Snapshot) {
	b, err := json.Marshal(broadcast{
		Action:   websocketActionSnapshot,
		Snapshot: &snap,
	})
	if err != nil {
		slog.Error("Failed to marshal snapshot broadcast", "error", err)
		return
	}
	if err := s.melodyInstance.Broadcast(b); err != nil {
		slog.Warn("Failed to broadcast snapshot", "error", err)
	}
}

func (s *WebDaemon) broadcastEvent(ev events.RunEvent) {
	b, err := json.Marshal(broadcast{
		Action: websocketActionEvent,
		Event:  &ev,
	})
	if err != nil {
		slog.Error("Failed to marshal event broadcast", "error", err)
		return
	}
	if err := s.melodyInstance.Broadcast(b); err != nil {
		slog.Warn("Failed to broadcast event", "error", err)
	}
}
