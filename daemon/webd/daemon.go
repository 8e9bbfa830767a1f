package webd

import (
	"log"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/jellydator/ttlcache/v3"
	"github.com/olahol/melody"
	"github.com/rotblauer/dashcat/events"
	"github.com/rotblauer/dashcat/fuse"
	"github.com/rotblauer/dashcat/params"
	"github.com/rotblauer/dashcat/state"
)

const lastSnapshotKey = "last"

// WebDaemon serves the engine to the outside: snapshot and bests JSON over
// HTTP, live snapshots and events over a websocket, and a push endpoint a
// device streams its raw sensor trace to.
//
// The engine itself is single-threaded; the daemon owns the one goroutine
// contract by serializing every engine touch behind engineMu.
type WebDaemon struct {
	Config *params.WebDaemonConfig

	logger         *slog.Logger
	melodyInstance *melody.Melody

	engineMu sync.Mutex
	engine   *fuse.Engine

	store *state.Store

	// Run bookkeeping for persistence: the engine owns fused state, the
	// daemon remembers what the run looked like along the way.
	runStartMillis int64
	runEvents      []events.RunEvent
	peakSpeed      float64

	// lastSnaps greets newly connected websocket clients with the most
	// recent state, so a reconnecting display doesn't open on a blank.
	lastSnaps *ttlcache.Cache[string, fuse.Snapshot]
}

func NewWebDaemon(config *params.WebDaemonConfig, engine *fuse.Engine, store *state.Store) *WebDaemon {
	if config == nil {
		config = params.DefaultWebDaemonConfig()
	}
	return &WebDaemon{
		Config: config,
		logger: slog.With("d", "web"),
		engine: engine,
		store:  store,
		lastSnaps: ttlcache.New[string, fuse.Snapshot](
			ttlcache.WithTTL[string, fuse.Snapshot](params.CacheLastSnapshotTTL)),
	}
}

// Run starts the HTTP server (ListenAndServe) and waits for it,
// returning any server error.
func (s *WebDaemon) Run() error {
	go s.lastSnaps.Start()
	router := s.NewRouter()
	log.Printf("Starting web daemon on %s", s.Config.Address)
	return http.ListenAndServe(s.Config.Address, router)
}

func (s *WebDaemon) NewRouter() *mux.Router {
	s.initMelody()

	router := mux.NewRouter().StrictSlash(false)
	router.Use(loggingMiddleware)

	router.Path("/socket").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.melodyInstance.HandleRequest(w, r)
	})

	apiRoutes := router.NewRoute().Subrouter()

	// All API routes use permissive CORS settings.
	apiRoutes.Use(permissiveCorsMiddleware)

	// /ping is a simple server healthcheck endpoint
	apiRoutes.Path("/ping").HandlerFunc(pingPong)

	apiJSONRoutes := apiRoutes.NewRoute().Subrouter()
	apiJSONRoutes.Use(contentTypeMiddlewareFunc("application/json"))

	apiJSONRoutes.Path("/snapshot").HandlerFunc(s.handleSnapshot).Methods(http.MethodGet)
	apiJSONRoutes.Path("/bests").HandlerFunc(s.handleBests).Methods(http.MethodGet)
	apiJSONRoutes.Path("/runs").HandlerFunc(s.handleRuns).Methods(http.MethodGet)

	pushRoutes := apiJSONRoutes.NewRoute().Subrouter()
	pushRoutes.Use(tokenAuthenticationMiddleware)
	pushRoutes.Path("/push").HandlerFunc(s.handlePush).Methods(http.MethodPost)
	pushRoutes.Path("/run/start").HandlerFunc(s.handleRunStart).Methods(http.MethodPost)
	pushRoutes.Path("/run/stop").HandlerFunc(s.handleRunStop).Methods(http.MethodPost)

	return router
}
