package api

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"pdpnav/internal/config"
	"pdpnav/internal/model"
	"pdpnav/internal/route"
	"pdpnav/internal/rt"
	"pdpnav/internal/sink"
	"pdpnav/internal/solver"
	"pdpnav/internal/store"
)

type Server struct {
	Coordinator *rt.Coordinator
	Planner     *route.Planner
	Hub         *route.Hub
	Store       store.Store
	Broker      EventBroker
	Sink        *sink.Fanout
	Pool        *rt.Pool

	units      model.Units
	heartbeats *rate.Limiter
	pushMax    int
}

// NewServer wires the full service. If DatabaseURL is unset, uses the
// in-memory store; if RedisURL is unset, uses the in-memory broker.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	hub := route.NewHub()
	fan := sink.NewFanout(s, broker, hub)
	pool := rt.NewPool(cfg.PoolSize)
	engine := solver.NewALNS(solver.Config{
		Seed:            cfg.Search.Seed,
		TimeBudget:      cfg.Search.TimeBudget,
		IterationsLimit: cfg.Search.IterationsLimit,
		UnimprovedLimit: cfg.Search.UnimprovedLimit,
		InitialTemp:     cfg.Search.InitialTemp,
		Cooling:         cfg.Search.Cooling,
	})
	coord := rt.New(rt.Options{
		Units:  cfg.Units,
		Engine: engine,
		Pool:   pool,
		Sink:   fan,
	})

	rps := cfg.HeartbeatRPS
	if rps <= 0 {
		rps = 20
	}
	return &Server{
		Coordinator: coord,
		Planner:     route.NewPlanner(solver.NewInsertion(), true),
		Hub:         hub,
		Store:       s,
		Broker:      broker,
		Sink:        fan,
		Pool:        pool,
		units:       cfg.Units,
		heartbeats:  rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		pushMax:     cfg.PushAttempts,
	}, nil
}

// NewPushWorker creates the background worker for webhook pushes.
func (s *Server) NewPushWorker() *sink.Worker {
	return sink.NewWorker(s.Store, s.pushMax)
}
