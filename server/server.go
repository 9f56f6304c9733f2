// Package server runs a standalone chunk generation server: a level channel
// that tickets and player hints are placed on, the scheduler generating the
// chunks they ask for, and the provider the chunks are stored in.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/generator"
	"github.com/df-mc/chunkgen/server/world/level"
	"github.com/df-mc/chunkgen/server/world/schedule"
	"github.com/df-mc/chunkgen/server/world/stage"
	"github.com/df-mc/chunkgen/server/world/worker"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Server owns a scheduler and the level channel driving it.
type Server struct {
	conf    Config
	levels  *level.Channel
	sched   *schedule.Schedule
	spawn   uuid.UUID
	running atomic.Bool
}

// New creates a Server using fields of conf. Generation starts once Run is
// called.
func (conf Config) New() *Server {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Provider == nil {
		conf.Provider = worker.NewMemProvider()
	}
	if conf.Generator == nil {
		conf.Generator = generator.New(conf.Seed)
	}
	srv := &Server{conf: conf, levels: level.NewChannel()}

	sc := conf.Schedule
	sc.Log = conf.Log
	sc.Levels = srv.levels
	sc.Workers.Log = conf.Log
	sc.Workers.Provider = conf.Provider
	sc.Workers.Generator = conf.Generator
	srv.sched = schedule.New(sc)

	if conf.SpawnRadius >= 0 {
		srv.spawn = srv.levels.AddTicket(conf.Spawn, conf.SpawnRadius)
	}
	return srv
}

// Levels returns the channel that tickets and high priority hints are placed
// on.
func (srv *Server) Levels() *level.Channel {
	return srv.levels
}

// Chunks returns the map of fully generated chunks.
func (srv *Server) Chunks() *schedule.PublicMap {
	return srv.sched.Public()
}

// Schedule returns the scheduler of the Server.
func (srv *Server) Schedule() *schedule.Schedule {
	return srv.sched
}

// SpawnTicket returns the id of the ticket placed around spawn. The zero UUID
// is returned if the spawn ticket is disabled.
func (srv *Server) SpawnTicket() uuid.UUID {
	return srv.spawn
}

// Run generates chunks until the context is cancelled. Every chunk is saved
// before Run returns, after which the provider is closed if it implements
// io.Closer. Run may only be called once.
func (srv *Server) Run(ctx context.Context) error {
	if !srv.running.CompareAndSwap(false, true) {
		return errors.New("server: Run called more than once")
	}
	srv.conf.Log.Info("Starting chunk generation.", "spawn", srv.conf.Spawn, "radius", srv.conf.SpawnRadius)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer srv.levels.Close()
		return srv.sched.Run(ctx)
	})
	if srv.conf.StatsInterval > 0 {
		g.Go(func() error {
			srv.logStats(ctx)
			return nil
		})
	}
	err := g.Wait()

	if c, ok := srv.conf.Provider.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close provider: %w", cerr))
		}
	}
	srv.conf.Log.Info("Chunk generation stopped.")
	return err
}

// logStats logs the progress of the scheduler at every StatsInterval.
func (srv *Server) logStats(ctx context.Context) {
	t := time.NewTicker(srv.conf.StatsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-srv.sched.Done():
			return
		case <-t.C:
		}
		st, err := srv.sched.Stats(ctx)
		if err != nil {
			return
		}
		m := srv.sched.Metrics().Snapshot()
		var failures uint64
		for _, n := range m.Failures {
			failures += n
		}
		srv.conf.Log.Info("Chunk generation progress.",
			"public", st.Public,
			"holders", st.Holders,
			"queued", st.Queued,
			"inflight", st.InFlight,
			"waiting", st.Waiting,
			"nodes", st.Nodes,
			"pending_writes", st.PendingWrites,
			"full", m.Completed[stage.Full],
			"failures", failures,
			"backpressure", m.Backpressure,
		)
	}
}

// Save persists every chunk that changed since it was last saved.
func (srv *Server) Save(ctx context.Context) error {
	return srv.sched.Save(ctx)
}

// WaitChunk blocks until the chunk at the position passed is public and
// returns it with a reference acquired. The caller must Release it.
func (srv *Server) WaitChunk(ctx context.Context, pos chunk.Pos) (*chunk.Level, error) {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for {
		if l, ok := srv.Chunks().Acquire(pos); ok {
			return l, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-srv.sched.Done():
			return nil, schedule.ErrStopped
		case <-t.C:
		}
	}
}
