// Package schedule implements the chunk generation scheduler.
//
// A single goroutine owns every holder, the dependency graph and the ready
// queue. Level changes become task nodes in the graph, tasks without
// unresolved prerequisites are dispatched to the worker pools, and results
// flow back through the pools' results queue where they unblock dependent
// tasks and publish finished chunks. Chunk payloads are moved, never copied,
// into the workers: a holder whose chunk is zero is owned by a worker, and a
// reservation node in the graph holds back every other task that needs it.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/graph"
	"github.com/df-mc/chunkgen/server/world/level"
	"github.com/df-mc/chunkgen/server/world/stage"
	"github.com/df-mc/chunkgen/server/world/worker"
)

// ErrStopped is returned by calls into a Schedule that is no longer running.
var ErrStopped = errors.New("schedule: scheduler stopped")

// Schedule is the chunk generation scheduler. Run must be called to start it.
type Schedule struct {
	conf    Config
	log     *slog.Logger
	metrics *Metrics
	pool    *worker.Pool
	public  *PublicMap

	graph   *graph.Graph
	queue   graph.Queue
	holders map[chunk.Pos]*holder

	levels map[chunk.Pos]int
	hints  []chunk.Pos

	inflight     int
	unloads      map[chunk.Pos]struct{}
	unloadsDirty bool

	results  []worker.Result
	commands chan func()
	done     chan struct{}
}

// New creates a Schedule and starts its worker pools.
func New(conf Config) *Schedule {
	if conf.Levels == nil {
		panic("schedule: scheduler requires a level channel")
	}
	conf = conf.withDefaults()
	s := &Schedule{
		conf:     conf,
		log:      conf.Log,
		metrics:  conf.Metrics,
		public:   NewPublicMap(),
		graph:    graph.New(),
		holders:  make(map[chunk.Pos]*holder),
		levels:   make(map[chunk.Pos]int),
		unloads:  make(map[chunk.Pos]struct{}),
		commands: make(chan func()),
		done:     make(chan struct{}),
	}
	if conf.Workers.OnWriteSaturated == nil {
		conf.Workers.OnWriteSaturated = s.metrics.IncBackpressure
	}
	s.pool = worker.New(conf.Workers)
	return s
}

// Public returns the map of chunks that finished generation.
func (s *Schedule) Public() *PublicMap {
	return s.public
}

// Metrics returns the metrics registry passed in the config, which may be
// nil.
func (s *Schedule) Metrics() *Metrics {
	return s.metrics
}

// Done returns a channel that is closed once Run returned.
func (s *Schedule) Done() <-chan struct{} {
	return s.done
}

// Run runs the scheduler until the context is cancelled or the level channel
// is closed. In-flight work is waited for, bounded by Config.ShutdownTimeout,
// and every chunk is saved before Run returns. A non-nil error is returned if
// the scheduler stopped because a worker pool was closed underneath it.
func (s *Schedule) Run(ctx context.Context) error {
	defer close(s.done)

	ticker := time.NewTicker(s.conf.UnloadRetry)
	defer ticker.Stop()

	levels := s.conf.Levels
	for {
		if err := s.step(); err != nil {
			s.log.Error("chunk scheduler stopped: " + err.Error())
			s.shutdown()
			return err
		}
		if s.queue.Len() > 0 {
			select {
			case f := <-s.commands:
				f()
			case <-ctx.Done():
				s.shutdown()
				return nil
			default:
			}
			continue
		}
		select {
		case <-s.pool.Results.Ready():
		case <-levels.Notify():
		case f := <-s.commands:
			f()
		case <-ticker.C:
			if len(s.unloads) > 0 {
				s.unloadsDirty = true
			}
		case <-levels.Done():
			s.shutdown()
			return nil
		case <-ctx.Done():
			s.shutdown()
			return nil
		}
	}
}

// step applies pending level updates, ingests results and dispatches up to
// Config.Dispatch ready tasks.
func (s *Schedule) step() error {
	for range s.conf.Dispatch {
		if u, ok := s.conf.Levels.Latest(); ok {
			s.apply(u)
		}
		s.drainResults()

		e, ok := s.queue.Pop()
		if !ok {
			break
		}
		s.graph.SetQueued(e.Key, false)
		if err := s.dispatch(e.Key); err != nil {
			return err
		}
	}
	s.drainResults()
	if s.unloadsDirty {
		return s.processUnloads()
	}
	return nil
}

func (s *Schedule) drainResults() {
	s.results = s.pool.Results.Drain(s.results[:0])
	for i, r := range s.results {
		s.ingest(r)
		s.results[i] = nil
	}
}

// exec runs f on the scheduler goroutine and waits for it to return.
func (s *Schedule) exec(ctx context.Context, f func()) error {
	ran := make(chan struct{})
	select {
	case s.commands <- func() { f(); close(ran) }:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// shutdown waits for in-flight work, saves every chunk and closes the pools.
func (s *Schedule) shutdown() {
	deadline := time.Now().Add(s.conf.ShutdownTimeout)
	for s.inflight > 0 && time.Now().Before(deadline) {
		s.results = s.pool.Results.Drain(s.results[:0])
		for _, r := range s.results {
			s.ingest(r)
		}
		if s.inflight > 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	forced := s.inflight > 0
	if forced {
		s.log.Warn("chunk scheduler stopping with work in flight", "inflight", s.inflight)
		go s.pool.Generators.Close()
	} else {
		s.pool.Generators.Close()
	}
	s.pool.Readers.Close()

	s.queue.Clear()
	batch := s.saveBatch(true)
	if err := s.pool.Writer.Write(batch); err != nil {
		s.log.Error("save chunks: "+err.Error(), "chunks", len(batch))
	}
	s.pool.Writer.Close()
	s.log.Debug("chunk scheduler stopped", "saved", len(batch), "holders", len(s.holders))
}

// assertf checks an internal invariant. Violations panic in debug builds and
// are logged otherwise, after which the caller repairs its state.
func (s *Schedule) assertf(cond bool, format string, args ...any) bool {
	if cond {
		return true
	}
	msg := fmt.Sprintf(format, args...)
	if debug {
		panic("schedule: " + msg)
	}
	s.log.Error("chunk scheduler invariant violated: " + msg)
	s.metrics.IncViolations()
	return false
}

func (s *Schedule) holderFor(pos chunk.Pos) *holder {
	h, ok := s.holders[pos]
	if !ok {
		h = newHolder(pos)
		s.holders[pos] = h
	}
	return h
}

// level returns the level of a position, or a level beyond every target if
// it has none.
func (s *Schedule) level(pos chunk.Pos) int {
	if l, ok := s.levels[pos]; ok {
		return l
	}
	return level.Unreachable()
}

// priority derives the priority of a task from the level table and hints.
// Lower values run first.
func (s *Schedule) priority(pos chunk.Pos, st stage.Stage) int {
	p := s.level(pos) + st.Ordinal()
	for _, hint := range s.hints {
		d := int(pos.Distance(hint))
		if d <= stage.FastRadius() && st <= stage.FastDependency(d) {
			p -= s.conf.HintBonus
			break
		}
	}
	if h, ok := s.holders[pos]; ok && h.retry {
		p -= s.conf.RetryBonus
	}
	return p
}

// ready queues a task whose prerequisites all resolved. It is passed to the
// graph as the callback of Remove.
func (s *Schedule) ready(k graph.NodeKey) {
	if s.graph.Queued(k) || s.graph.IsOccupy(k) {
		return
	}
	pos, st, ok := s.graph.Tag(k)
	if !ok {
		return
	}
	s.queue.Push(s.priority(pos, st), k)
	s.graph.SetQueued(k, true)
}

// removeNode removes a node, queueing every task it unblocks.
func (s *Schedule) removeNode(k graph.NodeKey) {
	s.graph.Remove(k, s.ready)
}
