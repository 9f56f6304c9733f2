package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/generator"
	"github.com/df-mc/chunkgen/server/world/level"
	"github.com/df-mc/chunkgen/server/world/stage"
	"github.com/df-mc/chunkgen/server/world/worker"
)

// recorder is a generator that records every stage it runs and checks that
// the chunks it receives are in the state the stage requires.
type recorder struct {
	mu         sync.Mutex
	active     map[chunk.Pos]bool
	runs       map[chunk.Pos][]stage.Stage
	violations []string

	block   stage.Stage
	started chan struct{}
	gate    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{active: make(map[chunk.Pos]bool), runs: make(map[chunk.Pos][]stage.Stage)}
}

// blockOn makes every run of stage s wait until the returned function is
// called.
func (r *recorder) blockOn(s stage.Stage) (release func()) {
	r.block, r.started, r.gate = s, make(chan struct{}, 1), make(chan struct{})
	var once sync.Once
	return func() { once.Do(func() { close(r.gate) }) }
}

func (r *recorder) Generate(s stage.Stage, c *chunk.Cache) error {
	r.mu.Lock()
	centre := c.CenterChunk()
	if centre.Proto == nil || centre.Proto.Status != s-1 {
		r.violations = append(r.violations, fmt.Sprintf("%v at %v ran on %v", s, c.Center(), centre.Status()))
	}
	radius := c.Radius()
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			pos := c.Center().Add(int32(dx), int32(dz))
			if r.active[pos] {
				r.violations = append(r.violations, fmt.Sprintf("%v used by two workers", pos))
			}
			r.active[pos] = true
			d := max(dx, -dx, dz, -dz)
			if got := c.At(dx, dz).Status(); got < stage.DirectDependency(s, d) {
				r.violations = append(r.violations, fmt.Sprintf("%v at %v saw neighbour %v at %v", s, c.Center(), pos, got))
			}
		}
	}
	r.mu.Unlock()

	if r.gate != nil && s == r.block {
		select {
		case r.started <- struct{}{}:
		default:
		}
		<-r.gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			delete(r.active, c.Center().Add(int32(dx), int32(dz)))
		}
	}
	r.runs[c.Center()] = append(r.runs[c.Center()], s)
	if s == stage.Lighting {
		centre.Proto.Lit = true
	}
	return nil
}

func (r *recorder) check(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.violations {
		t.Errorf("generator: %v", v)
	}
	for pos, runs := range r.runs {
		for i, s := range runs {
			if s != stage.StructureStart+stage.Stage(i) {
				t.Fatalf("stages at %v ran out of order: %v", pos, runs)
			}
		}
	}
}

// notifications counts the listener calls per position.
type notifications struct {
	mu sync.Mutex
	n  map[chunk.Pos]int
}

func (n *notifications) NewChunk(pos chunk.Pos, _ *chunk.Level) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.n == nil {
		n.n = make(map[chunk.Pos]int)
	}
	n.n[pos]++
}

func (n *notifications) count(pos chunk.Pos) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.n[pos]
}

type env struct {
	s        *Schedule
	levels   *level.Channel
	provider *worker.MemProvider
	listener *notifications
	metrics  *Metrics
	cancel   context.CancelFunc
	err      chan error
}

func newEnv(t *testing.T, gen worker.Generator, opts ...func(*Config)) *env {
	t.Helper()
	e := &env{
		levels:   level.NewChannel(),
		provider: worker.NewMemProvider(),
		listener: &notifications{},
		metrics:  NewMetrics(),
		err:      make(chan error, 1),
	}
	conf := Config{
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Levels:      e.levels,
		Listener:    e.listener,
		Metrics:     e.metrics,
		UnloadRetry: 10 * time.Millisecond,
		Workers: worker.Config{
			Provider:   e.provider,
			Generator:  gen,
			Generators: 4,
			Height:     64,
		},
	}
	for _, opt := range opts {
		opt(&conf)
	}
	e.s = New(conf)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go func() { e.err <- e.s.Run(ctx) }()
	t.Cleanup(e.stop)
	return e
}

func (e *env) stop() {
	e.cancel()
	<-e.s.Done()
}

// inspect runs f on the scheduler goroutine.
func (e *env) inspect(t *testing.T, f func(s *Schedule)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.s.exec(ctx, func() { f(e.s) }); err != nil {
		t.Fatalf("exec: %v", err)
	}
}

// eventually polls cond on the scheduler goroutine until it holds.
func (e *env) eventually(t *testing.T, what string, cond func(s *Schedule) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ok := false
		e.inspect(t, func(s *Schedule) { ok = cond(s) })
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v", what)
}

func (e *env) waitIdle(t *testing.T) {
	t.Helper()
	e.eventually(t, "scheduler to become idle", func(s *Schedule) bool { return s.idle() })
}

func (e *env) waitPublic(t *testing.T, pos chunk.Pos) *chunk.Level {
	t.Helper()
	var l *chunk.Level
	e.eventually(t, fmt.Sprintf("%v to become public", pos), func(s *Schedule) bool {
		var ok bool
		l, ok = s.Public().Get(pos)
		return ok
	})
	return l
}

func TestSingleTicketReachesFull(t *testing.T) {
	rec := newRecorder()
	e := newEnv(t, rec)
	centre := chunk.Pos{0, 0}
	e.levels.AddTicket(centre, 0)

	e.waitPublic(t, centre)
	e.waitIdle(t)
	rec.check(t)

	if n := e.listener.count(centre); n != 1 {
		t.Fatalf("expected a single notification for %v, got %d", centre, n)
	}
	e.inspect(t, func(s *Schedule) {
		for pos, lvl := range s.levels {
			h, ok := s.holders[pos]
			if !ok {
				t.Fatalf("no holder for %v at level %d", pos, lvl)
			}
			if h.current < level.Target(lvl) {
				t.Fatalf("%v at %v below its target %v", pos, h.current, level.Target(lvl))
			}
			if h.public != (h.current == stage.Full) {
				t.Fatalf("%v public %v at %v", pos, h.public, h.current)
			}
		}
	})
	if v := e.metrics.Snapshot().Violations; v != 0 {
		t.Fatalf("expected no invariant violations, got %d", v)
	}
}

func TestWorkersNeverShareChunks(t *testing.T) {
	rec := newRecorder()
	e := newEnv(t, rec)
	e.levels.AddTicket(chunk.Pos{0, 0}, 2)
	e.levels.AddTicket(chunk.Pos{6, -3}, 1)

	e.waitPublic(t, chunk.Pos{6, -3})
	e.waitPublic(t, chunk.Pos{0, 0})
	e.waitIdle(t)
	rec.check(t)
	for x := int32(-2); x <= 2; x++ {
		for z := int32(-2); z <= 2; z++ {
			if _, ok := e.s.Public().Get(chunk.Pos{x, z}); !ok {
				t.Fatalf("expected %v to be public", chunk.Pos{x, z})
			}
		}
	}
}

func TestRepeatedLevelsDoNotRegenerate(t *testing.T) {
	rec := newRecorder()
	e := newEnv(t, rec)
	id := e.levels.AddTicket(chunk.Pos{0, 0}, 1)
	e.waitPublic(t, chunk.Pos{0, 0})
	e.waitIdle(t)
	before := e.metrics.Snapshot().Dispatched

	e.levels.SetTicket(level.Ticket{ID: id, Pos: chunk.Pos{0, 0}, Radius: 1})
	e.levels.MoveTicket(id, chunk.Pos{0, 0})
	time.Sleep(20 * time.Millisecond)
	e.waitIdle(t)

	after := e.metrics.Snapshot().Dispatched
	for s, n := range after {
		if before[s] != n {
			t.Fatalf("dispatched %v changed from %d to %d", s, before[s], n)
		}
	}
}

func TestBlockedTaskWaitsForDependency(t *testing.T) {
	rec := newRecorder()
	release := rec.blockOn(stage.Features)
	t.Cleanup(release)
	e := newEnv(t, rec)
	centre := chunk.Pos{0, 0}
	e.levels.AddTicket(centre, 0)

	select {
	case <-rec.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("features never ran")
	}
	e.inspect(t, func(s *Schedule) {
		h := s.holders[centre]
		k := h.tasks[stage.Full]
		if !s.graph.Contains(k) {
			t.Fatalf("expected a full task for %v", centre)
		}
		if s.graph.InDegree(k) == 0 {
			t.Fatalf("full task of %v has no unresolved prerequisites", centre)
		}
		if s.graph.Queued(k) {
			t.Fatalf("blocked full task of %v was queued", centre)
		}
	})
	if _, ok := e.s.Public().Get(centre); ok {
		t.Fatalf("%v published before features finished", centre)
	}

	release()
	e.waitPublic(t, centre)
	e.waitIdle(t)
	rec.check(t)
}

func TestFailedStageIsRetried(t *testing.T) {
	centre := chunk.Pos{0, 0}
	gen := generator.NewFailing(generator.New(7))
	gen.FailOn(centre, stage.Noise, 1)
	prov := &heldLoads{MemProvider: worker.NewMemProvider(), pos: centre, gate: make(chan struct{})}
	e := newEnv(t, gen, func(conf *Config) { conf.Workers.Provider = prov })
	t.Cleanup(prov.open)
	e.levels.AddTicket(centre, 0)

	// The chunk is read again after the failure, which holds it back until
	// the gate opens.
	e.eventually(t, "the failed chunk to be read again", func(s *Schedule) bool {
		h, ok := s.holders[centre]
		return ok && e.metrics.Snapshot().Failures[stage.Noise] == 1 && h.inflight == stage.Empty
	})
	e.inspect(t, func(s *Schedule) {
		h := s.holders[centre]
		if h.current != stage.None {
			t.Fatalf("expected %v to be reset to %v, got %v", centre, stage.None, h.current)
		}
		if !h.retry {
			t.Fatalf("expected %v to be marked for retry", centre)
		}
		if p := s.priority(centre, stage.Noise); p != s.level(centre)+stage.Noise.Ordinal()-s.conf.RetryBonus {
			t.Fatalf("retry bonus missing from priority %d", p)
		}
		if _, ok := s.Public().Get(centre); ok {
			t.Fatalf("%v published before it was regenerated", centre)
		}
	})

	prov.open()
	l := e.waitPublic(t, centre)
	e.waitIdle(t)
	if gen.Failures() != 1 {
		t.Fatalf("expected one injected failure, got %d", gen.Failures())
	}
	if n := e.listener.count(centre); n != 1 {
		t.Fatalf("expected a single notification for %v, got %d", centre, n)
	}
	if l.Block(0, 0, 0) != generator.Bedrock {
		t.Fatalf("expected generated terrain at %v", centre)
	}
	e.inspect(t, func(s *Schedule) {
		if s.holders[centre].retry {
			t.Fatalf("retry flag not cleared after reload")
		}
	})
}

func TestNeighbourWaitsForReservation(t *testing.T) {
	rec := newRecorder()
	release := rec.blockOn(stage.Features)
	t.Cleanup(release)
	e := newEnv(t, rec)
	e.levels.AddTicket(chunk.Pos{0, 0}, 1)

	select {
	case <-rec.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("features never ran")
	}
	e.eventually(t, "neighbours of running features tasks to wait", func(s *Schedule) bool {
		waiting := 0
		for _, h := range s.holders {
			if h.inflight != stage.Features {
				continue
			}
			for dx := int32(-1); dx <= 1; dx++ {
				for dz := int32(-1); dz <= 1; dz++ {
					nh, ok := s.holders[h.pos.Add(dx, dz)]
					if !ok || nh == h || nh.inflight == stage.Features {
						continue
					}
					k := nh.tasks[stage.Features]
					if !s.graph.Contains(k) {
						continue
					}
					if s.graph.InDegree(k) == 0 || s.graph.Queued(k) {
						return false
					}
					waiting++
				}
			}
		}
		return waiting > 0
	})
	for x := int32(-1); x <= 1; x++ {
		for z := int32(-1); z <= 1; z++ {
			if _, ok := e.s.Public().Get(chunk.Pos{x, z}); ok {
				t.Fatalf("%v published while features were held back", chunk.Pos{x, z})
			}
		}
	}

	release()
	for x := int32(-1); x <= 1; x++ {
		for z := int32(-1); z <= 1; z++ {
			e.waitPublic(t, chunk.Pos{x, z})
		}
	}
	e.waitIdle(t)
	rec.check(t)
	if n := e.metrics.Snapshot().Completed[stage.Features]; n < 9 {
		t.Fatalf("expected features to complete for every ticket chunk, got %d", n)
	}
}

func TestReferencedChunkIsNotUnloaded(t *testing.T) {
	centre := chunk.Pos{0, 0}
	e := newEnv(t, newRecorder())
	id := e.levels.AddTicket(centre, 0)
	e.waitPublic(t, centre)
	e.waitIdle(t)

	l, ok := e.s.Public().Acquire(centre)
	if !ok {
		t.Fatalf("expected to acquire %v", centre)
	}
	e.levels.RemoveTicket(id)
	e.eventually(t, "unload to be deferred", func(s *Schedule) bool {
		return e.metrics.Snapshot().Deferred > 0 && len(s.holders) == 1
	})
	e.inspect(t, func(s *Schedule) {
		if _, ok := s.Public().Get(centre); !ok {
			t.Fatalf("referenced chunk %v left the public map", centre)
		}
	})

	l.Release()
	e.eventually(t, "every holder to unload", func(s *Schedule) bool {
		return len(s.holders) == 0 && len(s.unloads) == 0
	})
	if e.s.Public().Len() != 0 {
		t.Fatalf("expected an empty public map")
	}
	if err := e.s.pool.Writes.Wait(context.Background()); err != nil {
		t.Fatalf("wait for writes: %v", err)
	}
	if c, ok := e.provider.Stored(centre); !ok || c.Level == nil {
		t.Fatalf("expected %v to be stored as a Level chunk", centre)
	}
	if _, ok := e.provider.Stored(chunk.Pos{3, 3}); !ok {
		t.Fatalf("expected proto neighbour to be stored")
	}
}

func TestDiscardedProtosAreWrittenOnUnload(t *testing.T) {
	centre := chunk.Pos{0, 0}
	e := newEnv(t, newRecorder(), func(conf *Config) { conf.DiscardProto = true })
	id := e.levels.AddTicket(centre, 0)
	e.waitPublic(t, centre)
	e.waitIdle(t)

	e.levels.RemoveTicket(id)
	e.eventually(t, "every holder to unload", func(s *Schedule) bool { return len(s.holders) == 0 })
	if err := e.s.pool.Writes.Wait(context.Background()); err != nil {
		t.Fatalf("wait for writes: %v", err)
	}
	if c, ok := e.provider.Stored(centre); !ok || c.Level == nil {
		t.Fatalf("expected %v to be stored as a Level chunk", centre)
	}
	c, ok := e.provider.Stored(chunk.Pos{3, 3})
	if !ok || c.Proto == nil {
		t.Fatalf("expected unloaded proto neighbour to be stored")
	}
	if c.Status() != stage.StructureStart {
		t.Fatalf("expected stored neighbour at %v, got %v", stage.StructureStart, c.Status())
	}
}

func TestUnloadedChunkIsReadBack(t *testing.T) {
	centre := chunk.Pos{0, 0}
	rec := newRecorder()
	e := newEnv(t, rec)
	id := e.levels.AddTicket(centre, 0)
	e.waitPublic(t, centre)
	e.levels.RemoveTicket(id)
	e.eventually(t, "every holder to unload", func(s *Schedule) bool { return len(s.holders) == 0 })

	before := e.metrics.Snapshot()
	e.levels.AddTicket(centre, 0)
	e.waitPublic(t, centre)
	e.waitIdle(t)
	after := e.metrics.Snapshot()
	if after.Completed[stage.Empty] <= before.Completed[stage.Empty] {
		t.Fatalf("expected chunks to be read back")
	}
	if after.Dispatched[stage.Full] != before.Dispatched[stage.Full] {
		t.Fatalf("stored chunk was generated again")
	}
}

func TestRemovingTicketLeavesNothingBehind(t *testing.T) {
	rec := newRecorder()
	release := rec.blockOn(stage.Noise)
	e := newEnv(t, rec)
	id := e.levels.AddTicket(chunk.Pos{2, 2}, 1)
	select {
	case <-rec.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("noise never ran")
	}
	e.levels.RemoveTicket(id)
	release()

	e.eventually(t, "every holder to unload", func(s *Schedule) bool {
		return len(s.holders) == 0 && s.idle()
	})
	e.inspect(t, func(s *Schedule) {
		if s.graph.Len() != 0 || s.graph.EdgeCount() != 0 {
			t.Fatalf("graph not empty: %d nodes, %d edges", s.graph.Len(), s.graph.EdgeCount())
		}
	})
	rec.check(t)
}

func TestWriterBackpressureIsCounted(t *testing.T) {
	prov := &gatedProvider{MemProvider: worker.NewMemProvider(), gate: make(chan struct{})}
	e := newEnv(t, newRecorder(), func(conf *Config) {
		conf.Workers.Provider = prov
		conf.Workers.WriteQueue = 1
	})
	t.Cleanup(prov.open)

	done := make(chan error, 1)
	go func() {
		done <- e.s.exec(context.Background(), func() {
			for x := range int32(3) {
				p := chunk.NewProto(chunk.Pos{x, 0}, 16)
				_ = e.s.pool.Writer.Write([]chunk.Chunk{chunk.FromProto(p)})
			}
		})
	}()
	deadline := time.Now().Add(5 * time.Second)
	for e.metrics.Snapshot().Backpressure == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("write queue never saturated")
		}
		time.Sleep(5 * time.Millisecond)
	}
	prov.open()
	if err := <-done; err != nil {
		t.Fatalf("exec: %v", err)
	}
}

func TestRelightRepublishes(t *testing.T) {
	centre := chunk.Pos{0, 0}
	rec := newRecorder()
	e := newEnv(t, rec)
	e.levels.AddTicket(centre, 0)
	old := e.waitPublic(t, centre)
	e.waitIdle(t)

	ctx := context.Background()
	if err := e.s.Relight(ctx, chunk.Pos{40, 40}); !errors.Is(err, ErrNotRelightable) {
		t.Fatalf("expected ErrNotRelightable, got %v", err)
	}
	if err := e.s.Relight(ctx, centre); err != nil {
		t.Fatalf("relight: %v", err)
	}
	e.eventually(t, "chunk to be republished", func(s *Schedule) bool {
		l, ok := s.Public().Get(centre)
		return ok && l != old
	})
	e.waitIdle(t)
	if n := e.listener.count(centre); n != 2 {
		t.Fatalf("expected two notifications for %v, got %d", centre, n)
	}
	if l, _ := e.s.Public().Get(centre); !l.Lit() {
		t.Fatalf("relit chunk is not lit")
	}
	rec.mu.Lock()
	runs := rec.runs[centre]
	rec.mu.Unlock()
	if runs[len(runs)-1] != stage.Full || runs[len(runs)-2] != stage.Lighting {
		t.Fatalf("expected lighting and full to run again, got %v", runs)
	}
}

func TestSaveStoresEveryChunk(t *testing.T) {
	e := newEnv(t, newRecorder())
	e.levels.AddTicket(chunk.Pos{0, 0}, 0)
	e.waitPublic(t, chunk.Pos{0, 0})
	e.waitIdle(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if c, ok := e.provider.Stored(chunk.Pos{0, 0}); !ok || c.Level == nil {
		t.Fatalf("expected the centre to be stored as a Level chunk")
	}
	c, ok := e.provider.Stored(chunk.Pos{3, 0})
	if !ok || c.Status() != stage.StructureStart {
		t.Fatalf("expected the outer ring to be stored at %v", stage.StructureStart)
	}
	e.inspect(t, func(s *Schedule) {
		if s.holders[chunk.Pos{3, 0}].chunk.Proto == c.Proto {
			t.Fatalf("save moved a proto out of its holder")
		}
		if s.holders[chunk.Pos{0, 0}].chunk.Level.Dirty() {
			t.Fatalf("saved Level chunk still dirty")
		}
	})

	st, err := e.s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Holders != 49 || st.Public != 1 || st.Nodes != 0 || st.InFlight != 0 || st.Waiting != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestStopSavesChunks(t *testing.T) {
	e := newEnv(t, newRecorder())
	e.levels.AddTicket(chunk.Pos{0, 0}, 0)
	e.waitPublic(t, chunk.Pos{0, 0})

	e.stop()
	if err := <-e.err; err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := e.provider.Stored(chunk.Pos{0, 0}); !ok {
		t.Fatalf("expected the centre to be stored on stop")
	}
	if _, err := e.s.Stats(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestClosingLevelsStopsScheduler(t *testing.T) {
	e := newEnv(t, newRecorder())
	e.levels.Close()
	select {
	case <-e.s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler kept running after its level channel closed")
	}
}

func TestLeakedNodesAreRemoved(t *testing.T) {
	if debug {
		t.Skip("invariant violations panic in debug builds")
	}
	m := NewMetrics()
	s := New(Config{
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Levels:  level.NewChannel(),
		Metrics: m,
		Workers: worker.Config{Provider: worker.NewMemProvider(), Generator: newRecorder()},
	})
	t.Cleanup(s.pool.Close)

	a := s.graph.AddNode(chunk.Pos{1, 1}, stage.Noise)
	b := s.graph.AddNode(chunk.Pos{1, 1}, stage.Surface)
	s.graph.AddEdge(a, b)
	s.graph.AddEdge(s.graph.Occupy(), a)
	s.ready(a)

	s.removeLeaks()
	if s.graph.Len() != 0 || s.graph.EdgeCount() != 0 {
		t.Fatalf("expected an empty graph, got %d nodes and %d edges", s.graph.Len(), s.graph.EdgeCount())
	}
	if s.queue.Len() != 0 {
		t.Fatalf("expected the queue to be cleared")
	}
	if v := m.Snapshot().Violations; v != 3 {
		t.Fatalf("expected 3 violations, got %d", v)
	}
}

func TestPriority(t *testing.T) {
	s := New(Config{
		Levels:  level.NewChannel(),
		Workers: worker.Config{Provider: worker.NewMemProvider(), Generator: newRecorder()},
	})
	t.Cleanup(s.pool.Close)

	pos := chunk.Pos{5, 5}
	s.levels = map[chunk.Pos]int{pos: 2}
	if p := s.priority(pos, stage.Noise); p != 2+stage.Noise.Ordinal() {
		t.Fatalf("unexpected base priority %d", p)
	}
	if p := s.priority(chunk.Pos{100, 100}, stage.Empty); p != level.Unreachable()+1 {
		t.Fatalf("unexpected priority %d without a level", p)
	}

	s.hints = []chunk.Pos{{6, 5}}
	if p := s.priority(pos, stage.Noise); p != 2+stage.Noise.Ordinal()-100 {
		t.Fatalf("hint not applied: %d", p)
	}
	if p := s.priority(pos, stage.Full); p != 2+stage.Full.Ordinal() {
		t.Fatalf("hint applied beyond the fast dependency: %d", p)
	}
	s.holderFor(pos).retry = true
	if p := s.priority(pos, stage.Full); p != 2+stage.Full.Ordinal()-200 {
		t.Fatalf("retry bonus not applied: %d", p)
	}
}

// gatedProvider blocks every Store until it is opened.
type gatedProvider struct {
	*worker.MemProvider
	gate chan struct{}
	once sync.Once
}

func (g *gatedProvider) Store(batch []chunk.Chunk) error {
	<-g.gate
	return g.MemProvider.Store(batch)
}

func (g *gatedProvider) open() {
	g.once.Do(func() { close(g.gate) })
}

// heldLoads holds back every load of pos after the first one until it is
// opened.
type heldLoads struct {
	*worker.MemProvider
	pos   chunk.Pos
	gate  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	loads int
}

func (h *heldLoads) Load(pos chunk.Pos) (chunk.Chunk, bool, error) {
	if pos == h.pos {
		h.mu.Lock()
		h.loads++
		n := h.loads
		h.mu.Unlock()
		if n > 1 {
			<-h.gate
		}
	}
	return h.MemProvider.Load(pos)
}

func (h *heldLoads) open() {
	h.once.Do(func() { close(h.gate) })
}
