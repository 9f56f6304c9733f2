package worker

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/stage"
	"golang.org/x/time/rate"
)

// Task is a generation stage to run on the centre of a cache.
type Task struct {
	Stage stage.Stage
	Cache *chunk.Cache
}

// GeneratorConfig holds the parameters of a Generators pool.
type GeneratorConfig struct {
	Log       *slog.Logger
	Generator Generator
	// Workers is the number of goroutines running stages.
	Workers int
	// Slack is the number of tasks that may be queued on top of one per
	// worker.
	Slack   int
	Results *Queue
}

// Generators is the pool of generation workers. Every submitted task produces
// exactly one Generation or Failure.
type Generators struct {
	conf GeneratorConfig

	mu     sync.RWMutex
	closed bool
	in     chan Task
	wg     sync.WaitGroup

	saturation atomic.Uint64
	warn       rate.Sometimes
}

// NewGenerators starts a pool of generation workers.
func NewGenerators(conf GeneratorConfig) *Generators {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Workers <= 0 {
		conf.Workers = 1
	}
	g := &Generators{
		conf: conf,
		in:   make(chan Task, conf.Workers+max(conf.Slack, 0)),
		warn: rate.Sometimes{First: 1, Interval: time.Minute},
	}
	g.wg.Add(conf.Workers)
	for range conf.Workers {
		go g.run()
	}
	return g
}

// Generate queues a task. The cache is owned by the pool afterwards. If the
// queue is full, Generate blocks until a worker picks up a task.
func (g *Generators) Generate(t Task) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrClosed
	}
	select {
	case g.in <- t:
		return nil
	default:
	}
	g.handleBackpressure()
	g.in <- t
	return nil
}

// handleBackpressure counts a saturated generation queue and emits a
// throttled warning.
func (g *Generators) handleBackpressure() {
	count := g.saturation.Add(1)
	g.warn.Do(func() {
		g.conf.Log.Warn(
			"chunk generation queue saturated: generation backlog detected.",
			"queued_tasks", count,
			"queue_size", cap(g.in),
			"workers", g.conf.Workers,
		)
	})
}

// Saturation returns how often Generate had to block.
func (g *Generators) Saturation() uint64 {
	return g.saturation.Load()
}

// Queued returns the number of tasks waiting for a worker.
func (g *Generators) Queued() int {
	return len(g.in)
}

func (g *Generators) run() {
	defer g.wg.Done()
	for t := range g.in {
		g.conf.Results.Push(g.runTask(t))
	}
}

// runTask runs a single stage. A panicking generator is turned into a Failure
// so that the worker survives and the scheduler can retry the chunk.
func (g *Generators) runTask(t Task) (res Result) {
	pos := t.Cache.Center()
	defer func() {
		if r := recover(); r != nil {
			g.conf.Log.Error("generate chunk: panic", "error", fmt.Sprint(r), "X", pos[0], "Z", pos[1], "stage", t.Stage)
			res = g.failure(t, fmt.Errorf("worker: generator panicked: %v", r))
		}
	}()

	if !t.Stage.Generated() {
		return g.failure(t, fmt.Errorf("worker: stage %v is not run by generators", t.Stage))
	}
	centre := t.Cache.CenterChunk()
	if centre.Proto == nil {
		return g.failure(t, fmt.Errorf("worker: %v has no proto chunk to run %v on", pos, t.Stage))
	}
	if err := g.conf.Generator.Generate(t.Stage, t.Cache); err != nil {
		return g.failure(t, err)
	}
	centre.Proto.Status = t.Stage
	if t.Stage == stage.Full {
		t.Cache.SetCenter(chunk.FromLevel(chunk.NewLevel(centre.Proto)))
	}
	return Generation{Pos: pos, Stage: t.Stage, Radius: t.Cache.Radius(), Chunks: t.Cache.Take()}
}

func (g *Generators) failure(t Task, err error) Failure {
	return Failure{Pos: t.Cache.Center(), Stage: t.Stage, Err: err, Radius: t.Cache.Radius(), Chunks: t.Cache.Take()}
}

// Close stops accepting tasks and waits for queued tasks to finish.
func (g *Generators) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.in)
	g.mu.Unlock()
	g.wg.Wait()
}
