// Package worker implements the pools that do the blocking work of chunk
// generation on behalf of the scheduler: reading chunks from disk, writing
// them back, and running generation stages. Pools are only reached through
// channels and report back through a shared results Queue.
package worker

import (
	"errors"
	"log/slog"
	"runtime"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/stage"
)

// ErrClosed is returned when submitting work to a pool that was closed.
var ErrClosed = errors.New("worker: pool closed")

// Provider loads and stores chunks. Implementations must be safe for
// concurrent use by multiple readers and the writer.
type Provider interface {
	// Load reads the chunk at the position passed. found is false if no
	// chunk was stored there.
	Load(pos chunk.Pos) (c chunk.Chunk, found bool, err error)
	// Store persists a batch of chunks.
	Store(batch []chunk.Chunk) error
}

// Generator runs a generation stage. The chunk at the centre of the cache has
// reached the stage before s and every neighbour the stage depends on has
// reached the stage required by stage.DirectDependency. Generate may modify
// every chunk in the cache and must not retain it.
type Generator interface {
	Generate(s stage.Stage, c *chunk.Cache) error
}

// Result is a message sent back to the scheduler. It is one of DiskResult,
// Generation or Failure.
type Result interface {
	result()
}

// DiskResult is the chunk read, or created, for a position.
type DiskResult struct {
	Pos   chunk.Pos
	Chunk chunk.Chunk
}

// Generation is the outcome of a successful generation stage: every chunk of
// the cache the stage ran on, in the order they were submitted.
type Generation struct {
	Pos    chunk.Pos
	Stage  stage.Stage
	Radius int
	Chunks []chunk.Chunk
}

// Failure reports a generation stage that returned an error or panicked. The
// chunks of the cache are handed back so that neighbours are not lost.
type Failure struct {
	Pos    chunk.Pos
	Stage  stage.Stage
	Err    error
	Radius int
	Chunks []chunk.Chunk
}

func (DiskResult) result() {}
func (Generation) result() {}
func (Failure) result()    {}

// Config holds the parameters of a Pool. The zero value of every field but
// Provider and Generator is usable.
type Config struct {
	// Log is the logger used by every worker. If nil, slog.Default() is used.
	Log *slog.Logger
	// Provider is used to read and write chunks.
	Provider Provider
	// Generator runs generation stages.
	Generator Generator
	// Readers is the number of disk readers. Defaults to 2.
	Readers int
	// Generators is the number of generation workers. Defaults to the number
	// of CPUs.
	Generators int
	// WriteQueue is the number of batches that may wait for the writer before
	// Write blocks. Defaults to 500.
	WriteQueue int
	// GenerationSlack is the number of tasks that may wait for a generation
	// worker on top of one per worker. Defaults to 4.
	GenerationSlack int
	// Height is the height of chunks created when none exists on disk.
	Height int
	// OnWriteSaturated, if set, is called every time the write queue is full.
	OnWriteSaturated func()
}

func (c Config) withDefaults() Config {
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.Readers <= 0 {
		c.Readers = 2
	}
	if c.Generators <= 0 {
		c.Generators = runtime.NumCPU()
	}
	if c.WriteQueue <= 0 {
		c.WriteQueue = 500
	}
	if c.GenerationSlack < 0 {
		c.GenerationSlack = 0
	} else if c.GenerationSlack == 0 {
		c.GenerationSlack = 4
	}
	if c.Height <= 0 {
		c.Height = chunk.DefaultHeight
	}
	return c
}

// Pool bundles the reader, writer and generation pools around a single
// results queue.
type Pool struct {
	Results    *Queue
	Writes     *Tracker
	Readers    *Readers
	Writer     *Writer
	Generators *Generators
}

// New starts every pool described by the config.
func New(conf Config) *Pool {
	if conf.Provider == nil {
		panic("worker: pool requires a provider")
	}
	if conf.Generator == nil {
		panic("worker: pool requires a generator")
	}
	conf = conf.withDefaults()
	p := &Pool{Results: NewQueue(), Writes: NewTracker()}
	p.Readers = NewReaders(ReaderConfig{
		Log:      conf.Log,
		Provider: conf.Provider,
		Workers:  conf.Readers,
		Height:   conf.Height,
		Writes:   p.Writes,
		Results:  p.Results,
	})
	p.Writer = NewWriter(WriterConfig{
		Log:         conf.Log,
		Provider:    conf.Provider,
		Queue:       conf.WriteQueue,
		Writes:      p.Writes,
		OnSaturated: conf.OnWriteSaturated,
	})
	p.Generators = NewGenerators(GeneratorConfig{
		Log:       conf.Log,
		Generator: conf.Generator,
		Workers:   conf.Generators,
		Slack:     conf.GenerationSlack,
		Results:   p.Results,
	})
	return p
}

// Close stops accepting work and waits for every pool to finish what was
// already submitted. Batches queued for the writer are always stored.
func (p *Pool) Close() {
	p.Readers.Close()
	p.Generators.Close()
	p.Writer.Close()
}
