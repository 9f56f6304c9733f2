package worker

import (
	"log/slog"
	"sync"

	"github.com/df-mc/chunkgen/server/world/chunk"
)

// ReaderConfig holds the parameters of a Readers pool.
type ReaderConfig struct {
	Log      *slog.Logger
	Provider Provider
	// Workers is the number of goroutines reading chunks.
	Workers int
	// Height is the height of chunks created when none was stored.
	Height int
	// Writes is consulted so that a chunk is never read while a write of it
	// is still pending.
	Writes  *Tracker
	Results *Queue
}

// Readers is the pool of disk readers. Every position submitted produces
// exactly one DiskResult: the stored chunk, or a fresh Empty proto chunk if
// none was stored or it could not be read.
type Readers struct {
	conf ReaderConfig

	mu     sync.RWMutex
	closed bool
	in     chan chunk.Pos
	wg     sync.WaitGroup
}

// NewReaders starts a pool of disk readers.
func NewReaders(conf ReaderConfig) *Readers {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Workers <= 0 {
		conf.Workers = 1
	}
	if conf.Writes == nil {
		conf.Writes = NewTracker()
	}
	r := &Readers{conf: conf, in: make(chan chunk.Pos, conf.Workers*2)}
	r.wg.Add(conf.Workers)
	for range conf.Workers {
		go r.run()
	}
	return r
}

// Read queues a read of the position passed. It blocks while every reader is
// busy and the queue is full.
func (r *Readers) Read(pos chunk.Pos) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	r.in <- pos
	return nil
}

func (r *Readers) run() {
	defer r.wg.Done()
	for pos := range r.in {
		r.conf.Results.Push(DiskResult{Pos: pos, Chunk: r.load(pos)})
	}
}

func (r *Readers) load(pos chunk.Pos) chunk.Chunk {
	r.conf.Writes.WaitPos(pos)

	c, found, err := r.conf.Provider.Load(pos)
	if err != nil {
		r.conf.Log.Error("load chunk: "+err.Error(), "X", pos[0], "Z", pos[1])
		found = false
	}
	if !found || c.IsZero() {
		return chunk.FromProto(chunk.NewProto(pos, r.conf.Height))
	}
	if c.Pos() != pos {
		r.conf.Log.Error("load chunk: stored position mismatch", "X", pos[0], "Z", pos[1], "stored", c.Pos())
		return chunk.FromProto(chunk.NewProto(pos, r.conf.Height))
	}
	return c
}

// Close stops accepting reads and waits for queued reads to finish.
func (r *Readers) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.in)
	r.mu.Unlock()
	r.wg.Wait()
}
