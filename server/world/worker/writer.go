package worker

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"golang.org/x/time/rate"
)

// WriterConfig holds the parameters of a Writer.
type WriterConfig struct {
	Log      *slog.Logger
	Provider Provider
	// Queue is the number of batches that may be queued before Write blocks.
	Queue  int
	Writes *Tracker
	// OnSaturated, if set, is called every time Write has to wait for the
	// writer to catch up.
	OnSaturated func()
}

// Writer is the single disk writer. Its bounded queue is the only point at
// which chunk producers are slowed down when the disk cannot keep up.
type Writer struct {
	conf WriterConfig

	mu     sync.RWMutex
	closed bool
	in     chan []chunk.Chunk
	done   chan struct{}

	saturation atomic.Uint64
	warn       rate.Sometimes
	failures   atomic.Uint64
}

// NewWriter starts the disk writer.
func NewWriter(conf WriterConfig) *Writer {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Queue <= 0 {
		conf.Queue = 500
	}
	if conf.Writes == nil {
		conf.Writes = NewTracker()
	}
	w := &Writer{
		conf: conf,
		in:   make(chan []chunk.Chunk, conf.Queue),
		done: make(chan struct{}),
		warn: rate.Sometimes{First: 1, Interval: time.Minute},
	}
	go w.run()
	return w
}

// Write queues a batch of chunks to be stored. The batch is owned by the
// writer afterwards. If the queue is full, Write blocks until the writer made
// room.
func (w *Writer) Write(batch []chunk.Chunk) error {
	if len(batch) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	w.conf.Writes.Add(batch)
	select {
	case w.in <- batch:
		return nil
	default:
	}
	w.handleBackpressure()
	w.in <- batch
	return nil
}

// handleBackpressure counts a saturated write queue and emits a throttled
// warning.
func (w *Writer) handleBackpressure() {
	count := w.saturation.Add(1)
	if w.conf.OnSaturated != nil {
		w.conf.OnSaturated()
	}
	w.warn.Do(func() {
		w.conf.Log.Warn(
			"chunk writer queue saturated: disk cannot keep up with generation.",
			"saturated_writes", count,
			"queue_size", cap(w.in),
		)
	})
}

// Saturation returns how often Write had to block.
func (w *Writer) Saturation() uint64 {
	return w.saturation.Load()
}

// Failures returns the number of batches the provider failed to store.
func (w *Writer) Failures() uint64 {
	return w.failures.Load()
}

// Queued returns the number of batches waiting for the writer.
func (w *Writer) Queued() int {
	return len(w.in)
}

func (w *Writer) run() {
	defer close(w.done)
	for batch := range w.in {
		w.store(batch)
	}
}

func (w *Writer) store(batch []chunk.Chunk) {
	defer w.conf.Writes.Done(batch)

	// Clearing the dirty flag first keeps edits made while storing.
	for _, c := range batch {
		if c.Level != nil {
			c.Level.MarkClean()
		}
	}
	if err := w.conf.Provider.Store(batch); err != nil {
		w.failures.Add(1)
		for _, c := range batch {
			if c.Level != nil {
				c.Level.MarkDirty()
			}
		}
		first := batch[0].Pos()
		w.conf.Log.Error("save chunks: "+err.Error(), "chunks", len(batch), "X", first[0], "Z", first[1])
	}
}

// Close stops accepting batches and waits until every queued batch was
// stored.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.in)
	w.mu.Unlock()
	<-w.done
}
