package schedule

import (
	"log/slog"
	"time"

	"github.com/df-mc/chunkgen/server/world/level"
	"github.com/df-mc/chunkgen/server/world/worker"
)

// Config holds the parameters of a Schedule. Levels, Workers.Provider and
// Workers.Generator must be set; every other field has a usable zero value.
type Config struct {
	// Log is the logger used by the scheduler. If nil, slog.Default() is used.
	Log *slog.Logger
	// Levels streams the target stages and high priority hints the scheduler
	// works towards. Closing it stops the scheduler.
	Levels *level.Channel
	// Workers configures the reader, writer and generation pools. Its logger
	// defaults to Log.
	Workers worker.Config
	// Listener is notified of chunks that become public. Defaults to
	// NopListener.
	Listener Listener
	// Metrics, if set, collects counters of the scheduler.
	Metrics *Metrics
	// HintBonus is subtracted from the priority of tasks close to a high
	// priority hint. Defaults to 100.
	HintBonus int
	// RetryBonus is subtracted from the priority of tasks of a chunk that is
	// regenerated after a failure. Defaults to 200.
	RetryBonus int
	// ShutdownTimeout bounds how long in-flight work is waited for when the
	// scheduler stops. Defaults to 5 seconds.
	ShutdownTimeout time.Duration
	// UnloadRetry is the interval at which unloads that had to be deferred,
	// for example because a chunk was still referenced, are retried.
	// Defaults to 1 second.
	UnloadRetry time.Duration
	// DiscardProto stops chunks that did not finish generation from being
	// written by Save and when the scheduler stops. They are regenerated the
	// next time they are needed. Unloaded chunks are always written.
	DiscardProto bool
	// Dispatch is the maximum number of tasks dispatched before the scheduler
	// checks for commands again. Defaults to 64.
	Dispatch int
}

func (conf Config) withDefaults() Config {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Workers.Log == nil {
		conf.Workers.Log = conf.Log
	}
	if conf.Listener == nil {
		conf.Listener = NopListener{}
	}
	if conf.HintBonus <= 0 {
		conf.HintBonus = 100
	}
	if conf.RetryBonus <= 0 {
		conf.RetryBonus = 200
	}
	if conf.ShutdownTimeout <= 0 {
		conf.ShutdownTimeout = 5 * time.Second
	}
	if conf.UnloadRetry <= 0 {
		conf.UnloadRetry = time.Second
	}
	if conf.Dispatch <= 0 {
		conf.Dispatch = 64
	}
	return conf
}
