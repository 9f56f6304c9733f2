package generator

import (
	"errors"
	"sync"

	"github.com/df-mc/chunkgen/server/world/chunk"
	"github.com/df-mc/chunkgen/server/world/stage"
	"github.com/df-mc/chunkgen/server/world/worker"
)

// ErrInjected is returned by Failing for every failure it injects.
var ErrInjected = errors.New("generator: injected failure")

// Failing wraps a generator and fails the stages chosen by FailOn. It is used
// to exercise the retry path of the scheduler.
type Failing struct {
	worker.Generator

	mu    sync.Mutex
	rules map[chunk.Pos]map[stage.Stage]int
	fails int
}

// NewFailing wraps the generator passed.
func NewFailing(g worker.Generator) *Failing {
	return &Failing{Generator: g, rules: make(map[chunk.Pos]map[stage.Stage]int)}
}

// FailOn makes the next n runs of stage s at pos fail.
func (f *Failing) FailOn(pos chunk.Pos, s stage.Stage, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rules[pos] == nil {
		f.rules[pos] = make(map[stage.Stage]int)
	}
	f.rules[pos][s] += n
}

// Failures returns the number of failures injected so far.
func (f *Failing) Failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fails
}

// Generate fails if a rule matches and runs the wrapped generator otherwise.
func (f *Failing) Generate(s stage.Stage, c *chunk.Cache) error {
	f.mu.Lock()
	if n := f.rules[c.Center()][s]; n > 0 {
		f.rules[c.Center()][s] = n - 1
		f.fails++
		f.mu.Unlock()
		return ErrInjected
	}
	f.mu.Unlock()
	return f.Generator.Generate(s, c)
}
