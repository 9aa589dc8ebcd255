package jxl

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Runner executes independent jobs of a single encode or decode call.
// Each call owns its Runner; nothing is shared between calls.
type Runner struct {
	workers int
}

// NewRunner returns a runner with the given worker count; workers <= 0
// uses GOMAXPROCS.
func NewRunner(workers int) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{workers: workers}
}

// Workers returns the worker limit
func (r *Runner) Workers() int {
	if r == nil {
		return 1
	}
	return r.workers
}

// Run calls fn for 0 <= i < n and returns the first error. Small job
// counts and single worker runners run inline.
func (r *Runner) Run(n int, fn func(i int) error) error {
	if n <= 2 || r.Workers() <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(min(r.workers, n))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}
