// Package batch runs per-call tasks concurrently while keeping results
// in submission order. Work is partitioned into chunks that are drained
// sequentially; inside a chunk a bounded number of workers run at once.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// TaskFunc processes the item at index and reports its outcome.
type TaskFunc func(ctx context.Context, index int) error

// Config controls scheduling.
type Config struct {
	// Workers bounds concurrent tasks. Zero selects runtime.NumCPU.
	Workers int
	// ChunkSize partitions the input; chunks run one after another so
	// memory stays bounded on large batches. Zero means one chunk.
	ChunkSize int
	// Parallel false forces one worker regardless of Workers.
	Parallel bool
}

// Scheduler executes batches with bounded concurrency.
type Scheduler struct {
	workers   int
	chunkSize int
}

// New builds a scheduler from cfg, resolving the auto worker count.
func New(cfg Config) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if !cfg.Parallel {
		workers = 1
	}
	return &Scheduler{workers: workers, chunkSize: cfg.ChunkSize}
}

// Workers reports the resolved concurrency bound.
func (s *Scheduler) Workers() int { return s.workers }

// Run executes fn for indices [0, n) and returns one error slot per
// index, in index order. A nil slot is a success. Tasks that panic fail
// their own slot only. After cancellation the remaining slots are
// marked cancelled without running.
func (s *Scheduler) Run(ctx context.Context, n int, fn TaskFunc) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	chunk := s.chunkSize
	if chunk <= 0 || chunk > n {
		chunk = n
	}

	sem := make(chan struct{}, s.workers)

	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}

		logrus.WithFields(logrus.Fields{
			"from":    start,
			"to":      end - 1,
			"workers": s.workers,
		}).Debug("Draining batch chunk")

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("cancelled: %w", err)
				continue
			}

			sem <- struct{}{}
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				defer func() { <-sem }()
				defer func() {
					if r := recover(); r != nil {
						errs[idx] = fmt.Errorf("task %d panicked: %v", idx, r)
						logrus.WithField("index", idx).Errorf("Recovered task panic: %v", r)
					}
				}()
				errs[idx] = fn(ctx, idx)
			}(i)
		}
		wg.Wait()
	}

	return errs
}
