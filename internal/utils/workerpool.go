// Package utils holds small pieces of infrastructure shared by the wire
// protocol layer that aren't part of the matching core itself.
package utils

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// WorkerFunction processes one task pulled off a WorkerPool's queue.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool is a bounded pool of goroutines draining a shared task queue,
// supervised by a tomb.Tomb so the whole pool can be torn down alongside
// the rest of a server's goroutines.
type WorkerPool struct {
	n     int      // number of workers
	tasks chan any // task queue
}

// NewWorkerPool constructs a pool sized to run up to size workers
// concurrently.
func NewWorkerPool(size uint) WorkerPool {
	return WorkerPool{
		n:     int(size),
		tasks: make(chan any, taskChanSize),
	}
}

// AddTask enqueues a unit of work for the pool to pick up.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup maintains a full pool of workers running work against the task
// queue until the tomb starts dying.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	activeWorkers := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if activeWorkers < pool.n {
				t.Go(func() error {
					err := pool.worker(t, activeWorkers, work)
					activeWorkers--
					return err
				})
				activeWorkers++
			}
		}
	}
}

// worker waits on tasks in the pool and actions them until the queue closes
// or work itself fails.
func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunction) error {
	for task := range pool.tasks {
		if err := work(t, task); err != nil {
			log.Error().Err(err).Int("id", id).Msg("worker exiting")
			return err
		}
	}
	return nil
}
