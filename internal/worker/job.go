package worker

import (
	"context"
	"errors"
)

var (
	// ErrDispatcherBusy is returned when the pending queue is full.
	ErrDispatcherBusy = errors.New("worker: dispatcher queue full")
	// ErrDispatcherStopped is returned for jobs submitted to, or stranded in, a stopped dispatcher.
	ErrDispatcherStopped = errors.New("worker: dispatcher stopped")
)

// Job is one unit of work, queued fairly by Key (one queue per client).
type Job struct {
	Key string
	Ctx context.Context
	Run func(ctx context.Context)

	stop bool
	done chan error
}

// execute runs the job unless its context already ended while it was queued.
func (j Job) execute() {
	if err := j.Ctx.Err(); err != nil {
		j.finish(err)
		return
	}
	j.Run(j.Ctx)
	j.finish(nil)
}

func (j Job) finish(err error) {
	if j.done != nil {
		j.done <- err
	}
}
