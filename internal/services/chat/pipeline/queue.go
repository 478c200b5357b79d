package pipeline

import (
	"context"
	"errors"
	"sync"
)

var (
	errQueueFull   = errors.New("turn queue is full")
	errQueueClosed = errors.New("turn queue is closed")
)

// turn is one unit of work for a session: a user message or a greeting.
type turn struct {
	sessionID string
	text      string
	greeting  bool
}

// turnQueue runs turns one at a time per session and sessions in parallel.
// A session's worker exits as soon as its queue is empty.
type turnQueue struct {
	size       int
	workerFunc func(t *turn)

	mu     sync.Mutex
	queues map[string]chan *turn
	closed bool
	wg     sync.WaitGroup
}

// newTurnQueue creates a queue holding up to size waiting turns per session.
func newTurnQueue(size int, workerFunc func(t *turn)) *turnQueue {
	return &turnQueue{
		size:       size,
		workerFunc: workerFunc,
		queues:     make(map[string]chan *turn),
	}
}

// Enqueue adds a turn without blocking.
func (q *turnQueue) Enqueue(t *turn) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errQueueClosed
	}

	jobs, ok := q.queues[t.sessionID]
	if !ok {
		jobs = make(chan *turn, q.size)
		q.queues[t.sessionID] = jobs
		q.wg.Add(1)
		go q.worker(t.sessionID, jobs)
	}

	select {
	case jobs <- t:
		return nil
	default:
		return errQueueFull
	}
}

func (q *turnQueue) worker(sessionID string, jobs chan *turn) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		select {
		case t := <-jobs:
			q.mu.Unlock()
			q.workerFunc(t)
		default:
			delete(q.queues, sessionID)
			q.mu.Unlock()
			return
		}
	}
}

// Pending returns the number of sessions with a running worker.
func (q *turnQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}

// Stop refuses new turns and waits for queued ones to finish or ctx to end.
func (q *turnQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
