package workerpool

import (
	"errors"
	"sync"
)

// ErrClosed is returned when submitting to a closed queue or pool.
var ErrClosed = errors.New("workerpool: closed")

// Job is one unit of work.
type Job func()

type node struct {
	job  Job
	next *node
}

// Queue is an unbounded FIFO of jobs. Pop blocks until a job is available or
// the queue is closed and drained.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	head   *node
	tail   *node
	size   int
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends job to the tail.
func (q *Queue) Push(job Job) error {
	if job == nil {
		return errors.New("workerpool: nil job")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	n := &node{job: job}
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.size++
	q.cond.Signal()
	return nil
}

// Pop removes the head job, waiting while the queue is empty. The second
// result is false once the queue is closed and no jobs remain.
func (q *Queue) Pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head == nil && !q.closed {
		q.cond.Wait()
	}
	if q.head == nil {
		return nil, false
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	n.next = nil
	return n.job, true
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close stops accepting jobs and wakes every waiting Pop. Queued jobs are
// still handed out.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
