package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"gdbc/pkg/utils/logger"

	"go.uber.org/zap"
)

// Pool runs jobs on a fixed number of worker goroutines fed from one Queue.
// Submit waits while every worker already has a job, so at most Size jobs are
// queued or running at any time.
type Pool struct {
	queue *Queue
	size  int

	mu     sync.Mutex
	idle   *sync.Cond
	active int
	closed bool

	wg sync.WaitGroup
}

// New starts size workers.
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("workerpool: size must be positive, got %d", size)
	}
	p := &Pool{
		queue: NewQueue(),
		size:  size,
	}
	p.idle = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p, nil
}

// Submit enqueues job, blocking while all workers are busy.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	for p.active >= p.size && !p.closed {
		p.idle.Wait()
	}
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.active++
	p.mu.Unlock()

	if err := p.queue.Push(job); err != nil {
		p.done()
		return err
	}
	return nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Active returns the number of jobs queued or running.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close stops accepting jobs, lets workers finish what is queued and waits
// for them to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.idle.Broadcast()

	p.queue.Close()
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		job, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.run(id, job)
		p.done()
	}
}

func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "worker job panicked",
				zap.Int("worker", id),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	job()
}

func (p *Pool) done() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	p.idle.Signal()
}
