package server

import "sync/atomic"

// bufferPool is a fixed set of request buffers claimed by CAS.
type bufferPool struct {
	bufs [][]byte
	used []atomic.Bool
}

func newBufferPool(count, size int) *bufferPool {
	p := &bufferPool{
		bufs: make([][]byte, count),
		used: make([]atomic.Bool, count),
	}
	for i := range p.bufs {
		p.bufs[i] = make([]byte, size)
	}
	return p
}

// acquire claims a free buffer. ok is false when all are in use.
func (p *bufferPool) acquire() (idx int, buf []byte, ok bool) {
	for i := range p.used {
		if p.used[i].CompareAndSwap(false, true) {
			return i, p.bufs[i], true
		}
	}
	return -1, nil, false
}

func (p *bufferPool) release(idx int) {
	if idx < 0 || idx >= len(p.used) {
		return
	}
	p.used[idx].Store(false)
}

// inUse counts claimed buffers.
func (p *bufferPool) inUse() int {
	n := 0
	for i := range p.used {
		if p.used[i].Load() {
			n++
		}
	}
	return n
}
