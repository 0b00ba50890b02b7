//go:build linux

package procmgr

import (
	"errors"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// pipeEnd owns one pipe descriptor. Close is idempotent.
type pipeEnd struct {
	fd     int
	closed atomic.Bool
}

// newPipe creates a close-on-exec pipe.
func newPipe() (*pipeEnd, *pipeEnd, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, err
	}
	return &pipeEnd{fd: p[0]}, &pipeEnd{fd: p[1]}, nil
}

func (p *pipeEnd) Close() error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(p.fd)
}

// file hands the descriptor over to an *os.File; the pipeEnd no longer owns it.
func (p *pipeEnd) file(name string) *os.File {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return os.NewFile(uintptr(p.fd), name)
}

// read performs one read, retrying on EINTR.
func (p *pipeEnd) read(buf []byte) (int, error) {
	for {
		n, err := unix.Read(p.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// writeAll writes every byte of data, retrying on EINTR and short writes.
func (p *pipeEnd) writeAll(data []byte) (int, error) {
	written := 0
	for written < len(data) {
		n, err := unix.Write(p.fd, data[written:])
		if n > 0 {
			written += n
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return written, err
		}
	}
	return written, nil
}

// pipeSet holds both pipes of one spawn until they are handed to the slot.
type pipeSet struct {
	stdinR, stdinW *pipeEnd
	outR, outW     *pipeEnd
}

func newPipeSet() (*pipeSet, error) {
	ps := &pipeSet{}
	var err error
	if ps.stdinR, ps.stdinW, err = newPipe(); err != nil {
		return nil, err
	}
	if ps.outR, ps.outW, err = newPipe(); err != nil {
		ps.Close()
		return nil, err
	}
	if err = unix.SetNonblock(ps.outR.fd, true); err != nil {
		ps.Close()
		return nil, err
	}
	return ps, nil
}

// Close closes every end still owned by the set.
func (ps *pipeSet) Close() {
	_ = ps.stdinR.Close()
	_ = ps.stdinW.Close()
	_ = ps.outR.Close()
	_ = ps.outW.Close()
}
