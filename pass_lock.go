package stand

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// passLock serialises notification passes. The goroutine that holds it may
// acquire it again, which is how a listener's nested SetState runs inline
// while other goroutines wait for the whole outer pass to finish.
//
// A listener must not block on a SetState issued from another goroutine:
// that call waits for the listener's own pass.
type passLock struct {
	mu    sync.Mutex
	free  *sync.Cond
	owner uint64
	depth int
}

func newPassLock() *passLock {
	l := &passLock{}
	l.free = sync.NewCond(&l.mu)
	return l
}

// acquire blocks until the calling goroutine owns the lock and returns the
// nesting depth of this acquisition, starting at 1.
func (l *passLock) acquire() int {
	id := goroutineID()
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.depth > 0 && l.owner != id {
		l.free.Wait()
	}
	l.owner = id
	l.depth++
	return l.depth
}

func (l *passLock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.depth--
	if l.depth == 0 {
		l.owner = 0
		l.free.Signal()
	}
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID reads the current goroutine's id from its stack header,
// "goroutine 42 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	header := bytes.TrimPrefix(buf[:runtime.Stack(buf[:], false)], goroutinePrefix)
	if i := bytes.IndexByte(header, ' '); i > 0 {
		header = header[:i]
	}
	id, err := strconv.ParseUint(string(header), 10, 64)
	if err != nil {
		panic("stand: cannot parse goroutine id: " + err.Error())
	}
	return id
}
