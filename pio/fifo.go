package pio

import "sync"

// FIFODepth is the number of words each state machine FIFO can hold.
const FIFODepth = 4

// A FIFO is one of the word queues between a state machine and the system.
// The system side may be accessed from any goroutine.
type FIFO struct {
	mu       sync.Mutex
	capacity int
	words    []uint32

	onPush []func(level int)
	onPop  []func(level int)
}

// NewFIFO creates an empty FIFO that holds up to capacity words.
func NewFIFO(capacity int) *FIFO {
	return &FIFO{capacity: capacity}
}

// OnPush registers a callback that runs after every successful push with the
// new level.
func (f *FIFO) OnPush(fn func(level int)) {
	f.onPush = append(f.onPush, fn)
}

// OnPop registers a callback that runs after every successful pop with the
// new level.
func (f *FIFO) OnPop(fn func(level int)) {
	f.onPop = append(f.onPop, fn)
}

// Push appends a word. It returns false, leaving the FIFO unchanged, if the
// FIFO is full.
func (f *FIFO) Push(w uint32) bool {
	f.mu.Lock()
	if len(f.words) >= f.capacity {
		f.mu.Unlock()
		return false
	}

	f.words = append(f.words, w)
	level := len(f.words)
	f.mu.Unlock()

	for _, fn := range f.onPush {
		fn(level)
	}

	return true
}

// Pop removes the oldest word. The second return value is false if the FIFO
// is empty.
func (f *FIFO) Pop() (uint32, bool) {
	f.mu.Lock()
	if len(f.words) == 0 {
		f.mu.Unlock()
		return 0, false
	}

	w := f.words[0]
	f.words = f.words[1:]
	level := len(f.words)
	f.mu.Unlock()

	for _, fn := range f.onPop {
		fn(level)
	}

	return w, true
}

// Level returns the number of words in the FIFO.
func (f *FIFO) Level() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.words)
}

// Capacity returns the maximum number of words the FIFO holds.
func (f *FIFO) Capacity() int {
	return f.capacity
}

// IsFull tells if a push would fail.
func (f *FIFO) IsFull() bool {
	return f.Level() >= f.capacity
}

// Clear drops every word without notifying anyone.
func (f *FIFO) Clear() {
	f.mu.Lock()
	f.words = nil
	f.mu.Unlock()
}
