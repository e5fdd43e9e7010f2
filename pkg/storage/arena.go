package storage

import (
	"fmt"
	"sync"
)

// Arena is a bump-pointer allocator over one preallocated byte slice,
// implementing storage.Allocator: compiling a network allocates one
// weight/activation tensor after another, and an arena avoids a
// separate make([]byte, n) per tensor.
type Arena struct {
	mu     sync.Mutex
	data   []byte
	offset int
}

// NewArena preallocates an arena of the given size in bytes.
func NewArena(size int) *Arena {
	return &Arena{data: make([]byte, size)}
}

// Alloc implements storage.Allocator. It panics-free fails over to a
// fresh heap allocation once the arena is exhausted, so callers never
// have to special-case an out-of-arena-space error path; this mirrors
// allocFromArena's grow-on-demand behavior without the multi-arena
// bookkeeping, which this engine doesn't need since Storage buffers
// are never individually freed back to the arena (they are released
// only when their refcount drops to zero and the GC reclaims them).
func (a *Arena) Alloc(n int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offset+n > len(a.data) {
		return make([]byte, n)
	}
	buf := a.data[a.offset : a.offset+n : a.offset+n]
	a.offset += n
	return buf
}

// Reset rewinds the arena for reuse. Any Storage still backed by
// previously-handed-out slices remains valid (Go slices keep their own
// backing array alive independent of the Arena's bookkeeping); Reset
// only affects future Alloc calls.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.offset = 0
}

// Available reports the number of unallocated bytes remaining.
func (a *Arena) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.data) - a.offset
}

func (a *Arena) String() string {
	return fmt.Sprintf("Arena(size=%d, used=%d)", len(a.data), a.offset)
}
