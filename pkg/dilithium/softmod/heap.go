package softmod

import (
	"errors"
	"fmt"
	"sort"
)

const (
	heapBase  = 8
	heapAlign = 8
)

// ErrInvalidFree is returned by Free for an address that is not the start of
// a live allocation.
var ErrInvalidFree = errors.New("softmod: free of unallocated address")

type span struct {
	addr uint32
	size uint32
}

func (s span) end() uint64 { return uint64(s.addr) + uint64(s.size) }

// heap is a first-fit allocator over [heapBase, limit). Address 0 is never
// handed out, so it can signal allocation failure.
type heap struct {
	free []span // sorted by addr, never adjacent
	used map[uint32]span
}

func newHeap(limit uint32) *heap {
	h := &heap{used: make(map[uint32]span)}
	if limit > heapBase {
		h.free = []span{{addr: heapBase, size: alignDown(limit - heapBase)}}
	}
	return h
}

func alignUp(n uint32) (uint32, bool) {
	if n == 0 {
		n = 1
	}
	r := (uint64(n) + heapAlign - 1) &^ (heapAlign - 1)
	if r > uint64(^uint32(0)) {
		return 0, false
	}
	return uint32(r), true
}

func alignDown(n uint32) uint32 {
	return n &^ (heapAlign - 1)
}

// alloc reserves size bytes (at least one) and returns the address, or 0 when
// no free span is large enough.
func (h *heap) alloc(size uint32) uint32 {
	want, ok := alignUp(size)
	if !ok {
		return 0
	}
	for i, s := range h.free {
		if s.size < want {
			continue
		}
		if s.size == want {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i] = span{addr: s.addr + want, size: s.size - want}
		}
		h.used[s.addr] = span{addr: s.addr, size: want}
		return s.addr
	}
	return 0
}

func (h *heap) release(addr uint32) error {
	s, ok := h.used[addr]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidFree, addr)
	}
	delete(h.used, addr)

	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].addr > addr })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = s

	if i+1 < len(h.free) && h.free[i].end() == uint64(h.free[i+1].addr) {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].end() == uint64(h.free[i].addr) {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
	return nil
}

// contains reports whether [addr, addr+n) lies inside one live allocation.
func (h *heap) contains(addr, n uint32) bool {
	end := uint64(addr) + uint64(n)
	for _, s := range h.used {
		if addr >= s.addr && end <= s.end() {
			return true
		}
	}
	return false
}

func (h *heap) outstanding() int {
	return len(h.used)
}
