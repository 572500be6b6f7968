package asm

// arena is a bump allocator backing a single module's long-lived global
// initial data. It never frees individual
// objects; the whole arena is released at once when its owner is destroyed
// (support/arena.hpp's block-list allocator in the original).
//
// Unlike the original's raw byte-pointer bump allocator, this Go arena
// hands out sub-slices of Go-allocated byte blocks and keeps them alive by
// holding each block's slice; there is no unsafe pointer arithmetic. What survives
// from the original is the shape: fixed-size blocks linked in a list, a
// bump cursor into the current block, and a fallback to a fresh block when
// the current one doesn't have room.
const arenaBlockSize = 16*1024 - 8

type arenaBlock struct {
	data []byte
	used int
}

// Arena is a region allocator for byte buffers, used by Module to back its
// globals' initial data so a single destroy_module can release everything
// at once.
type Arena struct {
	blocks []*arenaBlock
}

// NewArena creates an empty arena with no blocks allocated yet.
func NewArena() *Arena {
	return &Arena{}
}

// Alloc reserves size bytes, returning a slice into arena-owned memory.
// Requests larger than a single block bypass the block list and get a
// dedicated allocation, mirroring the original's "size > block_size returns
// nullptr" boundary except Go can simply grow past it safely.
func (a *Arena) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	if size > arenaBlockSize {
		return make([]byte, size)
	}

	if len(a.blocks) > 0 {
		cur := a.blocks[len(a.blocks)-1]
		if cur.used+size <= len(cur.data) {
			buf := cur.data[cur.used : cur.used+size]
			cur.used += size
			return buf
		}
	}

	b := &arenaBlock{data: make([]byte, arenaBlockSize)}
	a.blocks = append(a.blocks, b)
	buf := b.data[:size]
	b.used = size
	return buf
}

// Reset drops every block, making the arena's memory eligible for
// collection. Used by Module.Destroy.
func (a *Arena) Reset() {
	a.blocks = nil
}

// Bytes reports the number of bytes committed across all blocks.
func (a *Arena) Bytes() int {
	n := 0
	for _, b := range a.blocks {
		n += b.used
	}
	return n
}
