// Package runtime implements lauf's executing side: the allocation table,
// process state, dispatch loop, panic propagation, and the conservative
// garbage collector that walk the vstack and cstack a Process owns while a
// Function's code runs (spec.md §4.3, §4.4).
package runtime

import "github.com/lauf-vm/lauf/internal/asm"

// Source tags where an allocation's bytes physically live (spec.md §3's
// "Memory address" discussion of static vs. local storage), grounded on
// the original's lauf::allocation_source.
type Source uint8

const (
	SourceStaticConst Source = iota
	SourceStaticMut
	SourceLocal
	SourceHeap
)

func (s Source) IsConst() bool { return s == SourceStaticConst }

// Status distinguishes a live allocation from a freed slot kept only so
// its index isn't reused before the generation bumps (lauf::allocation_status).
type Status uint8

const (
	StatusAllocated Status = iota
	StatusFreed
)

// Allocation is one entry of a process's allocation table: a byte slice
// plus the bookkeeping needed to validate an Addr against it (spec.md
// §4.4's generational validity checks).
type Allocation struct {
	Data       []byte
	Source     Source
	Status     Status
	Generation uint8

	// Root is true for allocations a host declared reachable regardless of
	// whether any live value still points at them (declare_reachable);
	// Weak is true for ones explicitly excluded from GC tracing
	// (declare_weak). Both default false.
	Root bool
	Weak bool
}

// AllocationTable is the append-mostly array of a process's allocations,
// indexed by Addr.Allocation() (lauf_runtime_process.allocations).
type AllocationTable struct {
	entries    []Allocation
	generation uint8
}

// NewAllocationTable creates an empty table.
func NewAllocationTable() *AllocationTable {
	return &AllocationTable{}
}

// Add appends a new allocation and returns an address to its start with
// offset 0, tagging it with the table's current generation.
func (t *AllocationTable) Add(data []byte, source Source) asm.Addr {
	idx := uint32(len(t.entries))
	t.entries = append(t.entries, Allocation{Data: data, Source: source, Generation: t.generation})
	return asm.PackAddr(idx, t.generation&0b11, 0)
}

// Get returns the allocation at index, or nil if out of range.
func (t *AllocationTable) Get(index uint32) *Allocation {
	if int(index) >= len(t.entries) {
		return nil
	}
	return &t.entries[index]
}

// Free marks the allocation at index as freed. It does not remove the
// slot; TrimFreed does that, matching the original's lazy-removal
// try_free_allocations which only pops trailing freed entries.
func (t *AllocationTable) Free(index uint32) {
	if a := t.Get(index); a != nil {
		a.Status = StatusFreed
	}
}

// TrimFreed pops every freed allocation off the back of the table and
// bumps the generation once if anything was removed, so a stale Addr
// referencing a reused index is caught by its now-mismatched generation
// (lauf_runtime_process::try_free_allocations).
func (t *AllocationTable) TrimFreed() {
	n := len(t.entries)
	for n > 0 && t.entries[n-1].Status == StatusFreed {
		n--
	}
	if n == len(t.entries) {
		return
	}
	t.entries = t.entries[:n]
	t.generation++
}

// Len returns the number of allocation slots, including freed ones not yet
// trimmed.
func (t *AllocationTable) Len() int { return len(t.entries) }

// Generation returns the table's current generation counter, stamped onto
// every allocation created from here on.
func (t *AllocationTable) Generation() uint8 { return t.generation }

// CheckedOffset validates addr against the table and, if valid, returns the
// byte slice of length size starting at addr's offset (spec.md §4.4's
// generation-checked memory access, grounded on lauf::checked_offset).
// It returns nil if the allocation is unknown, freed, generation-mismatched,
// out of bounds, or misaligned.
func (t *AllocationTable) CheckedOffset(addr asm.Addr, size int, alignLog2 uint8) []byte {
	if addr.IsNull() {
		return nil
	}
	a := t.Get(addr.Allocation())
	if a == nil || a.Status != StatusAllocated || a.Generation&0b11 != addr.Generation() {
		return nil
	}
	off := addr.Offset()
	if uint64(off)+uint64(size) > uint64(len(a.Data)) {
		return nil
	}
	if alignLog2 > 0 {
		align := uint64(1) << alignLog2
		if (uint64(off))%align != 0 {
			return nil
		}
	}
	return a.Data[off : off+uint32(size)]
}
