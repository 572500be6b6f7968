package runtime

import (
	"golang.org/x/sys/unix"
)

// PageAllocator hands out page-aligned blocks for heap allocations above a
// threshold, backed directly by anonymous mmap pages instead of Go's heap,
// grounded on support/page_allocator.hpp's free-list-of-pages allocator.
// Go's GC already manages ordinary make([]byte, n) slices fine; this exists
// for the same reason the original bypasses malloc for page-sized
// requests: large, long-lived heap allocations a process frees explicitly
// are cheaper to hand back to the OS directly than to leave for a tracing
// collector to find.
type PageAllocator struct {
	pageSize int
	cache    [][]byte
}

// NewPageAllocator creates an allocator using pageBytes-sized pages,
// rounded up to the OS page size.
func NewPageAllocator(pageBytes int) *PageAllocator {
	sys := unix.Getpagesize()
	if pageBytes < sys {
		pageBytes = sys
	}
	pageCount := (pageBytes + sys - 1) / sys
	return &PageAllocator{pageSize: pageCount * sys}
}

// PageCountFor reports how many pages a request of size bytes needs.
func (a *PageAllocator) PageCountFor(size int) int {
	return (size + a.pageSize - 1) / a.pageSize
}

// Allocate returns pageCount pages of anonymous, zeroed memory, reusing a
// cached block from a prior Deallocate when one is large enough.
func (a *PageAllocator) Allocate(pageCount int) ([]byte, error) {
	want := pageCount * a.pageSize
	for i, cached := range a.cache {
		if len(cached) >= want {
			a.cache = append(a.cache[:i], a.cache[i+1:]...)
			return cached[:want], nil
		}
	}
	return unix.Mmap(-1, 0, want, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// Deallocate returns block to the allocator's free-list cache rather than
// unmapping it immediately, matching page_allocator::deallocate's
// cache-only contract; Release unmaps everything cached.
func (a *PageAllocator) Deallocate(block []byte) {
	a.cache = append(a.cache, block)
}

// Release unmaps every cached block, for VM shutdown.
func (a *PageAllocator) Release() error {
	for _, block := range a.cache {
		if err := unix.Munmap(block); err != nil {
			return err
		}
	}
	a.cache = nil
	return nil
}
