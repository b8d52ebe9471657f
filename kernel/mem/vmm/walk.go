package vmm

import (
	"domos/kernel/mem"
	"unsafe"
)

var (
	// ptePtrFn returns a pointer to the supplied entry address. It is
	// used by tests to redirect page table accesses to emulated physical
	// memory. When compiling the kernel this function will be automatically
	// inlined.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address using the
// recursive mapping of the active page directory. It calls the supplied walkFn
// with the page table entry that corresponds to each page table level. walk
// must only be used while paging is enabled.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
		ok                               bool
	)

	// tableAddr is initially set to the recursively mapped virtual address
	// of the page directory.
	for level, tableAddr = uint8(0), pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)

		entryAddr = tableAddr + (entryIndex << mem.EntryShift)

		if ok = walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))); !ok {
			return
		}

		// Shifting the entry address left by the number of bits for this
		// level removes one level of recursion and yields the virtual
		// address of the table pointed to by the entry.
		entryAddr = (entryAddr << pageLevelBits[level]) & virtAddrMask
	}
}
