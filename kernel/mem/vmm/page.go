package vmm

import "domos/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << mem.PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. Addresses that are not page-aligned are rounded down to the page
// that contains them.
func PageFromAddress(virtAddr uintptr) Page {
	return Page(mem.AlignDown(virtAddr, mem.PageSize) >> mem.PageShift)
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & uintptr(mem.PageSize-1)
}

// pdtIndex returns the page directory entry index for virtAddr.
func pdtIndex(virtAddr uintptr) uintptr {
	return (virtAddr >> pageLevelShifts[0]) & (entriesPerTable - 1)
}

// ptIndex returns the page table entry index for virtAddr.
func ptIndex(virtAddr uintptr) uintptr {
	return (virtAddr >> pageLevelShifts[1]) & (entriesPerTable - 1)
}
