// Package vmm builds, activates and inspects the 32-bit x86 paging
// structures.
package vmm

import (
	"domos/kernel"
	"domos/kernel/cpu"
	"domos/kernel/kfmt"
	"domos/kernel/mem"
	"domos/kernel/mem/pmm"
)

var (
	// enablePagingFn is used by tests to override calls to
	// cpu.EnablePaging which will cause a fault if called in user-mode.
	enablePagingFn = cpu.EnablePaging

	// pagingEnabledFn and activePDTFn read back the CPU paging state. They
	// are mocked by tests.
	pagingEnabledFn = cpu.PagingEnabled
	activePDTFn     = cpu.ActivePDT

	errRecursiveSlotMapping = &kernel.Error{Module: "vmm", Message: "virtual address overlaps the recursively mapped page directory"}
	errMappingConflict      = &kernel.Error{Module: "vmm", Message: "page is already mapped to a different frame"}
	errMapAfterActivation   = &kernel.Error{Module: "vmm", Message: "page directory can not be modified through physical addresses once paging is enabled"}
	errRegionOutOfRange     = &kernel.Error{Module: "vmm", Message: "region extends past the 32-bit address space"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// PageDirectoryTable describes the page directory and the page tables it
// references. The structures are built through their physical addresses
// while paging is still disabled and are only reached through the recursive
// mapping once Activate has been called.
type PageDirectoryTable struct {
	pdtFrame pmm.Frame
	active   bool
}

// Init sets up a page directory at the supplied physical frame. Init clears
// the frame contents and points the last directory entry back to the
// directory itself so that the directory and its tables remain reachable once
// paging is enabled.
func (pdt *PageDirectoryTable) Init(pdtFrame pmm.Frame) {
	pdt.pdtFrame = pdtFrame
	pdt.active = false

	clearTable(pdtFrame)

	lastPdtEntry := physEntry(pdtFrame, recursiveSlot)
	lastPdtEntry.SetFlags(FlagPresent | FlagRW)
	lastPdtEntry.SetFrame(pdtFrame)
}

// Frame returns the physical frame that holds the page directory.
func (pdt *PageDirectoryTable) Frame() pmm.Frame {
	return pdt.pdtFrame
}

// Map establishes a mapping between a virtual page and a physical memory
// frame. If the page table covering the page does not exist yet, Map uses
// allocFn to reserve a frame for it and clears its contents.
//
// Map refuses to overwrite a present entry that points to a different frame
// and to map pages that overlap the recursive mapping.
func (pdt *PageDirectoryTable) Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	if pdt.active {
		return errMapAfterActivation
	}

	virtAddr := page.Address()
	dirIndex := pdtIndex(virtAddr)
	if dirIndex == recursiveSlot {
		return errRecursiveSlotMapping
	}

	pde := physEntry(pdt.pdtFrame, dirIndex)
	if pde.HasFlags(FlagPresent | FlagHugePage) {
		return errNoHugePageSupport
	}

	// Next table does not yet exist; we need to allocate a physical
	// frame for it and clear its contents.
	if !pde.HasFlags(FlagPresent) {
		tableFrame, err := allocFn()
		if err != nil {
			return err
		}

		clearTable(tableFrame)

		*pde = 0
		pde.SetFrame(tableFrame)
		pde.SetFlags(FlagPresent | FlagRW)
	}

	pte := physEntry(pde.Frame(), ptIndex(virtAddr))
	if pte.HasFlags(FlagPresent) && pte.Frame() != frame {
		return errMappingConflict
	}

	*pte = 0
	pte.SetFrame(frame)
	pte.SetFlags(flags)
	return nil
}

// IdentityMapRegion maps every page that overlaps the physical memory region
// [start, start+size) to the virtual page with the same address.
func (pdt *PageDirectoryTable) IdentityMapRegion(start uintptr, size mem.Size, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	if size == 0 {
		return nil
	}

	lastAddr := uint64(start) + uint64(size) - 1
	if lastAddr > uint64(mem.MaxPhysAddr) {
		return errRegionOutOfRange
	}

	lastPage := PageFromAddress(uintptr(lastAddr))
	for page := PageFromAddress(start); page <= lastPage; page++ {
		if err := pdt.Map(page, pmm.Frame(page), flags, allocFn); err != nil {
			return err
		}
	}

	return nil
}

// Activate loads the page directory into the CPU and enables paging. Paging
// can not be disabled once enabled and the directory can no longer be
// modified through Map.
func (pdt *PageDirectoryTable) Activate() {
	enablePagingFn(pdt.pdtFrame.Address())
	pdt.active = true

	kfmt.Successf("[vmm] paging enabled; page directory at 0x%x\n", pdt.pdtFrame.Address())
}

// physEntry returns a pointer to the entry at index of the table stored in
// frame. It must only be used while paging is disabled.
func physEntry(frame pmm.Frame, index uintptr) *pageTableEntry {
	return (*pageTableEntry)(ptePtrFn(frame.Address() + (index << mem.EntryShift)))
}

// clearTable zeroes all entries of the table stored in frame.
func clearTable(frame pmm.Frame) {
	for index := uintptr(0); index < entriesPerTable; index++ {
		*physEntry(frame, index) = 0
	}
}
