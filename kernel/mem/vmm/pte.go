package vmm

import (
	"domos/kernel"
	"domos/kernel/mem"
	"domos/kernel/mem/pmm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint32

// pageTableEntry describes a 32-bit page directory or page table entry. These
// entries encode a physical frame address and a set of flags. Directory and
// table entries share the same layout.
type pageTableEntry uint32

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint32(*pte) | uint32(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uint32(pte) & ptePhysPageMask) >> mem.PageShift)
}

// SetFrame updates the page table entry to point the the given physical frame.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (pageTableEntry)((uint32(*pte) &^ ptePhysPageMask) | (uint32(frame.Address()) & ptePhysPageMask))
}

// EntryFields is the decoded form of a page directory or page table entry.
//
// Bit layout:
//
//	0      present
//	1      writable
//	2      user
//	3      write-through
//	4      cache disabled
//	5      accessed
//	6      dirty (must be zero in directory entries)
//	7      page size
//	8      global
//	9-11   available for software use
//	12-31  bits 31:12 of the frame physical address
type EntryFields struct {
	Present       bool
	Writable      bool
	User          bool
	WriteThrough  bool
	CacheDisabled bool
	Accessed      bool
	Dirty         bool
	PageSize      bool
	Global        bool

	// Available holds the 3 software-defined bits.
	Available uint8

	// FrameAddr is the 4K-aligned physical address of the frame.
	FrameAddr uint32
}

// EncodeEntry packs fields into the 32-bit hardware representation. Bits of
// Available and FrameAddr that do not fit their field are discarded.
func EncodeEntry(fields EntryFields) uint32 {
	var pte pageTableEntry

	for _, f := range []struct {
		set  bool
		flag PageTableEntryFlag
	}{
		{fields.Present, FlagPresent},
		{fields.Writable, FlagRW},
		{fields.User, FlagUserAccessible},
		{fields.WriteThrough, FlagWriteThroughCaching},
		{fields.CacheDisabled, FlagDoNotCache},
		{fields.Accessed, FlagAccessed},
		{fields.Dirty, FlagDirty},
		{fields.PageSize, FlagHugePage},
		{fields.Global, FlagGlobal},
	} {
		if f.set {
			pte.SetFlags(f.flag)
		}
	}

	pte = pageTableEntry(uint32(pte) | (uint32(fields.Available)<<pteAvailableShift)&pteAvailableMask)
	pte.SetFrame(pmm.Frame(fields.FrameAddr >> mem.PageShift))

	return uint32(pte)
}

// DecodeEntry unpacks a 32-bit page directory or page table entry.
// EncodeEntry(DecodeEntry(raw)) == raw holds for every raw value.
func DecodeEntry(raw uint32) EntryFields {
	pte := pageTableEntry(raw)

	return EntryFields{
		Present:       pte.HasFlags(FlagPresent),
		Writable:      pte.HasFlags(FlagRW),
		User:          pte.HasFlags(FlagUserAccessible),
		WriteThrough:  pte.HasFlags(FlagWriteThroughCaching),
		CacheDisabled: pte.HasFlags(FlagDoNotCache),
		Accessed:      pte.HasFlags(FlagAccessed),
		Dirty:         pte.HasFlags(FlagDirty),
		PageSize:      pte.HasFlags(FlagHugePage),
		Global:        pte.HasFlags(FlagGlobal),
		Available:     uint8((raw & pteAvailableMask) >> pteAvailableShift),
		FrameAddr:     raw & ptePhysPageMask,
	}
}

// pteForAddress returns the final page table entry that correspond to a
// particular virtual address. The function performs a page table walk through
// the recursive mapping of the active page directory and returns
// ErrInvalidMapping if the page is not present.
func pteForAddress(virtAddr uintptr) (*pageTableEntry, *kernel.Error) {
	var (
		err   *kernel.Error
		entry *pageTableEntry
	)

	walk(virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			entry = nil
			err = ErrInvalidMapping
			return false
		}

		if pteLevel == 0 && pte.HasFlags(FlagHugePage) {
			entry = nil
			err = errNoHugePageSupport
			return false
		}

		entry = pte
		return true
	})

	return entry, err
}
