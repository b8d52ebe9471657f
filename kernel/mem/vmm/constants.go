package vmm

const (
	// pageLevels indicates the number of page levels used by 32-bit x86
	// paging without PAE: a page directory and its page tables.
	pageLevels = 2

	// entriesPerTable is the number of entries in the page directory and
	// in each page table.
	entriesPerTable = 1 << 10

	// recursiveSlot is the page directory entry that points back to the
	// page directory itself.
	recursiveSlot = entriesPerTable - 1

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. Bits 12-31 contain the
	// physical memory address.
	ptePhysPageMask = uint32(0xfffff000)

	// pteAvailableMask covers bits 9-11 which the CPU ignores and software
	// may use.
	pteAvailableMask  = uint32(0x00000e00)
	pteAvailableShift = 9

	// virtAddrMask truncates recursive address calculations to 32 bits.
	virtAddrMask = uintptr(0xffffffff)

	// pdtVirtualAddr is a special virtual address that exploits the
	// recursive mapping in the last page directory entry to access the
	// page directory through the MMU. By setting all page level bits to 1
	// the MMU follows the last directory entry twice and lands on the
	// page directory.
	pdtVirtualAddr = uintptr(0xfffff000)

	// tablesVirtualAddr is the virtual address of the first page table
	// when accessed through the recursive mapping. Table i is located at
	// tablesVirtualAddr + i*4K.
	tablesVirtualAddr = uintptr(0xffc00000)
)

var (
	// pageLevelBits defines the number of virtual address bits that
	// correspond to each page level.
	pageLevelBits = [pageLevels]uint8{
		10,
		10,
	}

	// pageLevelShifts defines the shift required to access each page table
	// component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		22,
		12,
	}
)

const (
	// FlagPresent is set when the page is available in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified. It must be
	// zero for page directory entries.
	FlagDirty

	// FlagHugePage is set in a page directory entry that maps a 4M page
	// instead of pointing to a page table.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal
)
