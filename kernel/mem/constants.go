package mem

const (
	// EntryShift is equal to log2 of the size of a single paging structure
	// entry. Directory and table entries are 32 bits wide.
	EntryShift = 2

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// MaxPhysAddr is the highest physical address reachable without PAE.
	MaxPhysAddr = uintptr(0xffffffff)
)
