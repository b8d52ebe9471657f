// Package mem contains memory size and alignment primitives shared by the
// physical and virtual memory managers.
package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// AlignUp rounds addr up to the next multiple of align which must be a power
// of 2. The second return value is false if rounding overflows the 32-bit
// physical address space.
func AlignUp(addr uintptr, align Size) (uintptr, bool) {
	if align <= 1 {
		return addr, addr <= MaxPhysAddr
	}

	mask := uint64(align - 1)
	aligned := (uint64(addr) + mask) &^ mask
	if aligned > uint64(MaxPhysAddr) {
		return 0, false
	}

	return uintptr(aligned), true
}

// AlignDown rounds addr down to the previous multiple of align which must be
// a power of 2.
func AlignDown(addr uintptr, align Size) uintptr {
	if align <= 1 {
		return addr
	}
	return addr &^ uintptr(align-1)
}
