// Package allocator contains the physical memory allocators used while the
// kernel bootstraps itself.
package allocator

import (
	"domos/kernel"
	"domos/kernel/hal/multiboot"
	"domos/kernel/kfmt"
	"domos/kernel/mem"
	"unsafe"
)

var (
	// ErrNoUsableMemory is returned when the boot loader memory map does
	// not contain any available region the allocator can address.
	ErrNoUsableMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "memory map does not contain any usable region"}
)

// RegionVisitFn iterates the memory map entries reported by the boot loader.
// multiboot.VisitMemRegions satisfies this type.
type RegionVisitFn func(multiboot.MemRegionVisitor)

// Region describes the available memory region that the boot allocator hands
// out frames from.
type Region struct {
	// The physical start address of the region.
	Base uintptr

	// The low 32 bits of the region length.
	Length mem.Size

	// The address following the last region byte. End saturates at
	// mem.MaxPhysAddr when Base+Length does not fit in 32 bits.
	End uintptr

	// The high 32 bits of the reported region length. Memory past the
	// 32-bit boundary is acknowledged but never handed out.
	LengthHigh uint32
}

// Above4G returns true if the boot loader reported a region length that does
// not fit in 32 bits.
func (r Region) Above4G() bool {
	return r.LengthHigh != 0
}

// Contains returns true if [start, end) lies inside the region.
func (r Region) Contains(start, end uintptr) bool {
	return start <= end && start >= r.Base && end <= r.End
}

func newRegion(entry *multiboot.MemoryMapEntry) Region {
	region := Region{
		Base:       uintptr(entry.BaseLow),
		Length:     mem.Size(entry.LengthLow),
		LengthHigh: entry.LengthHigh,
	}

	end := uint64(entry.BaseLow) + uint64(entry.LengthLow)
	if end > uint64(mem.MaxPhysAddr) {
		end = uint64(mem.MaxPhysAddr)
	}
	region.End = uintptr(end)

	return region
}

// usable returns true if entry describes available memory that a 32-bit
// allocator can address. Entries with unknown type codes or a zero length
// are skipped.
func usable(entry *multiboot.MemoryMapEntry) bool {
	return entry.Type == multiboot.MemAvailable && entry.LengthLow != 0 && entry.BaseHigh == 0
}

// lengthBelow4GEmpty returns true if entry describes available memory whose
// length is a nonzero multiple of 4G. Selection only looks at the low 32 bits
// of the length so such entries are skipped.
func lengthBelow4GEmpty(entry *multiboot.MemoryMapEntry) bool {
	return entry.Type == multiboot.MemAvailable && entry.BaseHigh == 0 && entry.LengthLow == 0 && entry.LengthHigh != 0
}

// SelectRegion performs a single pass over the memory map and returns the
// available region with the largest length. When more than one region shares
// the largest length, the first one reported by the boot loader is selected.
// SelectRegion returns ErrNoUsableMemory if the map contains no usable
// entries.
func SelectRegion(visitFn RegionVisitFn) (Region, *kernel.Error) {
	var (
		selected Region
		found    bool
	)

	var visitor = func(entry *multiboot.MemoryMapEntry) bool {
		if !usable(entry) {
			if lengthBelow4GEmpty(entry) {
				kfmt.Printf("[boot_mem_alloc] region at 0x%8x extends past 4G (length high bits: 0x%x); it is not used\n",
					entry.BaseLow, entry.LengthHigh)
			}
			return true
		}

		if !found || mem.Size(entry.LengthLow) > selected.Length {
			selected = newRegion(entry)
			found = true
		}

		return true
	}

	// Use the noescape hack to prevent the compiler from leaking the visitor
	// function literal to the heap.
	visitFn(*(*multiboot.MemRegionVisitor)(noEscape(unsafe.Pointer(&visitor))))

	if !found {
		return Region{}, ErrNoUsableMemory
	}

	kfmt.Printf("[boot_mem_alloc] selected region: [0x%8x - 0x%8x], size: %dKb\n",
		selected.Base, selected.End, uint64(selected.Length/mem.Kb))
	if selected.Above4G() {
		kfmt.Printf("[boot_mem_alloc] region extends past 4G (length high bits: 0x%x); the excess is not used\n",
			selected.LengthHigh)
	}

	return selected, nil
}

// PrintMemoryMap scans the memory region information provided by the boot
// loader and prints out the system's memory map.
func PrintMemoryMap(visitFn RegionVisitFn) {
	var totalFree mem.Size

	var visitor = func(entry *multiboot.MemoryMapEntry) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n",
			entry.Base(), entry.Base()+entry.Length(), entry.Length(), entry.Type.String())

		if entry.Type == multiboot.MemAvailable {
			totalFree += mem.Size(entry.Length())
		}
		return true
	}

	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	visitFn(*(*multiboot.MemRegionVisitor)(noEscape(unsafe.Pointer(&visitor))))
	kfmt.Printf("[boot_mem_alloc] available memory: %dKb\n", uint64(totalFree/mem.Kb))
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
