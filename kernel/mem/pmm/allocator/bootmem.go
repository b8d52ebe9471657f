package allocator

import (
	"domos/kernel"
	"domos/kernel/kfmt"
	"domos/kernel/mem"
	"domos/kernel/mem/pmm"
)

var (
	// ErrKernelNotContained is returned when the loaded kernel image does
	// not lie inside the region selected for boot allocations.
	ErrKernelNotContained = &kernel.Error{Module: "boot_mem_alloc", Message: "kernel image is not contained in the selected memory region"}

	// ErrFrameExhaustion is returned when an allocation would extend past
	// the end of the selected region.
	ErrFrameExhaustion = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}

	errAllocAfterSeal = &kernel.Error{Module: "boot_mem_alloc", Message: "allocation attempted after the allocator was sealed"}
)

// BootMemAllocator implements a bump allocator which is used to bootstrap the
// kernel. It hands out memory from a single Region starting at the first page
// boundary past the kernel image.
//
// Allocations can not be freed. Once the kernel is properly initialized, the
// address returned by NextFree seeds a more advanced allocator.
type BootMemAllocator struct {
	region Region

	// Keep track of kernel location so we can report it.
	kernelStartAddr, kernelEndAddr uintptr

	// nextFree points to the first byte that has not been handed out.
	nextFree uintptr

	// allocCount tracks the total number of allocations.
	allocCount uint64

	// sealed is set once the physical address space is about to become
	// virtual; no allocations are allowed past that point.
	sealed bool
}

// Init sets up the allocator to serve allocations from region. Init returns
// ErrKernelNotContained if [kernelStart, kernelEnd) does not lie inside the
// region; no memory is claimed in that case.
func (alloc *BootMemAllocator) Init(region Region, kernelStart, kernelEnd uintptr) *kernel.Error {
	if !region.Contains(kernelStart, kernelEnd) {
		kfmt.Eprintf("[boot_mem_alloc] kernel image [0x%x - 0x%x] lies outside region [0x%x - 0x%x]\n",
			kernelStart, kernelEnd, region.Base, region.End)
		return ErrKernelNotContained
	}

	alloc.region = region
	alloc.kernelStartAddr = kernelStart
	alloc.kernelEndAddr = kernelEnd
	alloc.allocCount = 0
	alloc.sealed = false

	// A kernel ending in the last page of the 32-bit space leaves nothing
	// to allocate from.
	nextFree, ok := mem.AlignUp(kernelEnd, mem.PageSize)
	if !ok || nextFree > region.End {
		nextFree = region.End
	}
	alloc.nextFree = nextFree

	kfmt.Printf("[boot_mem_alloc] kernel loaded at 0x%x - 0x%x\n", kernelStart, kernelEnd)
	kfmt.Printf("[boot_mem_alloc] size: %d bytes, first free address: 0x%x\n",
		uint64(kernelEnd-kernelStart), alloc.nextFree)

	return nil
}

// Alloc reserves size bytes aligned to align (which must be a power of 2) and
// returns the physical address of the reserved block. Alloc returns
// ErrFrameExhaustion if the block does not fit in the selected region.
func (alloc *BootMemAllocator) Alloc(size, align mem.Size) (uintptr, *kernel.Error) {
	if alloc.sealed {
		return 0, errAllocAfterSeal
	}

	addr, ok := mem.AlignUp(alloc.nextFree, align)
	if !ok || uint64(addr)+uint64(size) > uint64(alloc.region.End) {
		kfmt.Eprintf("[boot_mem_alloc] unable to allocate %d bytes; %d bytes remaining\n",
			uint64(size), uint64(alloc.Remaining()))
		return 0, ErrFrameExhaustion
	}

	alloc.nextFree = addr + uintptr(size)
	alloc.allocCount++
	return addr, nil
}

// AllocFrame reserves the next available page-aligned physical frame.
func (alloc *BootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	addr, err := alloc.Alloc(mem.PageSize, mem.PageSize)
	if err != nil {
		return pmm.InvalidFrame, err
	}

	return pmm.FrameFromAddress(addr), nil
}

// Seal prevents any further allocations. It must be called before paging is
// enabled as physical addresses handed out afterwards would no longer be
// reachable.
func (alloc *BootMemAllocator) Seal() {
	alloc.sealed = true
	kfmt.Printf("[boot_mem_alloc] sealed after %d allocations, next free address: 0x%x\n",
		alloc.allocCount, alloc.nextFree)
}

// NextFree returns the address of the first byte not claimed by the kernel
// image or by any allocation.
func (alloc *BootMemAllocator) NextFree() uintptr {
	return alloc.nextFree
}

// Remaining returns the number of bytes left in the selected region.
func (alloc *BootMemAllocator) Remaining() mem.Size {
	if alloc.nextFree >= alloc.region.End {
		return 0
	}
	return mem.Size(alloc.region.End - alloc.nextFree)
}

// AllocCount returns the number of successful allocations.
func (alloc *BootMemAllocator) AllocCount() uint64 {
	return alloc.allocCount
}
