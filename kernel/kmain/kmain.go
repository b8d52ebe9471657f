package kmain

import (
	"domos/kernel"
	"domos/kernel/cpu"
	"domos/kernel/hal"
	"domos/kernel/hal/multiboot"
	"domos/kernel/kfmt"
	"domos/kernel/mem"
	"domos/kernel/mem/pmm/allocator"
	"domos/kernel/mem/vmm"
)

// The mappings for the kernel image and the hardware regions.
const bootMappingFlags = vmm.FlagPresent | vmm.FlagRW

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	initConsoleFn       = hal.InitConsole
	displayRegionFn     = hal.DisplayRegion
	remapDisplayFn      = hal.RemapDisplay
	visitMemRegionsFn   = multiboot.VisitMemRegions
	cmdLineValueFn      = multiboot.CmdLineValue
	disableInterruptsFn = cpu.DisableInterrupts
	panicFn             = kfmt.Panic

	pdtInitFn      = (*vmm.PageDirectoryTable).Init
	identityMapFn  = (*vmm.PageDirectoryTable).IdentityMapRegion
	activatePDTFn  = (*vmm.PageDirectoryTable).Activate
	dumpMappingsFn = vmm.DumpMappings
)

// bootContext holds the state that the bootstrap steps hand over to each
// other. It only lives for the duration of Kmain.
type bootContext struct {
	kernelStart, kernelEnd uintptr

	// Boot command line options. The command line lives in boot loader
	// memory that is not mapped once paging is enabled.
	quiet, dumpTables bool

	region allocator.Region
	alloc  allocator.BootMemAllocator
	pdt    vmm.PageDirectoryTable
}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up the GDT and a minimal g0 struct that allows Go code to use
// the 4K stack allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by
// the bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain sets up the console, reserves the physical memory needed for the page
// tables, identity maps the kernel image and the display buffer and enables
// paging. It returns the physical address of the first free frame past the
// kernel image and the paging structures. Any failure halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) uintptr {
	multiboot.SetInfoPtr(multibootInfoPtr)
	initConsoleFn()

	ctx := bootContext{
		kernelStart: kernelStart,
		kernelEnd:   kernelEnd,
	}

	if err := ctx.bootstrap(); err != nil {
		panicFn(err)
		return 0
	}

	return ctx.alloc.NextFree()
}

// bootstrap runs the bootstrap steps in order and stops at the first error.
func (ctx *bootContext) bootstrap() *kernel.Error {
	kfmt.Printf("[kmain] kernel image: 0x%x - 0x%x, size: %dKb\n",
		ctx.kernelStart, ctx.kernelEnd, uint64(ctx.kernelEnd-ctx.kernelStart)/1024)

	ctx.readBootOptions()
	if !ctx.quiet {
		allocator.PrintMemoryMap(visitMemRegionsFn)
	}

	var err *kernel.Error
	if ctx.region, err = allocator.SelectRegion(visitMemRegionsFn); err != nil {
		return err
	}

	if err = ctx.alloc.Init(ctx.region, ctx.kernelStart, ctx.kernelEnd); err != nil {
		return err
	}

	if err = ctx.buildPageTables(); err != nil {
		return err
	}

	// Once paging is enabled the frames past the cursor can no longer be
	// reached through their physical addresses.
	ctx.alloc.Seal()

	disableInterruptsFn()
	activatePDTFn(&ctx.pdt)

	if err = remapDisplayFn(); err != nil {
		return err
	}

	if ctx.dumpTables {
		dumpMappingsFn(kfmt.GetOutputSink())
	}

	kfmt.Successf("[kmain] bootstrap complete; %d frames reserved, first free address: 0x%x\n",
		ctx.alloc.AllocCount(), ctx.alloc.NextFree())
	return nil
}

// readBootOptions looks up the boot command line options.
func (ctx *bootContext) readBootOptions() {
	_, ctx.quiet = cmdLineValueFn("quiet")

	value, ok := cmdLineValueFn("pagingdump")
	ctx.dumpTables = ok && value != "off"
}

// buildPageTables reserves a frame for the page directory and identity maps
// the kernel image and the display buffer.
func (ctx *bootContext) buildPageTables() *kernel.Error {
	pdtFrame, err := ctx.alloc.AllocFrame()
	if err != nil {
		return err
	}
	pdtInitFn(&ctx.pdt, pdtFrame)

	allocFn := ctx.alloc.AllocFrame

	if err = identityMapFn(&ctx.pdt, ctx.kernelStart, mem.Size(ctx.kernelEnd-ctx.kernelStart), bootMappingFlags, allocFn); err != nil {
		return err
	}

	fbAddr, fbSize := displayRegionFn()
	return identityMapFn(&ctx.pdt, fbAddr, fbSize, bootMappingFlags, allocFn)
}
