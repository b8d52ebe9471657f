// Package hal sets up the hardware that the kernel needs during boot.
package hal

import (
	"domos/kernel"
	"domos/kernel/cpu"
	"domos/kernel/driver/video/console"
	"domos/kernel/hal/multiboot"
	"domos/kernel/kfmt"
	"domos/kernel/mem"
	"domos/kernel/mem/vmm"
)

var (
	// activeConsole is the console that receives all kfmt output.
	activeConsole console.Vga

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	getFramebufferInfoFn = multiboot.GetFramebufferInfo
	verifyMappingFn      = vmm.VerifyMapping
	pagingEnabledFn      = cpu.PagingEnabled
)

// InitConsole sets up the text-mode console using the framebuffer reported
// by the boot loader. If the boot loader did not set up an EGA text
// framebuffer, the standard 80x25 color text buffer is used. Once the console
// is initialized, kfmt output (including any output buffered so far) is
// redirected to it; errors are rendered in light red and completed boot
// stages in light green.
func InitConsole() {
	fbAddr, columns, rows := consoleGeometry(getFramebufferInfoFn())

	activeConsole.Init(columns, rows, fbAddr)
	activeConsole.Clear(console.Black)

	kfmt.SetOutputSink(&activeConsole)
	kfmt.SetErrorSink(activeConsole.ErrorWriter())
	kfmt.SetSuccessSink(activeConsole.SuccessWriter())

	kfmt.Printf("[hal] console: %dx%d text mode, framebuffer at 0x%x\n", columns, rows, fbAddr)
}

// consoleGeometry returns the framebuffer address and the dimensions of the
// text console described by fbInfo.
func consoleGeometry(fbInfo *multiboot.FramebufferInfo) (uintptr, uint32, uint32) {
	if fbInfo == nil || fbInfo.Type != multiboot.FramebufferTypeEGA || fbInfo.Width == 0 || fbInfo.Height == 0 {
		return console.DefaultFramebufferAddr, console.DefaultColumns, console.DefaultRows
	}

	return uintptr(fbInfo.PhysAddr), fbInfo.Width, fbInfo.Height
}

// DisplayRegion returns the physical address and size of the console
// framebuffer. The region must stay reachable once paging is enabled.
func DisplayRegion() (uintptr, mem.Size) {
	return activeConsole.Framebuffer()
}

// RemapDisplay reads back the active page tables and checks that every page
// of the console framebuffer is identity mapped. If all pages check out, the
// console is pointed at the verified virtual address. A failed check is
// reported and the console is left untouched. RemapDisplay returns
// vmm.ErrPagingDisabled if paging has not been enabled yet.
func RemapDisplay() *kernel.Error {
	fbAddr, fbSize := activeConsole.Framebuffer()
	if fbSize == 0 {
		return nil
	}

	if !pagingEnabledFn() {
		return vmm.ErrPagingDisabled
	}

	fbEnd := fbAddr + uintptr(fbSize)
	for pageAddr := mem.AlignDown(fbAddr, mem.PageSize); pageAddr < fbEnd; pageAddr += uintptr(mem.PageSize) {
		if err := verifyMappingFn(pageAddr, pageAddr); err != nil {
			return err
		}
	}

	activeConsole.Remap(fbAddr)
	kfmt.Successf("[hal] display buffer verified at 0x%x\n", fbAddr)
	return nil
}
