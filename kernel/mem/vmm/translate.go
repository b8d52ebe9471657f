package vmm

import (
	"domos/kernel"
	"domos/kernel/kfmt"
	"domos/kernel/mem/pmm"
)

var (
	// ErrRemapVerification is returned when a mapping read back from the
	// active page tables does not match the expected physical address.
	ErrRemapVerification = &kernel.Error{Module: "vmm", Message: "mapping read back from the active page tables does not match the expected frame"}

	// ErrPagingDisabled is returned when mappings are read back before the
	// page directory has been activated.
	ErrPagingDisabled = &kernel.Error{Module: "vmm", Message: "paging is not enabled"}
)

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	physAddr := pte.Frame().Address() + PageOffset(virtAddr)
	return physAddr, nil
}

// VerifyMapping reads back the active page tables and checks that the page
// containing virtAddr is present and points to the frame containing
// expPhysAddr. On mismatch, VerifyMapping prints the expected and the observed
// frame address and returns ErrRemapVerification. Mappings are never
// repaired. VerifyMapping returns ErrPagingDisabled if called before a page
// directory has been activated.
func VerifyMapping(virtAddr, expPhysAddr uintptr) *kernel.Error {
	if !pagingEnabledFn() {
		kfmt.Eprintf("[vmm] mapping for 0x%x can not be verified while paging is disabled\n", virtAddr)
		return ErrPagingDisabled
	}

	expFrame := pmm.FrameFromAddress(expPhysAddr)

	physAddr, err := Translate(virtAddr)
	if err != nil {
		kfmt.Eprintf("[vmm] mapping for 0x%x: expected frame address 0x%x; observed: %s\n",
			virtAddr, expFrame.Address(), err.Message)
		return ErrRemapVerification
	}

	if got := pmm.FrameFromAddress(physAddr); got != expFrame {
		kfmt.Eprintf("[vmm] mapping for 0x%x: expected frame address 0x%x; observed 0x%x\n",
			virtAddr, expFrame.Address(), got.Address())
		return ErrRemapVerification
	}

	return nil
}
