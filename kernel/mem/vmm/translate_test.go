package vmm

import (
	"domos/kernel"
	"domos/kernel/mem/pmm"
	"strings"
	"testing"
)

// activeBootPDT identity maps a kernel image at [0x100000, 0x150000) and the
// text-mode framebuffer, then enables paging.
func activeBootPDT(t *testing.T) *PageDirectoryTable {
	var (
		pdt   PageDirectoryTable
		alloc = frameAllocator{next: testPdtFrame + 1}
	)

	pdt.Init(testPdtFrame)
	if err := pdt.IdentityMapRegion(0x100000, 0x50000, FlagPresent|FlagRW, alloc.alloc); err != nil {
		t.Fatal(err)
	}
	if err := pdt.IdentityMapRegion(0xb8000, 4000, FlagPresent|FlagRW, alloc.alloc); err != nil {
		t.Fatal(err)
	}
	pdt.Activate()

	return &pdt
}

func TestTranslate(t *testing.T) {
	newFakeMachine(t)
	activeBootPDT(t)

	specs := []struct {
		virtAddr    uintptr
		expPhysAddr uintptr
		expErr      *kernel.Error
	}{
		{0x100000, 0x100000, nil},
		{0x14fabc, 0x14fabc, nil},
		{0xb8f9e, 0xb8f9e, nil},
		// page in a present table but not mapped
		{0x150000, 0, ErrInvalidMapping},
		// no table for this 4M slot
		{0x800000, 0, ErrInvalidMapping},
		// the recursive mapping exposes the directory and its tables
		{pdtVirtualAddr + 4, testPdtFrame.Address() + 4, nil},
		{tablesVirtualAddr, (testPdtFrame + 1).Address(), nil},
	}

	for specIndex, spec := range specs {
		physAddr, err := Translate(spec.virtAddr)
		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}

		if physAddr != spec.expPhysAddr {
			t.Errorf("[spec %d] expected Translate(0x%x) to return 0x%x; got 0x%x", specIndex, spec.virtAddr, spec.expPhysAddr, physAddr)
		}
	}
}

func TestTranslateHugePage(t *testing.T) {
	m := newFakeMachine(t)
	activeBootPDT(t)

	m.frames[testPdtFrame][2] = pageTableEntry(0x800000 | FlagPresent | FlagRW | FlagHugePage)

	if _, err := Translate(0x800000); err != errNoHugePageSupport {
		t.Fatalf("expected to get errNoHugePageSupport; got %v", err)
	}
}

func TestVerifyMapping(t *testing.T) {
	m := newFakeMachine(t)
	activeBootPDT(t)

	specs := []struct {
		virtAddr, expPhysAddr uintptr
		expErr                *kernel.Error
		expOutput             string
	}{
		{0xb8000, 0xb8000, nil, ""},
		{0xb8f00, 0xb8000, nil, ""},
		{0x100000, 0x100000, nil, ""},
		{
			0xb8000, 0xb9000, ErrRemapVerification,
			"[vmm] mapping for 0xb8000: expected frame address 0xb9000; observed 0xb8000\n",
		},
		{
			0x800000, 0x800000, ErrRemapVerification,
			"[vmm] mapping for 0x800000: expected frame address 0x800000; observed: virtual address does not point to a mapped physical page\n",
		},
	}

	for specIndex, spec := range specs {
		m.out.Reset()

		if err := VerifyMapping(spec.virtAddr, spec.expPhysAddr); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}

		if got := m.out.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected output %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestVerifyMappingAfterTableCorruption(t *testing.T) {
	m := newFakeMachine(t)
	activeBootPDT(t)

	table := m.entry(testPdtFrame, 0).Frame()
	m.frames[table][ptIndex(0xb8000)] &^= pageTableEntry(FlagPresent)

	if err := VerifyMapping(0xb8000, 0xb8000); err != ErrRemapVerification {
		t.Fatalf("expected to get ErrRemapVerification; got %v", err)
	}

	if exp := "observed: virtual address does not point to a mapped physical page"; !strings.Contains(m.out.String(), exp) {
		t.Fatalf("expected output to contain %q; got %q", exp, m.out.String())
	}

	// The mapping must not be repaired
	if m.entry(table, ptIndex(0xb8000)).HasFlags(FlagPresent) {
		t.Fatal("expected VerifyMapping to leave the table untouched")
	}

	if got := m.entry(table, ptIndex(0xb8000)).Frame(); got != pmm.Frame(0xb8) {
		t.Fatalf("expected table entry to keep frame 0xb8; got 0x%x", got)
	}
}

func TestVerifyMappingWithPagingDisabled(t *testing.T) {
	m := newFakeMachine(t)

	var (
		pdt   PageDirectoryTable
		alloc = frameAllocator{next: testPdtFrame + 1}
	)
	pdt.Init(testPdtFrame)
	if err := pdt.IdentityMapRegion(0xb8000, 4000, FlagPresent|FlagRW, alloc.alloc); err != nil {
		t.Fatal(err)
	}

	if err := VerifyMapping(0xb8000, 0xb8000); err != ErrPagingDisabled {
		t.Fatalf("expected to get ErrPagingDisabled; got %v", err)
	}

	if exp := "[vmm] mapping for 0xb8000 can not be verified while paging is disabled\n"; m.out.String() != exp {
		t.Fatalf("expected output %q; got %q", exp, m.out.String())
	}
}
