package vmm

import (
	"bytes"
	"domos/kernel"
	"domos/kernel/kfmt"
	"domos/kernel/mem"
	"domos/kernel/mem/pmm"
	"testing"
	"unsafe"
)

// junkEntry fills frames that were never written so tests can detect tables
// that are used without being cleared first.
const junkEntry = pageTableEntry(0xdeadbeef)

// fakeMachine emulates the physical memory and the MMU of a 32-bit CPU. Page
// table accesses issued through ptePtrFn are served from Go memory: physical
// addresses before EnablePaging and virtual addresses translated through the
// loaded page directory afterwards.
type fakeMachine struct {
	t *testing.T

	frames map[pmm.Frame]*[entriesPerTable]pageTableEntry

	pagingEnabled bool
	pdtAddr       uintptr
	enableCount   int

	// out captures console output.
	out bytes.Buffer
}

func newFakeMachine(t *testing.T) *fakeMachine {
	m := &fakeMachine{
		t:      t,
		frames: make(map[pmm.Frame]*[entriesPerTable]pageTableEntry),
	}

	origPtePtr, origEnablePaging := ptePtrFn, enablePagingFn
	origPagingEnabled, origActivePDT := pagingEnabledFn, activePDTFn
	ptePtrFn = m.entryPtr
	enablePagingFn = m.enablePaging
	pagingEnabledFn = func() bool { return m.pagingEnabled }
	activePDTFn = func() uintptr { return m.pdtAddr }

	kfmt.SetOutputSink(&m.out)

	t.Cleanup(func() {
		ptePtrFn = origPtePtr
		enablePagingFn = origEnablePaging
		pagingEnabledFn = origPagingEnabled
		activePDTFn = origActivePDT
		kfmt.SetOutputSink(nil)
	})

	return m
}

func (m *fakeMachine) enablePaging(pdtAddr uintptr) {
	m.enableCount++
	m.pdtAddr = pdtAddr
	m.pagingEnabled = true
}

func (m *fakeMachine) entryPtr(addr uintptr) unsafe.Pointer {
	if !m.pagingEnabled {
		return m.physPtr(addr)
	}
	return m.virtPtr(addr)
}

func (m *fakeMachine) physPtr(physAddr uintptr) unsafe.Pointer {
	if physAddr > mem.MaxPhysAddr {
		m.t.Fatalf("physical address 0x%x exceeds the 32-bit address space", physAddr)
	}

	frame := pmm.FrameFromAddress(physAddr)
	table, ok := m.frames[frame]
	if !ok {
		table = new([entriesPerTable]pageTableEntry)
		for i := range table {
			table[i] = junkEntry
		}
		m.frames[frame] = table
	}

	return unsafe.Pointer(&table[PageOffset(physAddr)>>mem.EntryShift])
}

// virtPtr performs the two-level translation that the MMU would perform.
func (m *fakeMachine) virtPtr(virtAddr uintptr) unsafe.Pointer {
	pde := *(*pageTableEntry)(m.physPtr(m.pdtAddr + (pdtIndex(virtAddr) << mem.EntryShift)))
	if !pde.HasFlags(FlagPresent) {
		m.t.Fatalf("page fault: directory entry for 0x%x is not present", virtAddr)
	}

	pte := *(*pageTableEntry)(m.physPtr(pde.Frame().Address() + (ptIndex(virtAddr) << mem.EntryShift)))
	if !pte.HasFlags(FlagPresent) {
		m.t.Fatalf("page fault: table entry for 0x%x is not present", virtAddr)
	}

	return m.physPtr(pte.Frame().Address() + PageOffset(virtAddr))
}

// entry returns the raw entry at index of the table stored in frame.
func (m *fakeMachine) entry(frame pmm.Frame, index uintptr) pageTableEntry {
	table, ok := m.frames[frame]
	if !ok {
		m.t.Fatalf("frame 0x%x was never accessed", frame)
	}
	return table[index]
}

// frameAllocator hands out consecutive frames starting at next.
type frameAllocator struct {
	next      pmm.Frame
	limit     pmm.Frame
	allocated []pmm.Frame
}

var errTestOutOfFrames = &kernel.Error{Module: "test", Message: "out of frames"}

func (a *frameAllocator) alloc() (pmm.Frame, *kernel.Error) {
	if a.limit != 0 && a.next >= a.limit {
		return pmm.InvalidFrame, errTestOutOfFrames
	}

	frame := a.next
	a.next++
	a.allocated = append(a.allocated, frame)
	return frame, nil
}
