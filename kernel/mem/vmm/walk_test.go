package vmm

import (
	"testing"
	"unsafe"
)

func TestPtePtrFn(t *testing.T) {
	// Dummy test to keep coverage happy
	if exp, got := unsafe.Pointer(uintptr(123)), ptePtrFn(uintptr(123)); exp != got {
		t.Fatalf("expected ptePtrFn to return %v; got %v", exp, got)
	}
}

func TestWalk(t *testing.T) {
	defer func(origPtePtr func(uintptr) unsafe.Pointer) {
		ptePtrFn = origPtePtr
	}(ptePtrFn)

	specs := []struct {
		virtAddr      uintptr
		abortAtLevel  int
		expEntryAddrs []uintptr
	}{
		// directory index 1, table index 3
		{0x00403123, -1, []uintptr{0xfffff004, 0xffc0100c}},
		// directory index 768, table index 0
		{0xc0000000, -1, []uintptr{0xfffffc00, 0xfff00000}},
		// directory index 1023 (recursive), table index 1023
		{0xfffff000, -1, []uintptr{0xfffffffc, 0xfffffffc}},
		{0x00403123, 0, []uintptr{0xfffff004}},
	}

	var dummy pageTableEntry
	for specIndex, spec := range specs {
		var gotAddrs []uintptr
		ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
			gotAddrs = append(gotAddrs, entryAddr)
			return unsafe.Pointer(&dummy)
		}

		walk(spec.virtAddr, func(level uint8, _ *pageTableEntry) bool {
			return int(level) != spec.abortAtLevel
		})

		if len(gotAddrs) != len(spec.expEntryAddrs) {
			t.Errorf("[spec %d] expected %d entry accesses; got %d", specIndex, len(spec.expEntryAddrs), len(gotAddrs))
			continue
		}

		for i, exp := range spec.expEntryAddrs {
			if gotAddrs[i] != exp {
				t.Errorf("[spec %d] expected entry address for level %d to be 0x%x; got 0x%x", specIndex, i, exp, gotAddrs[i])
			}
		}
	}
}
