package vmm

import (
	"domos/kernel/kfmt"
	"domos/kernel/mem"
	"io"
)

var dumpPrefix = []byte("[vmm] ")

// mappingRun tracks a sequence of virtually and physically contiguous pages
// that share the same access rights.
type mappingRun struct {
	virtStart, virtEnd uintptr
	physStart          uintptr
	writable           bool
	valid              bool
}

func (r *mappingRun) extends(virtAddr, physAddr uintptr, writable bool) bool {
	return r.valid && r.virtEnd == virtAddr && r.physStart+(r.virtEnd-r.virtStart) == physAddr && r.writable == writable
}

func (r *mappingRun) flush(w io.Writer) {
	if !r.valid {
		return
	}

	access := "ro"
	if r.writable {
		access = "rw"
	}

	kfmt.Fprintf(w, "  0x%8x - 0x%8x -> 0x%8x %s\n", r.virtStart, r.virtEnd, r.physStart, access)
	r.valid = false
}

// DumpMappings prints the contents of the active page directory and of every
// page table it references. Contiguous pages are collapsed into a single
// line. DumpMappings reads the tables through the recursive mapping so it
// must only be called while paging is enabled.
func DumpMappings(w io.Writer) {
	var (
		pw                    = kfmt.PrefixWriter{Sink: w, Prefix: dumpPrefix}
		tableCount, pageCount int
		run                   mappingRun
	)

	kfmt.Fprintf(&pw, "active page directory at 0x%8x:\n", activePDTFn())
	for dirIndex := uintptr(0); dirIndex < entriesPerTable; dirIndex++ {
		pde := (*pageTableEntry)(ptePtrFn(pdtVirtualAddr + (dirIndex << mem.EntryShift)))
		if !pde.HasFlags(FlagPresent) {
			continue
		}

		if dirIndex == recursiveSlot {
			kfmt.Fprintf(&pw, "pde %4d: recursive mapping of 0x%8x\n", dirIndex, pde.Frame().Address())
			continue
		}

		tableCount++
		kfmt.Fprintf(&pw, "pde %4d: page table at 0x%8x\n", dirIndex, pde.Frame().Address())

		tableAddr := tablesVirtualAddr + (dirIndex << mem.PageShift)
		for tableIndex := uintptr(0); tableIndex < entriesPerTable; tableIndex++ {
			pte := (*pageTableEntry)(ptePtrFn(tableAddr + (tableIndex << mem.EntryShift)))
			if !pte.HasFlags(FlagPresent) {
				run.flush(&pw)
				continue
			}

			pageCount++
			var (
				virtAddr = (dirIndex << pageLevelShifts[0]) | (tableIndex << pageLevelShifts[1])
				physAddr = pte.Frame().Address()
				writable = pte.HasFlags(FlagRW)
			)

			if run.extends(virtAddr, physAddr, writable) {
				run.virtEnd += uintptr(mem.PageSize)
				continue
			}

			run.flush(&pw)
			run = mappingRun{
				virtStart: virtAddr,
				virtEnd:   virtAddr + uintptr(mem.PageSize),
				physStart: physAddr,
				writable:  writable,
				valid:     true,
			}
		}
		run.flush(&pw)
	}

	kfmt.Fprintf(&pw, "%d page tables, %d mapped pages\n", tableCount, pageCount)
}
