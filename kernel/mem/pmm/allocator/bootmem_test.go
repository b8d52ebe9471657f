package allocator

import (
	"domos/kernel"
	"domos/kernel/mem"
	"domos/kernel/mem/pmm"
	"strings"
	"testing"
)

var testRegion = Region{Base: 0x100000, Length: 0x7ee0000, End: 0x7fe0000}

func TestBootMemAllocatorInit(t *testing.T) {
	captureOutput(t)

	specs := []struct {
		kernelStart, kernelEnd uintptr
		expErr                 *kernel.Error
		expNextFree            uintptr
	}{
		// kernel end is already page-aligned
		{0x100000, 0x150000, nil, 0x150000},
		{0x100000, 0x150001, nil, 0x151000},
		{0x100800, 0x102000, nil, 0x102000},
		// kernel occupies the entire region
		{0x100000, 0x7fe0000, nil, 0x7fe0000},
		// kernel starts before the region
		{0x0, 0x150000, ErrKernelNotContained, 0},
		// kernel ends past the region
		{0x100000, 0x8000000, ErrKernelNotContained, 0},
		// kernel bounds are reversed
		{0x150000, 0x100000, ErrKernelNotContained, 0},
	}

	for specIndex, spec := range specs {
		var alloc BootMemAllocator
		err := alloc.Init(testRegion, spec.kernelStart, spec.kernelEnd)
		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}

		if got := alloc.NextFree(); got != spec.expNextFree {
			t.Errorf("[spec %d] expected next free address to be 0x%x; got 0x%x", specIndex, spec.expNextFree, got)
		}

		if got := alloc.AllocCount(); got != 0 {
			t.Errorf("[spec %d] expected no allocations after Init; got %d", specIndex, got)
		}
	}
}

func TestBootMemAllocatorInitReportsContainmentFailure(t *testing.T) {
	buf := captureOutput(t)

	var alloc BootMemAllocator
	if err := alloc.Init(testRegion, 0x100000, 0x8000000); err != ErrKernelNotContained {
		t.Fatalf("expected to get ErrKernelNotContained; got %v", err)
	}

	exp := "kernel image [0x100000 - 0x8000000] lies outside region [0x100000 - 0x7fe0000]"
	if !strings.Contains(buf.String(), exp) {
		t.Fatalf("expected output to contain %q; got %q", exp, buf.String())
	}

	// A failed Init must not leave a usable allocator behind
	if _, err := alloc.AllocFrame(); err != ErrFrameExhaustion {
		t.Fatalf("expected AllocFrame to fail with ErrFrameExhaustion; got %v", err)
	}
}

func TestBootMemAllocatorAlloc(t *testing.T) {
	captureOutput(t)

	var alloc BootMemAllocator
	if err := alloc.Init(testRegion, 0x100000, 0x150000); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		size, align mem.Size
		expAddr     uintptr
	}{
		{mem.PageSize, mem.PageSize, 0x150000},
		{0x10, 8, 0x151000},
		{mem.PageSize, mem.PageSize, 0x152000},
		{3, 1, 0x153000},
		{0x400, 0x400, 0x153400},
		{2 * mem.PageSize, mem.PageSize, 0x154000},
		{1, 0, 0x156000},
		{0x100, 0x100, 0x156100},
	}

	var prevEnd uintptr
	for specIndex, spec := range specs {
		addr, err := alloc.Alloc(spec.size, spec.align)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}

		if addr != spec.expAddr {
			t.Errorf("[spec %d] expected address 0x%x; got 0x%x", specIndex, spec.expAddr, addr)
		}

		if spec.align > 1 && addr%uintptr(spec.align) != 0 {
			t.Errorf("[spec %d] expected address 0x%x to be aligned to 0x%x", specIndex, addr, spec.align)
		}

		if addr < prevEnd {
			t.Errorf("[spec %d] allocation at 0x%x overlaps previous allocation ending at 0x%x", specIndex, addr, prevEnd)
		}

		prevEnd = addr + uintptr(spec.size)
		if got := alloc.NextFree(); got != prevEnd {
			t.Errorf("[spec %d] expected next free address to be 0x%x; got 0x%x", specIndex, prevEnd, got)
		}
	}

	if exp, got := uint64(len(specs)), alloc.AllocCount(); got != exp {
		t.Errorf("expected alloc count to be %d; got %d", exp, got)
	}
}

func TestBootMemAllocatorAllocFrame(t *testing.T) {
	captureOutput(t)

	var alloc BootMemAllocator
	if err := alloc.Init(testRegion, 0x100000, 0x14f800); err != nil {
		t.Fatal(err)
	}

	for i, exp := range []pmm.Frame{0x150, 0x151, 0x152} {
		frame, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[frame %d] unexpected error: %v", i, err)
		}

		if frame != exp {
			t.Errorf("[frame %d] expected frame 0x%x; got 0x%x", i, exp, frame)
		}
	}

	if exp, got := uintptr(0x153000), alloc.NextFree(); got != exp {
		t.Errorf("expected next free address to be 0x%x; got 0x%x", exp, got)
	}
}

func TestBootMemAllocatorExhaustion(t *testing.T) {
	buf := captureOutput(t)

	var (
		alloc  BootMemAllocator
		region = Region{Base: 0x100000, Length: 0x4000, End: 0x104000}
	)

	if err := alloc.Init(region, 0x100000, 0x101800); err != nil {
		t.Fatal(err)
	}

	// leave half a page at the end of the region
	if _, err := alloc.Alloc(0x1800, mem.PageSize); err != nil {
		t.Fatal(err)
	}

	if _, err := alloc.Alloc(mem.PageSize, mem.PageSize); err != ErrFrameExhaustion {
		t.Fatalf("expected to get ErrFrameExhaustion; got %v", err)
	}

	if exp := "unable to allocate 4096 bytes; 2048 bytes remaining"; !strings.Contains(buf.String(), exp) {
		t.Fatalf("expected output to contain %q; got %q", exp, buf.String())
	}

	// failed allocations do not move the cursor
	if exp, got := uintptr(0x103800), alloc.NextFree(); got != exp {
		t.Fatalf("expected next free address to be 0x%x; got 0x%x", exp, got)
	}

	// the remaining bytes can still be handed out
	addr, err := alloc.Alloc(0x800, 1)
	if err != nil {
		t.Fatal(err)
	}

	if addr != 0x103800 {
		t.Fatalf("expected address 0x103800; got 0x%x", addr)
	}

	if frame, err := alloc.AllocFrame(); err != ErrFrameExhaustion || frame != pmm.InvalidFrame {
		t.Fatalf("expected AllocFrame to return (InvalidFrame, ErrFrameExhaustion); got (0x%x, %v)", frame, err)
	}

	if got := alloc.Remaining(); got != 0 {
		t.Fatalf("expected no remaining bytes; got %d", got)
	}
}

func TestBootMemAllocatorSeal(t *testing.T) {
	buf := captureOutput(t)

	var alloc BootMemAllocator
	if err := alloc.Init(testRegion, 0x100000, 0x150000); err != nil {
		t.Fatal(err)
	}

	if _, err := alloc.AllocFrame(); err != nil {
		t.Fatal(err)
	}

	alloc.Seal()

	if exp := "sealed after 1 allocations, next free address: 0x151000"; !strings.Contains(buf.String(), exp) {
		t.Fatalf("expected output to contain %q; got %q", exp, buf.String())
	}

	if _, err := alloc.Alloc(1, 1); err != errAllocAfterSeal {
		t.Fatalf("expected to get errAllocAfterSeal; got %v", err)
	}

	if frame, err := alloc.AllocFrame(); err != errAllocAfterSeal || frame != pmm.InvalidFrame {
		t.Fatalf("expected AllocFrame to return (InvalidFrame, errAllocAfterSeal); got (0x%x, %v)", frame, err)
	}

	if exp, got := uintptr(0x151000), alloc.NextFree(); got != exp {
		t.Fatalf("expected next free address to be 0x%x; got 0x%x", exp, got)
	}
}
