// Package multiboot provides read-only access to the boot information
// structure that a multiboot (v1) compliant boot loader hands to the kernel.
package multiboot

import (
	"reflect"
	"unsafe"
)

var (
	infoData uintptr

	// physPtrFn converts a 32-bit physical address stored inside the boot
	// information structure into a pointer the kernel can dereference.
	// While paging is disabled this is the identity function. Tests use
	// it to relocate the structure into a Go-managed buffer.
	physPtrFn = func(physAddr uint32) uintptr {
		return uintptr(physAddr)
	}
)

// infoFlag describes the bits of info.flags that signal which optional
// fields the boot loader populated.
type infoFlag uint32

const (
	flagCmdLine     infoFlag = 1 << 2
	flagMemoryMap   infoFlag = 1 << 6
	flagFramebuffer infoFlag = 1 << 12
)

// info mirrors the layout of the multiboot information structure.
type info struct {
	flags          infoFlag
	memLower       uint32
	memUpper       uint32
	bootDevice     uint32
	cmdLine        uint32
	modsCount      uint32
	modsAddr       uint32
	syms           [4]uint32
	mmapLength     uint32
	mmapAddr       uint32
	drivesLength   uint32
	drivesAddr     uint32
	configTable    uint32
	bootLoaderName uint32
	apmTable       uint32
	vbeControlInfo uint32
	vbeModeInfo    uint32
	vbeMode        uint16
	vbeIfaceSeg    uint16
	vbeIfaceOff    uint16
	vbeIfaceLen    uint16
	framebuffer    FramebufferInfo
}

// FramebufferType defines the type of the initialized framebuffer.
type FramebufferType uint8

const (
	// FramebufferTypeIndexed specifies a 256-color palette.
	FramebufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB specifies direct RGB mode.
	FramebufferTypeRGB

	// FramebufferTypeEGA specifies EGA text mode.
	FramebufferTypeEGA
)

// FramebufferInfo provides information about the initialized framebuffer.
type FramebufferInfo struct {
	// The framebuffer physical address.
	PhysAddr uint64

	// Row pitch in bytes.
	Pitch uint32

	// Width and height in pixels (or characters if Type = FramebufferTypeEGA)
	Width, Height uint32

	// Bits per pixel (non EGA modes only).
	Bpp uint8

	// Framebuffer type.
	Type FramebufferType
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// MemBadRAM indicates memory that the firmware flagged as defective.
	MemBadRAM
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	case MemBadRAM:
		return "bad RAM"
	default:
		return "unknown"
	}
}

// entryPayloadSize is the number of bytes that follow the size field of a
// well-formed memory map entry.
const entryPayloadSize = uint32(unsafe.Sizeof(MemoryMapEntry{}) - unsafe.Sizeof(uint32(0)))

// MemoryMapEntry describes a memory region as reported by the boot loader.
// The 64-bit base address and length are stored as 32-bit halves. Entries are
// never modified by the kernel.
type MemoryMapEntry struct {
	// The size of the entry payload; it does not include the size field.
	size uint32

	// The physical address for this memory region.
	BaseLow, BaseHigh uint32

	// The length of the memory region.
	LengthLow, LengthHigh uint32

	// The type of this entry.
	Type MemoryEntryType
}

// Base returns the 64-bit physical address of the region.
func (e *MemoryMapEntry) Base() uint64 {
	return uint64(e.BaseHigh)<<32 | uint64(e.BaseLow)
}

// Length returns the 64-bit length of the region.
func (e *MemoryMapEntry) Length() uint64 {
	return uint64(e.LengthHigh)<<32 | uint64(e.LengthLow)
}

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region provided by the boot loader. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

func getInfo() *info {
	if infoData == 0 {
		return nil
	}
	return (*info)(unsafe.Pointer(infoData))
}

// VisitMemRegions invokes the supplied visitor for each memory region entry
// in the order reported by the boot loader. The scan terminates once the
// advertised memory map length is consumed. Entries whose size field is too
// small to hold a full record are stepped over without being visited.
func VisitMemRegions(visitor MemRegionVisitor) {
	mbInfo := getInfo()
	if mbInfo == nil || mbInfo.flags&flagMemoryMap == 0 {
		return
	}

	var (
		curPtr = physPtrFn(mbInfo.mmapAddr)
		endPtr = curPtr + uintptr(mbInfo.mmapLength)
		entry  *MemoryMapEntry
	)

	for curPtr+unsafe.Sizeof(uint32(0)) <= endPtr {
		entry = (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		// The size field does not account for itself
		nextPtr := curPtr + unsafe.Sizeof(entry.size) + uintptr(entry.size)
		if entry.size >= entryPayloadSize && nextPtr <= endPtr {
			if !visitor(entry) {
				return
			}
		}

		curPtr = nextPtr
	}
}

// GetFramebufferInfo returns information about the framebuffer initialized by the
// bootloader. This function returns nil if no framebuffer info is available.
func GetFramebufferInfo() *FramebufferInfo {
	mbInfo := getInfo()
	if mbInfo == nil || mbInfo.flags&flagFramebuffer == 0 {
		return nil
	}

	return &mbInfo.framebuffer
}

// CmdLineValue looks up key in the kernel command line. Arguments are
// whitespace-separated and use the form key=value; a bare key reports its own
// name as the value. The returned string aliases the boot loader's buffer, so
// the lookup works before any memory allocator is available.
func CmdLineValue(key string) (string, bool) {
	cmdLine := cmdLineString()

	for start := 0; start < len(cmdLine); {
		for ; start < len(cmdLine) && isSpace(cmdLine[start]); start++ {
		}

		end := start
		for ; end < len(cmdLine) && !isSpace(cmdLine[end]); end++ {
		}

		if arg := cmdLine[start:end]; len(arg) != 0 {
			sep := 0
			for ; sep < len(arg) && arg[sep] != '='; sep++ {
			}

			if arg[:sep] == key {
				if sep == len(arg) {
					return arg, true
				}
				return arg[sep+1:], true
			}
		}

		start = end
	}

	return "", false
}

// cmdLineString overlays a string on top of the NULL-terminated command line
// supplied by the boot loader.
func cmdLineString() string {
	mbInfo := getInfo()
	if mbInfo == nil || mbInfo.flags&flagCmdLine == 0 || mbInfo.cmdLine == 0 {
		return ""
	}

	var (
		start  = physPtrFn(mbInfo.cmdLine)
		end    = start
		cmd    string
		header = (*reflect.StringHeader)(unsafe.Pointer(&cmd))
	)

	for ; *(*byte)(unsafe.Pointer(end)) != 0; end++ {
	}

	header.Data = start
	header.Len = int(end - start)
	return cmd
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n'
}
