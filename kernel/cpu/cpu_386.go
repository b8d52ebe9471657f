// Package cpu exposes the privileged x86 instructions used by the kernel.
package cpu

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution. Halt never returns.
func Halt()

// EnablePaging loads pdtPhysAddr into CR3 and then sets the PG bit in CR0.
// Both steps run back-to-back inside a single routine so nothing executes
// while the base register points at the new directory but translation is
// still off. Paging cannot be turned off again.
func EnablePaging(pdtPhysAddr uintptr)

// ActivePDT returns the physical address stored in CR3.
func ActivePDT() uintptr

// PagingEnabled reports whether the PG bit in CR0 is set.
func PagingEnabled() bool

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
