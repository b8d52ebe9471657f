//go:build !386
// +build !386

// Package cpu exposes the privileged x86 instructions used by the kernel.
//
// The kernel only runs on 386. On other architectures the package compiles to
// stubs so the remaining packages can be tested on the build host. Privileged
// instructions panic; callers replace them through their own xxxFn hooks.
// Nothing is wired to the I/O ports of a hosted build so port writes are
// dropped and reads return 0xff, the value of a floating bus.
package cpu

const errHosted = "cpu: privileged instruction invoked from a hosted build"

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() { panic(errHosted) }

// Halt stops instruction execution.
func Halt() { panic(errHosted) }

// EnablePaging loads pdtPhysAddr into CR3 and sets the PG bit in CR0.
func EnablePaging(_ uintptr) { panic(errHosted) }

// ActivePDT returns the physical address stored in CR3.
func ActivePDT() uintptr { panic(errHosted) }

// PagingEnabled reports whether the PG bit in CR0 is set.
func PagingEnabled() bool { panic(errHosted) }

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(_ uint16, _ uint8) {}

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(_ uint16) uint8 { return 0xff }
