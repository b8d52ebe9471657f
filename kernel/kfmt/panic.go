package kfmt

import (
	"domos/kernel"
	"domos/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the error sink and halts
// the CPU. Calls to Panic never return on real hardware.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Eprintf("\n-----------------------------------\n")
	if err != nil {
		Eprintf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Eprintf("*** kernel panic: system halted ***")
	Eprintf("\n-----------------------------------\n")

	cpuHaltFn()
}
