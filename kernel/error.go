// Package kernel contains the types shared by every kernel subsystem.
package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error and compared by identity; they are created up front
// because the bootstrap code runs before any memory allocator exists.
type Error struct {
	// The subsystem that reported the error.
	Module string

	// A human readable description of the failure.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
