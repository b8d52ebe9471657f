// Package kfmt implements formatted output for code that runs before the Go
// memory allocator is available.
package kfmt

import (
	"io"
	"unsafe"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numFmtBuf = []byte("012345678901234567890123456789012")

	// singleByte is used as a shared buffer for passing single characters
	// to doWrite.
	singleByte = []byte(" ")

	// earlyPrintBuffer captures output emitted before a sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink receives the output of Printf. If nil, output is
	// redirected to earlyPrintBuffer.
	outputSink io.Writer

	// errorSink receives the output of Eprintf. If nil, Eprintf falls
	// back to outputSink.
	errorSink io.Writer

	// successSink receives the output of Successf. If nil, Successf falls
	// back to outputSink.
	successSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and flushes
// any output accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the current target for calls to Printf.
func GetOutputSink() io.Writer {
	return outputSink
}

// SetErrorSink sets the target for calls to Eprintf. Consoles use a separate
// sink to render diagnostics in a distinct color.
func SetErrorSink(w io.Writer) {
	errorSink = w
}

// SetSuccessSink sets the target for calls to Successf.
func SetSuccessSink(w io.Writer) {
	successSink = w
}

// Printf provides a minimal Printf implementation that can be safely used
// before the Go runtime has been properly initialized. This implementation
// does not allocate any memory.
//
// Supported verbs:
//
//	%s  string or []byte
//	%d  base 10 integer (left-padded with spaces)
//	%x  base 16 integer, lower-case (left-padded with zeroes)
//	%o  base 8 integer (left-padded with zeroes)
//	%t  "true" or "false"
//
// An optional decimal width may precede the verb. Pointers (%p) are not
// supported as they would require the reflect package.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Eprintf behaves like Printf but writes to the error sink.
func Eprintf(format string, args ...interface{}) {
	w := errorSink
	if w == nil {
		w = outputSink
	}
	Fprintf(w, format, args...)
}

// Successf behaves like Printf but writes to the success sink. It reports the
// completion of a boot stage.
func Successf(format string, args ...interface{}) {
	w := successSink
	if w == nil {
		w = outputSink
	}
	Fprintf(w, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		padLen   int
		fmtLen   = len(format)
	)

	for i := 0; i < fmtLen; i++ {
		if format[i] != '%' {
			writeByte(w, format[i])
			continue
		}

		// Parse optional width followed by the verb
		padLen = 0
		for i++; i < fmtLen && format[i] >= '0' && format[i] <= '9'; i++ {
			padLen = padLen*10 + int(format[i]-'0')
		}

		if i == fmtLen {
			doWrite(w, errNoVerb)
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			writeByte(w, '%')
			continue
		case 'd', 'x', 'o', 's', 't':
		default:
			doWrite(w, errNoVerb)
			continue
		}

		if argIndex >= len(args) {
			doWrite(w, errMissingArg)
			continue
		}

		switch verb {
		case 'd':
			fmtInt(w, args[argIndex], 10, padLen)
		case 'x':
			fmtInt(w, args[argIndex], 16, padLen)
		case 'o':
			fmtInt(w, args[argIndex], 8, padLen)
		case 's':
			fmtString(w, args[argIndex], padLen)
		case 't':
			fmtBool(w, args[argIndex])
		}
		argIndex++
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	bVal, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case bVal:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

// fmtString prints a string or []byte value left-padded with spaces to padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		// converting the string to a byte slice triggers a memory allocation
		// so we need to do this one byte at a time.
		for i := 0; i < len(castedVal); i++ {
			writeByte(w, castedVal[i])
		}
	case []byte:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		doWrite(w, castedVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtRepeat(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// fmtInt prints v in the requested base applying padLen. Base 10 values are
// padded with spaces; base 8 and 16 values with zeroes.
func fmtInt(w io.Writer, v interface{}, base uint64, padLen int) {
	var (
		uval     uint64
		negative bool
		padCh    = byte('0')
		n        int
	)

	switch val := v.(type) {
	case uint8:
		uval = uint64(val)
	case uint16:
		uval = uint64(val)
	case uint32:
		uval = uint64(val)
	case uint64:
		uval = val
	case uint:
		uval = uint64(val)
	case uintptr:
		uval = uint64(val)
	case int8:
		uval, negative = absInt(int64(val))
	case int16:
		uval, negative = absInt(int64(val))
	case int32:
		uval, negative = absInt(int64(val))
	case int64:
		uval, negative = absInt(val)
	case int:
		uval, negative = absInt(int64(val))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if base == 10 {
		padCh = ' '
	}

	if padLen >= maxBufSize {
		padLen = maxBufSize - 1
	}

	// Digits are emitted in reverse order and flipped at the end
	for {
		digit := byte(uval % base)
		if digit < 10 {
			numFmtBuf[n] = '0' + digit
		} else {
			numFmtBuf[n] = 'a' + digit - 10
		}
		n++

		if uval /= base; uval == 0 || n == maxBufSize {
			break
		}
	}

	// Space padding goes before the sign; zero padding after it
	if negative && padCh == '0' {
		for ; n < padLen-1; n++ {
			numFmtBuf[n] = padCh
		}
		numFmtBuf[n] = '-'
		n++
	} else {
		if negative {
			numFmtBuf[n] = '-'
			n++
		}
		for ; n < padLen; n++ {
			numFmtBuf[n] = padCh
		}
	}

	for left, right := 0, n-1; left < right; left, right = left+1, right-1 {
		numFmtBuf[left], numFmtBuf[right] = numFmtBuf[right], numFmtBuf[left]
	}

	doWrite(w, numFmtBuf[:n])
}

func absInt(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func writeByte(w io.Writer, ch byte) {
	singleByte[0] = ch
	doWrite(w, singleByte)
}

// doWrite is a proxy that uses the runtime.noescape hack to hide p from the
// compiler's escape analysis. Without it, p is flagged as escaping through
// the io.Writer call and every Printf invocation triggers a heap allocation
// which crashes the kernel before the Go allocator is initialized.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
