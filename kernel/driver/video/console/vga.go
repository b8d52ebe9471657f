// Package console implements the VGA text-mode console used for kernel
// diagnostics.
package console

import (
	"domos/kernel/cpu"
	"domos/kernel/mem"
	"io"
	"reflect"
	"unsafe"
)

// Color is one of the 16 text-mode palette entries.
type Color uint8

// The text-mode palette.
const (
	Black Color = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGrey
	DarkGrey
	LightBlue
	LightGreen
	LightCyan
	LightRed
	LightMagenta
	LightBrown
	White
)

const (
	// DefaultFramebufferAddr is the physical address of the color text
	// buffer when the boot loader does not report one.
	DefaultFramebufferAddr = uintptr(0xb8000)

	// DefaultColumns and DefaultRows describe the 80x25 text mode.
	DefaultColumns = 80
	DefaultRows    = 25

	crtcAddrPort = 0x3d4
	crtcDataPort = 0x3d5

	crtcCursorLocationHigh = 0x0e
	crtcCursorLocationLow  = 0x0f

	clearChar = byte(' ')
)

var (
	// portWriteByteFn is mocked by tests and is automatically inlined by
	// the compiler.
	portWriteByteFn = cpu.PortWriteByte
)

// colorWriter writes to its console using a fixed color pair.
type colorWriter struct {
	cons   *Vga
	fg, bg Color
}

// Write implements io.Writer.
func (w *colorWriter) Write(p []byte) (int, error) {
	for _, ch := range p {
		w.cons.putChar(ch, w.fg, w.bg)
	}
	w.cons.updateCursor()
	return len(p), nil
}

// Vga is a text-mode console. Each character cell in the framebuffer uses two
// bytes: the ASCII code and an attribute byte holding the background (high
// nibble) and foreground (low nibble) colors.
type Vga struct {
	width, height uint32

	fbAddr uintptr
	fb     []uint16

	curX, curY uint32

	out colorWriter
	err colorWriter
	ok  colorWriter
}

// Init sets up the console to use the framebuffer located at fbAddr. While
// paging is disabled fbAddr is a physical address.
func (cons *Vga) Init(columns, rows uint32, fbAddr uintptr) {
	cons.width = columns
	cons.height = rows
	cons.curX, cons.curY = 0, 0

	cons.out = colorWriter{cons: cons, fg: White, bg: Black}
	cons.err = colorWriter{cons: cons, fg: LightRed, bg: Black}
	cons.ok = colorWriter{cons: cons, fg: LightGreen, bg: Black}

	cons.Remap(fbAddr)
}

// Framebuffer returns the address and size of the framebuffer that the console
// currently writes to.
func (cons *Vga) Framebuffer() (uintptr, mem.Size) {
	return cons.fbAddr, mem.Size(cons.width * cons.height * 2)
}

// Remap points the console at a new framebuffer address while keeping the
// cursor position. It is used once paging is enabled and the framebuffer is
// reached through a verified virtual mapping.
func (cons *Vga) Remap(fbAddr uintptr) {
	cons.fbAddr = fbAddr
	cons.fb = *(*[]uint16)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(cons.width * cons.height),
		Cap:  int(cons.width * cons.height),
		Data: fbAddr,
	}))
}

// Write implements io.Writer using the console's default colors.
func (cons *Vga) Write(p []byte) (int, error) {
	return cons.out.Write(p)
}

// ErrorWriter returns a writer that renders text in light red.
func (cons *Vga) ErrorWriter() io.Writer {
	return &cons.err
}

// SuccessWriter returns a writer that renders text in light green.
func (cons *Vga) SuccessWriter() io.Writer {
	return &cons.ok
}

// Clear fills the screen with blanks using bg as the background color and
// moves the cursor to the top-left corner.
func (cons *Vga) Clear(bg Color) {
	clr := cellValue(clearChar, White, bg)
	for i := range cons.fb {
		cons.fb[i] = clr
	}

	cons.curX, cons.curY = 0, 0
	cons.updateCursor()
}

func (cons *Vga) putChar(ch byte, fg, bg Color) {
	switch ch {
	case '\n':
		cons.newLine(fg, bg)
	case '\b':
		// Erase the previous cell; backspacing from column 0 moves to the
		// end of the previous row.
		switch {
		case cons.curX > 0:
			cons.curX--
		case cons.curY > 0:
			cons.curY--
			cons.curX = cons.width - 1
		default:
			return
		}
		cons.fb[cons.curY*cons.width+cons.curX] = cellValue(clearChar, fg, bg)
	default:
		cons.fb[cons.curY*cons.width+cons.curX] = cellValue(ch, fg, bg)
		if cons.curX++; cons.curX == cons.width {
			cons.newLine(fg, bg)
		}
	}
}

func (cons *Vga) newLine(fg, bg Color) {
	cons.curX = 0
	if cons.curY+1 < cons.height {
		cons.curY++
		return
	}

	cons.scrollUp(bg)
}

// scrollUp moves every row up by one and blanks the last row.
func (cons *Vga) scrollUp(bg Color) {
	lastRow := (cons.height - 1) * cons.width
	copy(cons.fb[:lastRow], cons.fb[cons.width:])

	clr := cellValue(clearChar, White, bg)
	for i := lastRow; i < lastRow+cons.width; i++ {
		cons.fb[i] = clr
	}
}

// updateCursor moves the hardware cursor to the current position.
func (cons *Vga) updateCursor() {
	pos := uint16(cons.curY*cons.width + cons.curX)

	portWriteByteFn(crtcAddrPort, crtcCursorLocationLow)
	portWriteByteFn(crtcDataPort, uint8(pos&0xff))
	portWriteByteFn(crtcAddrPort, crtcCursorLocationHigh)
	portWriteByteFn(crtcDataPort, uint8(pos>>8))
}

func cellValue(ch byte, fg, bg Color) uint16 {
	return uint16(bg&0xf)<<12 | uint16(fg&0xf)<<8 | uint16(ch)
}
