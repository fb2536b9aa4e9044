// Package native describes the boundary to a native geometry library: opaque
// geometry handles, foreign-owned WKB buffers and the small set of functions
// the processing algorithms need.
package native

import (
	"sync"
	"unsafe"
)

// Handle is an opaque reference to a geometry owned by a native library.
// A nil Handle means the native call produced no geometry.
type Handle unsafe.Pointer

// Buffer is a byte buffer allocated by a native library. It must be released
// with the allocating library's FreeRaw, never with Go or libc free.
type Buffer struct {
	Data unsafe.Pointer
	Len  int
}

// Nil reports whether the buffer holds no data.
func (b Buffer) Nil() bool {
	return b.Data == nil || b.Len <= 0
}

// Copy returns the buffer contents in Go owned memory.
func (b Buffer) Copy() []byte {
	if b.Nil() {
		return nil
	}
	out := make([]byte, b.Len)
	copy(out, unsafe.Slice((*byte)(b.Data), b.Len))
	return out
}

// ParserCheck selects how much validation the native WKB parser performs.
type ParserCheck byte

// CheckNone disables parser validation; the parser is only a format bridge.
const CheckNone ParserCheck = 0

// WKBVariant is the output flag passed to the native serializer.
type WKBVariant uint8

// WKBISO selects ISO WKB, which carries Z and M in the type code.
const WKBISO WKBVariant = 0x01

// Names of the liblwgeom functions the operations call.
const (
	SymbolFromWKB     = "lwgeom_from_wkb"
	SymbolToWKB       = "lwgeom_to_wkb"
	SymbolFree        = "lwgeom_free"
	SymbolFreeRaw     = "lwfree"
	SymbolMakeValid   = "lwgeom_make_valid"
	SymbolBuildArea   = "lwgeom_buildarea"
	SymbolSetHandlers = "lwgeom_set_handlers"
)

// Library is a loaded native geometry library.
//
// Implementations are not safe for concurrent use: callers hold the Locker
// for the whole of a parse/transform/serialize round trip.
type Library interface {
	sync.Locker

	// Name identifies the library, e.g. its filesystem path.
	Name() string
	// Label is the short name used in log messages, e.g. "liblwgeom".
	Label() string

	FromWKB(wkb []byte, check ParserCheck) Handle
	ToWKB(h Handle, variant WKBVariant) Buffer
	Free(h Handle)
	FreeRaw(b Buffer)

	MakeValid(h Handle) Handle
	BuildArea(h Handle) Handle

	// Close unloads the library. Handles obtained from it become invalid.
	Close() error
}
