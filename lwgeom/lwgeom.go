//go:build cgo && !windows

package lwgeom

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdarg.h>
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>

#define LWGO_NOTICE 0
#define LWGO_ERROR  1

extern void goLwgeomReport(int level, char *msg);

static void lwgo_report(int level, const char *fmt, va_list ap) {
	va_list cp;
	va_copy(cp, ap);
	int n = vsnprintf(NULL, 0, fmt, cp);
	va_end(cp);
	if (n < 0) {
		goLwgeomReport(level, (char *)fmt);
		return;
	}
	char *msg = malloc((size_t)n + 1);
	if (msg == NULL) {
		goLwgeomReport(level, (char *)fmt);
		return;
	}
	vsnprintf(msg, (size_t)n + 1, fmt, ap);
	goLwgeomReport(level, msg);
	free(msg);
}

static void lwgo_error_reporter(const char *fmt, va_list ap) {
	lwgo_report(LWGO_ERROR, fmt, ap);
}

static void lwgo_notice_reporter(const char *fmt, va_list ap) {
	lwgo_report(LWGO_NOTICE, fmt, ap);
}

typedef void (*lwgo_reporter)(const char *, va_list);
typedef void (*lwgo_set_handlers_fn)(void *, void *, void *, lwgo_reporter, lwgo_reporter);
typedef void *(*lwgo_from_wkb_fn)(const uint8_t *, size_t, char);
typedef uint8_t *(*lwgo_to_wkb_fn)(const void *, uint8_t, size_t *);
typedef void (*lwgo_free_fn)(void *);
typedef void *(*lwgo_transform_fn)(void *);

// keep the allocators, replace both reporters
static void lwgo_install_reporters(void *fn) {
	((lwgo_set_handlers_fn)fn)(NULL, NULL, NULL, lwgo_error_reporter, lwgo_notice_reporter);
}

static void *lwgo_from_wkb(void *fn, const uint8_t *wkb, size_t size, char check) {
	return ((lwgo_from_wkb_fn)fn)(wkb, size, check);
}

static uint8_t *lwgo_to_wkb(void *fn, const void *geom, uint8_t variant, size_t *size) {
	return ((lwgo_to_wkb_fn)fn)(geom, variant, size);
}

static void lwgo_free(void *fn, void *ptr) {
	((lwgo_free_fn)fn)(ptr);
}

static void *lwgo_transform(void *fn, void *geom) {
	return ((lwgo_transform_fn)fn)(geom);
}
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"

	"go.uber.org/zap"

	"github.com/bsaid97/go-lwgeom-fixer/native"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
)

// Binding is a loaded liblwgeom with its functions resolved and the
// reporters installed. It implements native.Library.
type Binding struct {
	path string
	sink proclog.Sink

	dl unsafe.Pointer

	fromWKB     unsafe.Pointer
	toWKB       unsafe.Pointer
	free        unsafe.Pointer
	freeRaw     unsafe.Pointer
	makeValid   unsafe.Pointer
	buildArea   unsafe.Pointer
	setHandlers unsafe.Pointer
}

var _ native.Library = (*Binding)(nil)

// Open loads the library at path, resolves every required function and
// redirects its error and notice reporters into sink. Any failure here is a
// configuration error: nothing has been processed yet.
func Open(path string, sink proclog.Sink) (*Binding, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	if sink == nil {
		sink = proclog.Discard
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	// dlerror state and the reporter registration are process wide
	callMu.Lock()
	defer callMu.Unlock()

	C.dlerror()
	dl := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if dl == nil {
		return nil, fmt.Errorf("%w: %s", ErrLoad, dlerror())
	}

	b := &Binding{path: path, sink: sink, dl: dl}
	for _, s := range b.symbols() {
		p, err := b.lookup(s.name)
		if err != nil {
			C.dlclose(dl)
			return nil, err
		}
		*s.ptr = p
	}

	C.lwgo_install_reporters(b.setHandlers)
	Logger().Debug("liblwgeom loaded", zap.String("path", path))
	return b, nil
}

type symbol struct {
	name string
	ptr  *unsafe.Pointer
}

func (b *Binding) symbols() []symbol {
	return []symbol{
		{native.SymbolFromWKB, &b.fromWKB},
		{native.SymbolToWKB, &b.toWKB},
		{native.SymbolFree, &b.free},
		{native.SymbolFreeRaw, &b.freeRaw},
		{native.SymbolMakeValid, &b.makeValid},
		{native.SymbolBuildArea, &b.buildArea},
		{native.SymbolSetHandlers, &b.setHandlers},
	}
}

func (b *Binding) lookup(name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	C.dlerror()
	p := C.dlsym(b.dl, cname)
	if p == nil {
		return nil, fmt.Errorf("%w: %s in %s: %s", ErrSymbol, name, b.path, dlerror())
	}
	return p, nil
}

func dlerror() string {
	msg := C.dlerror()
	if msg == nil {
		return "unknown dynamic loader error"
	}
	return C.GoString(msg)
}

// Name returns the path the library was loaded from.
func (b *Binding) Name() string {
	return b.path
}

func (b *Binding) Label() string { return Label }

// Lock acquires the process wide liblwgeom call lock and routes native
// diagnostics to this binding's sink until Unlock.
func (b *Binding) Lock() {
	callMu.Lock()
	setActive(b.sink)
}

// Unlock releases the call lock.
func (b *Binding) Unlock() {
	setActive(nil)
	callMu.Unlock()
}

// FromWKB parses wkb into an LWGEOM. The bytes are copied into C memory for
// the duration of the call.
func (b *Binding) FromWKB(wkb []byte, check native.ParserCheck) native.Handle {
	if b.dl == nil || len(wkb) == 0 {
		return nil
	}
	buf := C.CBytes(wkb)
	defer C.free(buf)

	p := C.lwgo_from_wkb(b.fromWKB, (*C.uint8_t)(buf), C.size_t(len(wkb)), C.char(check))
	return native.Handle(p)
}

// ToWKB serializes h. The returned buffer is owned by liblwgeom and must be
// released with FreeRaw.
func (b *Binding) ToWKB(h native.Handle, variant native.WKBVariant) native.Buffer {
	if b.dl == nil || h == nil {
		return native.Buffer{}
	}
	var size C.size_t
	p := C.lwgo_to_wkb(b.toWKB, unsafe.Pointer(h), C.uint8_t(variant), &size)
	return native.Buffer{Data: unsafe.Pointer(p), Len: int(size)}
}

// Free releases an LWGEOM with lwgeom_free.
func (b *Binding) Free(h native.Handle) {
	if b.dl == nil || h == nil {
		return
	}
	C.lwgo_free(b.free, unsafe.Pointer(h))
}

// FreeRaw releases a serializer buffer with lwfree.
func (b *Binding) FreeRaw(buf native.Buffer) {
	if b.dl == nil || buf.Data == nil {
		return
	}
	C.lwgo_free(b.freeRaw, buf.Data)
}

// MakeValid calls lwgeom_make_valid. The input handle stays owned by the
// caller.
func (b *Binding) MakeValid(h native.Handle) native.Handle {
	return b.transform(b.makeValid, h)
}

// BuildArea calls lwgeom_buildarea.
func (b *Binding) BuildArea(h native.Handle) native.Handle {
	return b.transform(b.buildArea, h)
}

func (b *Binding) transform(fn unsafe.Pointer, h native.Handle) native.Handle {
	if b.dl == nil || fn == nil || h == nil {
		return nil
	}
	return native.Handle(C.lwgo_transform(fn, unsafe.Pointer(h)))
}

// Close unloads the library. The resolved functions are forgotten first, so
// a runner still holding the binding gets a parse failure instead of a call
// into unmapped code.
func (b *Binding) Close() error {
	callMu.Lock()
	defer callMu.Unlock()

	if b.dl == nil {
		return nil
	}
	dl := b.dl
	b.dl = nil
	for _, s := range b.symbols() {
		*s.ptr = nil
	}
	if C.dlclose(dl) != 0 {
		return fmt.Errorf("lwgeom: dlclose %s: %s", b.path, dlerror())
	}
	return nil
}
