// Package nativetest provides an in-process native.Library that counts every
// handle and buffer it hands out, for tests of code that owns foreign
// memory.
package nativetest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/twpayne/go-geom"

	"github.com/bsaid97/go-lwgeom-fixer/codec"
	"github.com/bsaid97/go-lwgeom-fixer/native"
)

type handle struct {
	g geom.T
}

// Library is a fake native library backed by go-geom. MakeValid returns a
// copy of its input; BuildArea turns closed linestrings into polygons and
// fails for anything else.
type Library struct {
	sync.Mutex

	// FailParse makes FromWKB return nil.
	FailParse bool
	// FailSerialize makes ToWKB return an empty buffer.
	FailSerialize bool
	// PanicIn panics inside "parse", "transform" or "serialize".
	PanicIn string
	// Notify, when set, receives a message from every transform.
	Notify func(msg string)
	// Delay is slept inside every transform.
	Delay time.Duration

	handles map[native.Handle]*handle
	buffers map[unsafe.Pointer][]byte

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	Parses      int
	Transforms  int
	Serializes  int
	Frees       int
	RawFrees    int
	DoubleFrees int
}

var _ native.Library = (*Library)(nil)

// New returns an empty fake library.
func New() *Library {
	return &Library{
		handles: make(map[native.Handle]*handle),
		buffers: make(map[unsafe.Pointer][]byte),
	}
}

// Outstanding returns the number of handles and buffers not yet released.
func (l *Library) Outstanding() int {
	return len(l.handles) + len(l.buffers)
}

func (l *Library) Name() string { return "/fake/libfake.so" }
func (l *Library) Label() string { return "libfake" }

// MaxInFlight returns the largest number of calls that were ever inside the
// library at the same time.
func (l *Library) MaxInFlight() int {
	return int(l.maxInFlight.Load())
}

// enter counts a call into the library; the returned func ends it.
func (l *Library) enter() func() {
	n := l.inFlight.Add(1)
	for {
		m := l.maxInFlight.Load()
		if n <= m || l.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { l.inFlight.Add(-1) }
}

func (l *Library) alloc(g geom.T) native.Handle {
	h := &handle{g: g}
	p := native.Handle(unsafe.Pointer(h))
	l.handles[p] = h
	return p
}

func (l *Library) FromWKB(wkb []byte, check native.ParserCheck) native.Handle {
	defer l.enter()()
	l.Parses++
	if l.PanicIn == "parse" {
		panic("fake parse panic")
	}
	if l.FailParse {
		return nil
	}
	g, err := codec.Decode(wkb)
	if err != nil {
		return nil
	}
	return l.alloc(g)
}

func (l *Library) ToWKB(h native.Handle, variant native.WKBVariant) native.Buffer {
	defer l.enter()()
	l.Serializes++
	if l.PanicIn == "serialize" {
		panic("fake serialize panic")
	}
	src, ok := l.handles[h]
	if !ok || l.FailSerialize {
		return native.Buffer{}
	}
	data, err := codec.Encode(src.g)
	if err != nil {
		return native.Buffer{}
	}
	p := unsafe.Pointer(&data[0])
	l.buffers[p] = data
	return native.Buffer{Data: p, Len: len(data)}
}

func (l *Library) Free(h native.Handle) {
	defer l.enter()()
	if h == nil {
		return
	}
	if _, ok := l.handles[h]; !ok {
		l.DoubleFrees++
		return
	}
	delete(l.handles, h)
	l.Frees++
}

func (l *Library) FreeRaw(b native.Buffer) {
	defer l.enter()()
	if b.Data == nil {
		return
	}
	if _, ok := l.buffers[b.Data]; !ok {
		l.DoubleFrees++
		return
	}
	delete(l.buffers, b.Data)
	l.RawFrees++
}

func (l *Library) MakeValid(h native.Handle) native.Handle {
	src := l.transform(h, "make valid")
	if src == nil {
		return nil
	}
	return l.alloc(src.g)
}

func (l *Library) BuildArea(h native.Handle) native.Handle {
	src := l.transform(h, "build area")
	if src == nil {
		return nil
	}
	ls, ok := src.g.(*geom.LineString)
	if !ok || ls.NumCoords() < 4 || !ls.Coord(0).Equal(ls.Layout(), ls.Coord(ls.NumCoords()-1)) {
		return nil
	}
	poly, err := geom.NewPolygon(ls.Layout()).SetCoords([][]geom.Coord{ls.Coords()})
	if err != nil {
		return nil
	}
	return l.alloc(poly.SetSRID(ls.SRID()))
}

func (l *Library) transform(h native.Handle, what string) *handle {
	defer l.enter()()
	l.Transforms++
	if l.Delay > 0 {
		time.Sleep(l.Delay)
	}
	if l.PanicIn == "transform" {
		panic("fake transform panic")
	}
	src, ok := l.handles[h]
	if !ok {
		return nil
	}
	if l.Notify != nil {
		l.Notify(fmt.Sprintf("%s on %T", what, src.g))
	}
	return src
}

func (l *Library) Close() error { return nil }
