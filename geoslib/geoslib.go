// Package geoslib implements native.Library on top of GEOS through go-geos.
// It is the fallback backend when no liblwgeom is available: GEOS provides
// the same make-valid and build-area algorithms liblwgeom delegates to.
package geoslib

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/twpayne/go-geos"

	"github.com/bsaid97/go-lwgeom-fixer/native"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
)

// Name is what Library.Name reports.
const Name = "geos"

// Library keeps every geometry and buffer it hands out until the caller
// releases it, mirroring the ownership rules of a C library.
type Library struct {
	sync.Mutex

	ctx  *geos.Context
	sink proclog.Sink

	geoms   map[native.Handle]*geos.Geom
	buffers map[unsafe.Pointer][]byte
}

var _ native.Library = (*Library)(nil)

// New returns a library with its own GEOS context. GEOS errors are appended
// to sink.
func New(sink proclog.Sink) *Library {
	if sink == nil {
		sink = proclog.Discard
	}
	return &Library{
		ctx:     geos.NewContext(),
		sink:    sink,
		geoms:   make(map[native.Handle]*geos.Geom),
		buffers: make(map[unsafe.Pointer][]byte),
	}
}

func (l *Library) Name() string { return Name }
func (l *Library) Label() string { return "GEOS" }

func (l *Library) keep(g *geos.Geom) native.Handle {
	if g == nil {
		return nil
	}
	h := native.Handle(unsafe.Pointer(g))
	l.geoms[h] = g
	return h
}

// guard turns a go-geos panic into a reported error.
func (l *Library) guard(what string) {
	if p := recover(); p != nil {
		l.sink.Append(proclog.Error, fmt.Sprintf("FAILURE: GEOS error is:\n%s: %v", what, p))
	}
}

func (l *Library) FromWKB(wkb []byte, _ native.ParserCheck) (h native.Handle) {
	defer l.guard("parse")
	g, err := l.ctx.NewGeomFromWKB(wkb)
	if err != nil {
		l.sink.Append(proclog.Warning, "GEOS notice: "+err.Error())
		return nil
	}
	return l.keep(g)
}

func (l *Library) ToWKB(h native.Handle, _ native.WKBVariant) (buf native.Buffer) {
	defer l.guard("serialize")
	g, ok := l.geoms[h]
	if !ok {
		return native.Buffer{}
	}
	data := g.ToWKB()
	if len(data) == 0 {
		return native.Buffer{}
	}
	p := unsafe.Pointer(&data[0])
	l.buffers[p] = data
	return native.Buffer{Data: p, Len: len(data)}
}

func (l *Library) Free(h native.Handle) {
	g, ok := l.geoms[h]
	if !ok {
		return
	}
	delete(l.geoms, h)
	g.Destroy()
}

func (l *Library) FreeRaw(b native.Buffer) {
	delete(l.buffers, b.Data)
}

// MakeValid keeps collapsed parts out and rebuilds polygons from their
// linework, the way PostGIS ST_MakeValid does by default.
func (l *Library) MakeValid(h native.Handle) (out native.Handle) {
	defer l.guard("make valid")
	g, ok := l.geoms[h]
	if !ok {
		return nil
	}
	return l.keep(g.MakeValidWithParams(geos.MakeValidLinework, geos.MakeValidDiscardCollapsed))
}

func (l *Library) BuildArea(h native.Handle) (out native.Handle) {
	defer l.guard("build area")
	g, ok := l.geoms[h]
	if !ok {
		return nil
	}
	area := g.BuildArea()
	if area != nil && area.IsEmpty() {
		area.Destroy()
		return nil
	}
	return l.keep(area)
}

// Close destroys whatever the caller leaked.
func (l *Library) Close() error {
	l.Lock()
	defer l.Unlock()
	for h, g := range l.geoms {
		g.Destroy()
		delete(l.geoms, h)
	}
	clear(l.buffers)
	return nil
}

// Outstanding returns the number of live geometries and buffers.
func (l *Library) Outstanding() int {
	return len(l.geoms) + len(l.buffers)
}
