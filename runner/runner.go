// Package runner moves a host geometry through one native operation and
// back: encode to WKB, parse into a native handle, transform, serialize,
// decode. It is the single place that owns native handles and buffers, and
// it releases each of them exactly once whatever happens in between.
package runner

import (
	"errors"
	"fmt"

	"github.com/bsaid97/go-lwgeom-fixer/codec"
	"github.com/bsaid97/go-lwgeom-fixer/native"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
)

// Common errors returned by this package.
var (
	ErrUnknownOperation = errors.New("runner: unknown operation")
	ErrNoLibrary        = errors.New("runner: no native library")
	ErrEncode           = errors.New("runner: cannot encode geometry")
	ErrParse            = errors.New("runner: native parse failed")
	ErrTransform        = errors.New("runner: native transform produced no geometry")
	ErrSerialize        = errors.New("runner: native serialize failed")
	ErrDecode           = errors.New("runner: cannot decode native result")
	ErrPanic            = errors.New("runner: unexpected failure")
)

// Runner applies one operation through one native library.
type Runner struct {
	lib   native.Library
	op    Operation
	log   proclog.Sink
	label string
}

// New returns a runner for op on lib. Failures are appended to log.
func New(lib native.Library, op Operation, log proclog.Sink) (*Runner, error) {
	if lib == nil {
		return nil, ErrNoLibrary
	}
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOperation, int(op))
	}
	if log == nil {
		log = proclog.Discard
	}
	return &Runner{
		lib:   lib,
		op:    op,
		log:   log,
		label: lib.Label(),
	}, nil
}

// Operation returns the operation the runner applies.
func (r *Runner) Operation() Operation {
	return r.op
}

// Run transforms g in place. On any error g is left as it was.
//
// The library is locked for the whole round trip, so at most one call is in
// flight per library whatever the number of runners sharing it.
func (r *Runner) Run(g codec.Geometry) (err error) {
	if g == nil {
		r.failf("cannot encode the geometry to WKB: %v", codec.ErrNilGeometry)
		return fmt.Errorf("%w: %w", ErrEncode, codec.ErrNilGeometry)
	}
	in, err := g.WKB()
	if err != nil {
		r.failf("cannot encode the geometry to WKB: %v", err)
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	r.lib.Lock()
	defer r.lib.Unlock()

	defer func() {
		if p := recover(); p != nil {
			r.failf("%s %s raised: %v", r.label, r.op.Symbol(), p)
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()

	out, err := r.roundTrip(in)
	if err != nil {
		return err
	}

	if err := g.SetWKB(out); err != nil {
		r.failf("cannot update the geometry from WKB: %v", err)
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

func (r *Runner) roundTrip(wkb []byte) ([]byte, error) {
	// validation is left to the host geometry, the parser is only a bridge
	h := r.lib.FromWKB(wkb, native.CheckNone)
	if h == nil {
		r.failf("%s wasn't able to parse the WKB!", r.label)
		return nil, ErrParse
	}

	out, err := r.transform(h)
	if err != nil {
		return nil, err
	}
	return r.serialize(out)
}

// transform consumes h.
func (r *Runner) transform(h native.Handle) (native.Handle, error) {
	defer r.lib.Free(h)

	out := r.op.apply(r.lib, h)
	if out == nil {
		r.failf("%s %s", r.label, r.op.Failure())
		return nil, ErrTransform
	}
	return out, nil
}

// serialize consumes h and returns the WKB in Go memory.
func (r *Runner) serialize(h native.Handle) ([]byte, error) {
	buf := r.toWKB(h)
	defer r.lib.FreeRaw(buf)

	if buf.Nil() {
		r.failf("%s wasn't able to convert the geometry back to WKB!", r.label)
		return nil, ErrSerialize
	}
	return buf.Copy(), nil
}

func (r *Runner) toWKB(h native.Handle) native.Buffer {
	defer r.lib.Free(h)
	return r.lib.ToWKB(h, native.WKBISO)
}

func (r *Runner) failf(format string, args ...any) {
	r.log.Append(proclog.Error, "FAILURE: "+fmt.Sprintf(format, args...))
}
