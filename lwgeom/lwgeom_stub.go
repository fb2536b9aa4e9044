//go:build !cgo || windows

package lwgeom

import (
	"fmt"
	"sync"

	"github.com/bsaid97/go-lwgeom-fixer/native"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
)

// Binding is unavailable without cgo. Open always fails, so a provider built
// this way reports a configuration error before any feature is touched.
type Binding struct {
	sync.Mutex
	path string
}

var _ native.Library = (*Binding)(nil)

// Open fails: the dynamic loader needs cgo.
func Open(path string, sink proclog.Sink) (*Binding, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	return nil, fmt.Errorf("%w: %w", ErrLoad, ErrUnsupported)
}

func (b *Binding) Name() string { return b.path }
func (b *Binding) Label() string { return Label }
func (b *Binding) FromWKB([]byte, native.ParserCheck) native.Handle { return nil }
func (b *Binding) ToWKB(native.Handle, native.WKBVariant) native.Buffer { return native.Buffer{} }
func (b *Binding) Free(native.Handle) {}
func (b *Binding) FreeRaw(native.Buffer) {}
func (b *Binding) MakeValid(native.Handle) native.Handle { return nil }
func (b *Binding) BuildArea(native.Handle) native.Handle { return nil }
func (b *Binding) Close() error { return nil }
