package processing

import (
	"github.com/bsaid97/go-lwgeom-fixer/codec"
)

// Feature is one record of a layer. Geometry is modified in place by the
// driver; Properties are passed through untouched.
type Feature struct {
	ID         int64
	Geometry   codec.Geometry
	Properties map[string]any
}

// Layer is an input layer.
type Layer interface {
	// Source names the layer in failure messages, e.g. its file path.
	Source() string
	GeometryType() GeometryType
	Features() []*Feature
	// Selection returns the ids of the selected features. An empty
	// selection means every feature is processed.
	Selection() []int64
}

// Sink receives every processed feature, modified or not.
type Sink interface {
	Write(f *Feature) error
}

// MemoryLayer is a Layer held entirely in memory.
type MemoryLayer struct {
	Name     string
	Type     GeometryType
	Items    []*Feature
	Selected []int64
}

var _ Layer = (*MemoryLayer)(nil)

func (l *MemoryLayer) Source() string             { return l.Name }
func (l *MemoryLayer) GeometryType() GeometryType { return l.Type }
func (l *MemoryLayer) Features() []*Feature       { return l.Items }
func (l *MemoryLayer) Selection() []int64         { return l.Selected }

// Select replaces the selection.
func (l *MemoryLayer) Select(ids ...int64) {
	l.Selected = ids
}

// MemorySink collects written features.
type MemorySink struct {
	Type     GeometryType
	Features []*Feature
}

func (s *MemorySink) Write(f *Feature) error {
	s.Features = append(s.Features, f)
	return nil
}
