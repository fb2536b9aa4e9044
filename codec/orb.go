package codec

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Orb adapts an orb geometry to Geometry. orb is two dimensional, so only XY
// WKB can be decoded back into it.
type Orb struct {
	G orb.Geometry
}

// NewOrb wraps g.
func NewOrb(g orb.Geometry) *Orb {
	return &Orb{G: g}
}

// WKB implements Geometry.
func (o *Orb) WKB() ([]byte, error) {
	if o == nil || o.G == nil {
		return nil, ErrNilGeometry
	}
	if orbEmpty(o.G) {
		return nil, ErrEmptyGeometry
	}
	data, err := wkb.Marshal(o.G, wkb.DefaultByteOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	return data, nil
}

// SetWKB implements Geometry.
func (o *Orb) SetWKB(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: no bytes", ErrInvalidData)
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	o.G = g
	return nil
}

func orbEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Point, orb.Bound:
		return false
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		for _, child := range v {
			if !orbEmpty(child) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
