// Package codec converts host geometries to and from Well-Known Binary, the
// interchange format understood by the native geometry libraries.
//
// The codec performs no semantic validation: malformed bytes are only
// rejected by whoever consumes them. Nil, empty and unsupported geometries
// are refused up front so no corrupt buffer ever reaches a native call.
package codec

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Common errors returned by this package.
var (
	ErrNilGeometry     = errors.New("codec: nil geometry")
	ErrEmptyGeometry   = errors.New("codec: empty geometry")
	ErrUnsupportedType = errors.New("codec: unsupported geometry type")
	ErrInvalidData     = errors.New("codec: invalid data")
)

// Geometry is a host geometry that can cross the native boundary. SetWKB
// must leave the geometry untouched when it returns an error.
type Geometry interface {
	WKB() ([]byte, error)
	SetWKB(wkb []byte) error
}

// Encode marshals g as little-endian WKB. Geometries carrying an SRID are
// written as EWKB so the spatial reference survives the trip.
func Encode(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, ErrNilGeometry
	}
	switch g.(type) {
	case *geom.Point, *geom.LineString, *geom.Polygon,
		*geom.MultiPoint, *geom.MultiLineString, *geom.MultiPolygon,
		*geom.GeometryCollection:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, g)
	}
	if g.Empty() {
		return nil, ErrEmptyGeometry
	}

	if g.SRID() != 0 {
		return ewkb.Marshal(g, ewkb.NDR)
	}
	return wkb.Marshal(g, wkb.NDR)
}

// Decode unmarshals ISO WKB or EWKB.
func Decode(data []byte) (geom.T, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no bytes", ErrInvalidData)
	}
	g, err := ewkb.Unmarshal(data)
	if err == nil {
		return g, nil
	}
	// ewkb does not know the ISO Z/M type offsets
	g, isoErr := wkb.Unmarshal(data)
	if isoErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, isoErr)
	}
	return g, nil
}

// Geom adapts a go-geom geometry to Geometry.
type Geom struct {
	T geom.T
}

// NewGeom wraps t.
func NewGeom(t geom.T) *Geom {
	return &Geom{T: t}
}

// WKB implements Geometry.
func (g *Geom) WKB() ([]byte, error) {
	if g == nil {
		return nil, ErrNilGeometry
	}
	return Encode(g.T)
}

// SetWKB implements Geometry. The current SRID is kept when the incoming
// bytes do not carry one.
func (g *Geom) SetWKB(data []byte) error {
	t, err := Decode(data)
	if err != nil {
		return err
	}
	if t.SRID() == 0 && g.T != nil && g.T.SRID() != 0 {
		t = withSRID(t, g.T.SRID())
	}
	g.T = t
	return nil
}

func withSRID(t geom.T, srid int) geom.T {
	switch g := t.(type) {
	case *geom.Point:
		return g.SetSRID(srid)
	case *geom.LineString:
		return g.SetSRID(srid)
	case *geom.Polygon:
		return g.SetSRID(srid)
	case *geom.MultiPoint:
		return g.SetSRID(srid)
	case *geom.MultiLineString:
		return g.SetSRID(srid)
	case *geom.MultiPolygon:
		return g.SetSRID(srid)
	case *geom.GeometryCollection:
		return g.SetSRID(srid)
	default:
		return t
	}
}
