package processing

import (
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/bsaid97/go-lwgeom-fixer/runner"
)

// Kind is the geometry type of a layer, without dimensionality.
type Kind int

const (
	KindUnknown Kind = iota
	KindPoint
	KindLineString
	KindPolygon
	KindMultiPoint
	KindMultiLineString
	KindMultiPolygon
	KindGeometryCollection
)

var kindNames = map[Kind]string{
	KindUnknown:            "Unknown",
	KindPoint:              "Point",
	KindLineString:         "LineString",
	KindPolygon:            "Polygon",
	KindMultiPoint:         "MultiPoint",
	KindMultiLineString:    "MultiLineString",
	KindMultiPolygon:       "MultiPolygon",
	KindGeometryCollection: "GeometryCollection",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Multi reports whether k is a collection kind.
func (k Kind) Multi() bool {
	switch k {
	case KindMultiPoint, KindMultiLineString, KindMultiPolygon, KindGeometryCollection:
		return true
	}
	return false
}

// GeometryType is the declared geometry type of a layer.
type GeometryType struct {
	Kind   Kind
	Layout geom.Layout
}

func (t GeometryType) String() string {
	switch t.Layout {
	case geom.XYZ:
		return t.Kind.String() + "Z"
	case geom.XYM:
		return t.Kind.String() + "M"
	case geom.XYZM:
		return t.Kind.String() + "ZM"
	}
	return t.Kind.String()
}

// TypeOf returns the geometry type of g.
func TypeOf(g geom.T) GeometryType {
	if g == nil {
		return GeometryType{}
	}
	var k Kind
	switch g.(type) {
	case *geom.Point:
		k = KindPoint
	case *geom.LineString:
		k = KindLineString
	case *geom.Polygon:
		k = KindPolygon
	case *geom.MultiPoint:
		k = KindMultiPoint
	case *geom.MultiLineString:
		k = KindMultiLineString
	case *geom.MultiPolygon:
		k = KindMultiPolygon
	case *geom.GeometryCollection:
		k = KindGeometryCollection
	}
	return GeometryType{Kind: k, Layout: g.Layout()}
}

// OutputGeometryType returns the geometry type the output of op should be
// declared with. make-valid keeps the input type. build-area produces areas:
// polygons from single geometries, multipolygons from collections, with the
// input dimensionality kept. keepInput forces the input type for every
// operation.
func OutputGeometryType(op runner.Operation, in GeometryType, keepInput bool) GeometryType {
	if keepInput || op != runner.BuildArea {
		return in
	}
	out := GeometryType{Kind: KindPolygon, Layout: in.Layout}
	if in.Kind.Multi() {
		out.Kind = KindMultiPolygon
	}
	if out.Layout == geom.NoLayout {
		out.Layout = geom.XY
	}
	return out
}
