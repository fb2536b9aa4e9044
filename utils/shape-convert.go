package utils

import (
	"errors"
	"fmt"
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/bsaid97/go-lwgeom-fixer/processing"
)

var ErrUnsupportedShape = errors.New("utils: unsupported shape type")

// GeometryTypeOf returns the layer geometry type of a shapefile.
func GeometryTypeOf(st shp.ShapeType) (processing.GeometryType, error) {
	switch st {
	case shp.POINT:
		return processing.GeometryType{Kind: processing.KindPoint, Layout: geom.XY}, nil
	case shp.POINTZ:
		return processing.GeometryType{Kind: processing.KindPoint, Layout: geom.XYZ}, nil
	case shp.MULTIPOINT:
		return processing.GeometryType{Kind: processing.KindMultiPoint, Layout: geom.XY}, nil
	case shp.POLYLINE:
		return processing.GeometryType{Kind: processing.KindLineString, Layout: geom.XY}, nil
	case shp.POLYLINEZ:
		return processing.GeometryType{Kind: processing.KindLineString, Layout: geom.XYZ}, nil
	case shp.POLYGON:
		return processing.GeometryType{Kind: processing.KindPolygon, Layout: geom.XY}, nil
	case shp.POLYGONZ:
		return processing.GeometryType{Kind: processing.KindPolygon, Layout: geom.XYZ}, nil
	}
	return processing.GeometryType{}, fmt.Errorf("%w: %d", ErrUnsupportedShape, st)
}

// ShapeTypeFor returns the shapefile type able to hold gt.
func ShapeTypeFor(gt processing.GeometryType) (shp.ShapeType, error) {
	z := gt.Layout == geom.XYZ || gt.Layout == geom.XYZM
	switch gt.Kind {
	case processing.KindPoint:
		if z {
			return shp.POINTZ, nil
		}
		return shp.POINT, nil
	case processing.KindMultiPoint:
		if z {
			return shp.MULTIPOINTZ, nil
		}
		return shp.MULTIPOINT, nil
	case processing.KindLineString, processing.KindMultiLineString:
		if z {
			return shp.POLYLINEZ, nil
		}
		return shp.POLYLINE, nil
	case processing.KindPolygon, processing.KindMultiPolygon:
		if z {
			return shp.POLYGONZ, nil
		}
		return shp.POLYGON, nil
	}
	return shp.NULL, fmt.Errorf("%w: %s", ErrUnsupportedShape, gt)
}

// shapeToGeom converts a shapefile record. Null shapes give a nil geometry.
func shapeToGeom(s shp.Shape) (geom.T, error) {
	switch v := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{v.X, v.Y}), nil
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XYZ, []float64{v.X, v.Y, v.Z}), nil
	case *shp.MultiPoint:
		if len(v.Points) == 0 {
			return nil, nil
		}
		return geom.NewMultiPointFlat(geom.XY, flatten(v.Points, nil, geom.XY)), nil
	case *shp.PolyLine:
		return linesToGeom(geom.XY, v.Parts, v.Points, nil), nil
	case *shp.PolyLineZ:
		return linesToGeom(geom.XYZ, v.Parts, v.Points, v.ZArray), nil
	case *shp.Polygon:
		return ringsToGeom(geom.XY, v.Parts, v.Points, nil)
	case *shp.PolygonZ:
		return ringsToGeom(geom.XYZ, v.Parts, v.Points, v.ZArray)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedShape, s)
}

func flatten(points []shp.Point, z []float64, layout geom.Layout) []float64 {
	stride := layout.Stride()
	flat := make([]float64, 0, len(points)*stride)
	for i, p := range points {
		flat = append(flat, p.X, p.Y)
		if stride > 2 {
			var zv float64
			if i < len(z) {
				zv = z[i]
			}
			flat = append(flat, zv)
		}
	}
	return flat
}

// partBounds returns the [start, end) point range of every part.
func partBounds(parts []int32, n int) [][2]int {
	out := make([][2]int, 0, len(parts))
	for i, start := range parts {
		end := n
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) < end {
			out = append(out, [2]int{int(start), end})
		}
	}
	return out
}

func linesToGeom(layout geom.Layout, parts []int32, points []shp.Point, z []float64) geom.T {
	flat := flatten(points, z, layout)
	stride := layout.Stride()
	bounds := partBounds(parts, len(points))
	switch len(bounds) {
	case 0:
		return nil
	case 1:
		b := bounds[0]
		return geom.NewLineStringFlat(layout, flat[b[0]*stride:b[1]*stride])
	}
	ends := make([]int, 0, len(bounds))
	for _, b := range bounds {
		ends = append(ends, b[1]*stride)
	}
	return geom.NewMultiLineStringFlat(layout, flat, ends)
}

// ringsToGeom groups shapefile rings into polygons. Outer rings are
// clockwise, holes counter clockwise and follow their outer ring.
func ringsToGeom(layout geom.Layout, parts []int32, points []shp.Point, z []float64) (geom.T, error) {
	flat := flatten(points, z, layout)
	stride := layout.Stride()

	var polys []*geom.Polygon
	var cur *geom.Polygon
	for _, b := range partBounds(parts, len(points)) {
		ring := geom.NewLinearRingFlat(layout, flat[b[0]*stride:b[1]*stride])
		if cur == nil || !xy.IsRingCounterClockwise(layout, ring.FlatCoords()) {
			cur = geom.NewPolygon(layout)
			polys = append(polys, cur)
		}
		if err := cur.Push(ring); err != nil {
			return nil, err
		}
	}

	switch len(polys) {
	case 0:
		return nil, nil
	case 1:
		return polys[0], nil
	}
	mp := geom.NewMultiPolygon(layout)
	for _, p := range polys {
		if err := mp.Push(p); err != nil {
			return nil, err
		}
	}
	return mp, nil
}

// emptyShape returns a record of type st without coordinates. go-shp writes
// every record with the file's shape type, so a null shape cannot be used.
func emptyShape(st shp.ShapeType) shp.Shape {
	switch st {
	case shp.POINTZ:
		return &shp.PointZ{}
	case shp.MULTIPOINT:
		return &shp.MultiPoint{}
	case shp.MULTIPOINTZ:
		return &shp.MultiPointZ{}
	case shp.POLYLINE:
		return &shp.PolyLine{}
	case shp.POLYLINEZ:
		return &shp.PolyLineZ{}
	case shp.POLYGON:
		return &shp.Polygon{}
	case shp.POLYGONZ:
		return &shp.PolygonZ{}
	}
	return &shp.Point{}
}

// geomToShape converts g for a layer of type st. Parts of g that st cannot
// hold are dropped; nil is returned when nothing is left.
func geomToShape(g geom.T, st shp.ShapeType) shp.Shape {
	if g == nil || g.Empty() {
		return nil
	}
	switch st {
	case shp.POINT, shp.POINTZ:
		pts := collectPoints(g)
		if len(pts) == 0 {
			return nil
		}
		c := pts[0]
		if st == shp.POINTZ {
			return &shp.PointZ{X: c.X(), Y: c.Y(), Z: zOf(c)}
		}
		return &shp.Point{X: c.X(), Y: c.Y()}

	case shp.MULTIPOINT, shp.MULTIPOINTZ:
		pts := collectPoints(g)
		if len(pts) == 0 {
			return nil
		}
		points := make([]shp.Point, len(pts))
		for i, c := range pts {
			points[i] = shp.Point{X: c.X(), Y: c.Y()}
		}
		mp := &shp.MultiPoint{Box: shp.BBoxFromPoints(points), NumPoints: int32(len(points)), Points: points}
		if st == shp.MULTIPOINTZ {
			z := make([]float64, len(pts))
			for i, c := range pts {
				z[i] = zOf(c)
			}
			return &shp.MultiPointZ{
				Box: mp.Box, NumPoints: mp.NumPoints, Points: points,
				ZRange: span(z), ZArray: z,
				MArray: make([]float64, len(pts)),
			}
		}
		return mp

	case shp.POLYLINE, shp.POLYLINEZ:
		var parts [][]geom.Coord
		for _, ls := range collectLines(g) {
			parts = append(parts, ls.Coords())
		}
		return partsToShape(parts, st == shp.POLYLINEZ, false)

	case shp.POLYGON, shp.POLYGONZ:
		var parts [][]geom.Coord
		for _, p := range collectPolygons(g) {
			for i := 0; i < p.NumLinearRings(); i++ {
				ring := p.LinearRing(i)
				// shapefile outer rings are clockwise
				ccw := xy.IsRingCounterClockwise(ring.Layout(), ring.FlatCoords())
				coords := ring.Coords()
				if (i == 0) == ccw {
					reverse(coords)
				}
				parts = append(parts, coords)
			}
		}
		return partsToShape(parts, st == shp.POLYGONZ, true)
	}
	return nil
}

func partsToShape(parts [][]geom.Coord, withZ, polygon bool) shp.Shape {
	if len(parts) == 0 {
		return nil
	}
	pts := make([][]shp.Point, len(parts))
	var z []float64
	for i, part := range parts {
		pts[i] = make([]shp.Point, len(part))
		for j, c := range part {
			pts[i][j] = shp.Point{X: c.X(), Y: c.Y()}
			z = append(z, zOf(c))
		}
	}
	line := shp.NewPolyLine(pts)

	if !withZ {
		if polygon {
			p := shp.Polygon(*line)
			return &p
		}
		return line
	}

	lz := shp.PolyLineZ{
		Box:       line.Box,
		NumParts:  line.NumParts,
		NumPoints: line.NumPoints,
		Parts:     line.Parts,
		Points:    line.Points,
		ZRange:    span(z),
		ZArray:    z,
		MArray:    make([]float64, len(z)),
	}
	if polygon {
		p := shp.PolygonZ(lz)
		return &p
	}
	return &lz
}

func collectPoints(g geom.T) []geom.Coord {
	switch v := g.(type) {
	case *geom.Point:
		return []geom.Coord{v.Coords()}
	case *geom.MultiPoint:
		var out []geom.Coord
		for i := 0; i < v.NumPoints(); i++ {
			if p := v.Point(i); !p.Empty() {
				out = append(out, p.Coords())
			}
		}
		return out
	case *geom.GeometryCollection:
		var out []geom.Coord
		for _, child := range v.Geoms() {
			out = append(out, collectPoints(child)...)
		}
		return out
	}
	return nil
}

func collectLines(g geom.T) []*geom.LineString {
	switch v := g.(type) {
	case *geom.LineString:
		return []*geom.LineString{v}
	case *geom.MultiLineString:
		out := make([]*geom.LineString, 0, v.NumLineStrings())
		for i := 0; i < v.NumLineStrings(); i++ {
			out = append(out, v.LineString(i))
		}
		return out
	case *geom.GeometryCollection:
		var out []*geom.LineString
		for _, child := range v.Geoms() {
			out = append(out, collectLines(child)...)
		}
		return out
	}
	return nil
}

func collectPolygons(g geom.T) []*geom.Polygon {
	switch v := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{v}
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, v.NumPolygons())
		for i := 0; i < v.NumPolygons(); i++ {
			out = append(out, v.Polygon(i))
		}
		return out
	case *geom.GeometryCollection:
		var out []*geom.Polygon
		for _, child := range v.Geoms() {
			out = append(out, collectPolygons(child)...)
		}
		return out
	}
	return nil
}

func zOf(c geom.Coord) float64 {
	if len(c) > 2 {
		return c[2]
	}
	return 0
}

func span(v []float64) [2]float64 {
	if len(v) == 0 {
		return [2]float64{}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return [2]float64{lo, hi}
}

func reverse(c []geom.Coord) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}
