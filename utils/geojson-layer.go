package utils

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geom"

	"github.com/bsaid97/go-lwgeom-fixer/codec"
	"github.com/bsaid97/go-lwgeom-fixer/processing"
)

// ReadGeoJSON parses a FeatureCollection into a layer named source. A
// feature keeps its numeric id. Features without one, or repeating an id
// already taken, are numbered by 1 based position, moving up to the next
// unused id on a clash.
func ReadGeoJSON(data []byte, source string) (*processing.MemoryLayer, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %w", err)
	}

	ids := make([]int64, len(fc.Features))
	explicit := make([]bool, len(fc.Features))
	used := make(map[int64]struct{}, len(fc.Features))
	for i, f := range fc.Features {
		id, ok := featureID(f.ID)
		if !ok {
			continue
		}
		if _, dup := used[id]; dup {
			continue
		}
		ids[i], explicit[i] = id, true
		used[id] = struct{}{}
	}
	for i := range ids {
		if explicit[i] {
			continue
		}
		id := int64(i + 1)
		for {
			if _, taken := used[id]; !taken {
				break
			}
			id++
		}
		ids[i] = id
		used[id] = struct{}{}
	}

	layer := &processing.MemoryLayer{Name: source}
	for i, f := range fc.Features {
		if layer.Type.Kind == processing.KindUnknown && f.Geometry != nil {
			layer.Type = orbType(f.Geometry)
		}
		layer.Items = append(layer.Items, &processing.Feature{
			ID:         ids[i],
			Geometry:   codec.NewOrb(f.Geometry),
			Properties: f.Properties,
		})
	}
	return layer, nil
}

func featureID(id any) (int64, bool) {
	switch v := id.(type) {
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func orbType(g orb.Geometry) processing.GeometryType {
	var k processing.Kind
	switch g.(type) {
	case orb.Point:
		k = processing.KindPoint
	case orb.MultiPoint:
		k = processing.KindMultiPoint
	case orb.LineString:
		k = processing.KindLineString
	case orb.MultiLineString:
		k = processing.KindMultiLineString
	case orb.Polygon, orb.Ring, orb.Bound:
		k = processing.KindPolygon
	case orb.MultiPolygon:
		k = processing.KindMultiPolygon
	case orb.Collection:
		k = processing.KindGeometryCollection
	}
	return processing.GeometryType{Kind: k, Layout: geom.XY}
}

// GeoJSONSink collects processed features into a FeatureCollection.
type GeoJSONSink struct {
	fc       *geojson.FeatureCollection
	features []*processing.Feature
}

var _ processing.Sink = (*GeoJSONSink)(nil)

func NewGeoJSONSink() *GeoJSONSink {
	return &GeoJSONSink{fc: geojson.NewFeatureCollection()}
}

// Write implements processing.Sink. A feature without a usable geometry is
// written with an empty GeometryCollection.
func (s *GeoJSONSink) Write(f *processing.Feature) error {
	g := toOrb(f.Geometry)
	if g == nil {
		g = orb.Collection{}
	}
	out := geojson.NewFeature(g)
	out.ID = f.ID
	if f.Properties != nil {
		out.Properties = f.Properties
	}
	s.fc.Append(out)
	s.features = append(s.features, f)
	return nil
}

// Collection returns the features written so far.
func (s *GeoJSONSink) Collection() *geojson.FeatureCollection {
	return s.fc
}

// Features returns the written features as given to Write.
func (s *GeoJSONSink) Features() []*processing.Feature {
	return s.features
}

// MarshalJSON renders the collection.
func (s *GeoJSONSink) MarshalJSON() ([]byte, error) {
	return s.fc.MarshalJSON()
}

func toOrb(g codec.Geometry) orb.Geometry {
	switch v := g.(type) {
	case nil:
		return nil
	case *codec.Orb:
		if v == nil {
			return nil
		}
		return v.G
	}
	data, err := g.WKB()
	if err != nil {
		return nil
	}
	out, err := wkb.Unmarshal(data)
	if err != nil {
		return nil
	}
	return out
}
