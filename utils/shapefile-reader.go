package utils

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"

	"github.com/bsaid97/go-lwgeom-fixer/codec"
	"github.com/bsaid97/go-lwgeom-fixer/processing"
)

// ShapefileLayer is a shapefile read into memory. Attribute values are kept
// as the raw strings stored in the .dbf so they can be written back
// unchanged.
type ShapefileLayer struct {
	processing.MemoryLayer

	ShapeType shp.ShapeType
	Fields    []shp.Field
}

// FieldName returns the name of a dbf field.
func FieldName(f shp.Field) string {
	return strings.TrimRight(string(f.Name[:]), "\x00")
}

// ReadShapefile reads every record of the shapefile at path. Feature ids are
// the zero based record numbers.
func ReadShapefile(path string) (*ShapefileLayer, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer r.Close()

	gt, err := GeometryTypeOf(r.GeometryType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	layer := &ShapefileLayer{
		MemoryLayer: processing.MemoryLayer{Name: path, Type: gt},
		ShapeType:   r.GeometryType,
		Fields:      r.Fields(),
	}

	for r.Next() {
		n, shape := r.Shape()
		g, err := shapeToGeom(shape)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", path, n, err)
		}

		props := make(map[string]any, len(layer.Fields))
		for i, f := range layer.Fields {
			props[FieldName(f)] = strings.Trim(r.ReadAttribute(n, i), " \x00")
		}

		layer.Items = append(layer.Items, &processing.Feature{
			ID:         int64(n),
			Geometry:   codec.NewGeom(g),
			Properties: props,
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shapefile %s: %w", path, err)
	}
	return layer, nil
}
