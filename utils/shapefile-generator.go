package utils

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"

	"github.com/bsaid97/go-lwgeom-fixer/codec"
	"github.com/bsaid97/go-lwgeom-fixer/processing"
)

// sidecars are copied from the input so the output keeps its CRS and
// attribute encoding.
var sidecars = []string{".prj", ".cpg"}

// ShapefileSink writes processed features to a new shapefile.
type ShapefileSink struct {
	path      string
	w         *shp.Writer
	shapeType shp.ShapeType
	fields    []shp.Field

	// Nulls counts features written without a geometry because theirs
	// could not be stored in the layer's shape type.
	Nulls int
}

var _ processing.Sink = (*ShapefileSink)(nil)

// CreateShapefile creates a shapefile for gt with the given fields. When
// source names a shapefile, its .prj and .cpg are copied next to path.
func CreateShapefile(path string, gt processing.GeometryType, fields []shp.Field, source string) (*ShapefileSink, error) {
	st, err := ShapeTypeFor(gt)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = []shp.Field{shp.NumberField("ID", 10)}
	}

	w, err := shp.Create(path, st)
	if err != nil {
		return nil, fmt.Errorf("failed to create shapefile: %w", err)
	}
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to set shapefile fields: %w", err)
	}

	if source != "" {
		if err := copySidecars(source, path); err != nil {
			w.Close()
			return nil, err
		}
	}
	return &ShapefileSink{path: path, w: w, shapeType: st, fields: fields}, nil
}

// Write implements processing.Sink.
func (s *ShapefileSink) Write(f *processing.Feature) error {
	shape := geomToShape(geometryOf(f), s.shapeType)
	if shape == nil {
		shape = emptyShape(s.shapeType)
		s.Nulls++
	}
	row := int(s.w.Write(shape))
	return writeAttributes(s.w, row, s.fields, f)
}

// Close flushes the .shp, .shx and .dbf files.
func (s *ShapefileSink) Close() error {
	s.w.Close()
	return nil
}

// geometryOf returns the go-geom value of a feature geometry, converting
// through WKB when it is held in another model.
func geometryOf(f *processing.Feature) geom.T {
	switch g := f.Geometry.(type) {
	case nil:
		return nil
	case *codec.Geom:
		if g == nil {
			return nil
		}
		return g.T
	default:
		data, err := g.WKB()
		if err != nil {
			return nil
		}
		t, err := codec.Decode(data)
		if err != nil {
			return nil
		}
		return t
	}
}

func copySidecars(source, dest string) error {
	srcBase := strings.TrimSuffix(source, filepath.Ext(source))
	dstBase := strings.TrimSuffix(dest, filepath.Ext(dest))
	for _, ext := range sidecars {
		err := copyFile(srcBase+ext, dstBase+ext)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to copy %s: %w", ext, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// GenerateShapefileZip creates a zip file holding the processed GeoJSON and
// the same features as a shapefile named name.
func GenerateShapefileZip(name string, jsonData []byte, features []*processing.Feature, gt processing.GeometryType) ([]byte, error) {
	var zipBuffer bytes.Buffer
	zipWriter := zip.NewWriter(&zipBuffer)

	jsonFile, err := zipWriter.Create(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON file in zip: %w", err)
	}
	if _, err := jsonFile.Write(jsonData); err != nil {
		return nil, fmt.Errorf("failed to write JSON data to zip: %w", err)
	}

	if err := addShapefileToZip(zipWriter, name, features, gt); err != nil {
		return nil, fmt.Errorf("failed to add shapefile to zip: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return zipBuffer.Bytes(), nil
}

// addShapefileToZip writes the shapefile components to a temporary
// directory and adds them to the zip.
func addShapefileToZip(zipWriter *zip.Writer, name string, features []*processing.Feature, gt processing.GeometryType) error {
	tempDir, err := os.MkdirTemp("", "shapefile_")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	shapefilePath := filepath.Join(tempDir, name+".shp")
	var props map[string]any
	if len(features) > 0 {
		props = features[0].Properties
	}

	sink, err := CreateShapefile(shapefilePath, gt, FieldsFromProperties(props), "")
	if err != nil {
		return err
	}
	for _, f := range features {
		if err := sink.Write(f); err != nil {
			sink.Close()
			return err
		}
	}
	sink.Close()

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		content, err := os.ReadFile(filepath.Join(tempDir, name+ext))
		if err != nil {
			return fmt.Errorf("failed to read shapefile component %s: %w", ext, err)
		}
		zipFile, err := zipWriter.Create(name + ext)
		if err != nil {
			return fmt.Errorf("failed to create %s file in zip: %w", ext, err)
		}
		if _, err := zipFile.Write(content); err != nil {
			return fmt.Errorf("failed to write %s data to zip: %w", ext, err)
		}
	}
	return nil
}

// FieldsFromProperties derives DBF fields from one feature's
// properties, in key order.
func FieldsFromProperties(properties map[string]any) []shp.Field {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]shp.Field, 0, len(keys))
	for _, key := range keys {
		// DBF field names are at most 10 characters
		fieldName := key
		if len(fieldName) > 10 {
			fieldName = fieldName[:10]
		}

		switch v := properties[key].(type) {
		case string:
			length := min(max(len(v), 50), 254)
			fields = append(fields, shp.StringField(fieldName, uint8(length)))
		case float64, float32:
			fields = append(fields, shp.FloatField(fieldName, 15, 5))
		case int, int32, int64:
			fields = append(fields, shp.NumberField(fieldName, 15))
		case bool:
			fields = append(fields, shp.StringField(fieldName, 5))
		default:
			fields = append(fields, shp.StringField(fieldName, 100))
		}
	}

	if len(fields) == 0 {
		fields = append(fields, shp.NumberField("ID", 10))
	}
	return fields
}

// writeAttributes writes f's properties into row. Properties are matched to
// fields by name, ignoring case and the 10 character truncation.
func writeAttributes(w *shp.Writer, row int, fields []shp.Field, f *processing.Feature) error {
	for i, field := range fields {
		fieldName := FieldName(field)

		if fieldName == "ID" && len(f.Properties) == 0 {
			if err := w.WriteAttribute(row, i, strconv.FormatInt(f.ID, 10)); err != nil {
				return err
			}
			continue
		}

		value, found := lookupProperty(f.Properties, fieldName)
		if err := w.WriteAttribute(row, i, attributeValue(field, value, found)); err != nil {
			return fmt.Errorf("feature #%d field %s: %w", f.ID, fieldName, err)
		}
	}
	return nil
}

func lookupProperty(properties map[string]any, fieldName string) (any, bool) {
	if v, ok := properties[fieldName]; ok {
		return v, true
	}
	for key, v := range properties {
		if strings.EqualFold(key, fieldName) ||
			(len(key) > 10 && strings.EqualFold(key[:10], fieldName)) {
			return v, true
		}
	}
	return nil, false
}

// attributeValue converts a property for a field. Strings read from a dbf
// go back unchanged.
func attributeValue(field shp.Field, value any, found bool) any {
	if !found || value == nil {
		switch field.Fieldtype {
		case 'N', 'F':
			return 0
		default:
			return ""
		}
	}
	if s, ok := value.(string); ok {
		return s
	}

	switch field.Fieldtype {
	case 'N':
		switch v := value.(type) {
		case float64:
			return int(v)
		case int:
			return v
		case int64:
			return int(v)
		}
		return 0
	case 'F':
		switch v := value.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
		return 0.0
	default:
		return fmt.Sprintf("%v", value)
	}
}
