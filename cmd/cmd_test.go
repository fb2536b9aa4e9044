package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/bsaid97/go-lwgeom-fixer/codec"
	"github.com/bsaid97/go-lwgeom-fixer/config"
	"github.com/bsaid97/go-lwgeom-fixer/native"
	"github.com/bsaid97/go-lwgeom-fixer/native/nativetest"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
	"github.com/bsaid97/go-lwgeom-fixer/provider"
	"github.com/bsaid97/go-lwgeom-fixer/runner"
	"github.com/bsaid97/go-lwgeom-fixer/utils"
)

const lines = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":1,"properties":{"name":"ring"},
   "geometry":{"type":"LineString","coordinates":[[0,0],[10,0],[10,10],[0,10],[0,0]]}},
  {"type":"Feature","id":2,"properties":{"name":"open"},
   "geometry":{"type":"LineString","coordinates":[[20,0],[30,5]]}}
]}`

// execute runs the command line against the fake library.
func execute(t *testing.T, lib *nativetest.Library, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(provider.WithOpener(func(string, string, proclog.Sink) (native.Library, error) {
		return lib, nil
	}))
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--lwgeom-path", "/fake/libfake.so", "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeInput(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "lines.geojson")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return dir, path
}

func TestAlgorithmsCommand(t *testing.T) {
	out, err := execute(t, nativetest.New(), "algorithms")
	require.NoError(t, err)
	assert.Contains(t, out, "makevalid")
	assert.Contains(t, out, "lwgeom_buildarea")
	assert.Contains(t, out, runner.Group)
}

func TestRunBuildAreaToGeoJSON(t *testing.T) {
	lib := nativetest.New()
	dir, in := writeInput(t)
	outPath := filepath.Join(dir, "areas.geojson")

	out, err := execute(t, lib, "run", "buildarea", in, outPath, "-q")
	require.NoError(t, err)
	assert.Equal(t, "Build area: 2 features processed, 1 failed\nfailed features: 2\n", out)
	assert.Equal(t, 0, lib.Outstanding())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.IsType(t, orb.Polygon{}, fc.Features[0].Geometry)
	assert.IsType(t, orb.LineString{}, fc.Features[1].Geometry)
}

func TestRunSelectionToShapefile(t *testing.T) {
	dir, in := writeInput(t)
	outPath := filepath.Join(dir, "areas.shp")

	out, err := execute(t, nativetest.New(), "run", "buildarea", in, outPath, "--select", "1", "-q")
	require.NoError(t, err)
	assert.Equal(t, "Build area: 1 features processed, 0 failed\n", out)

	layer, err := utils.ReadShapefile(outPath)
	require.NoError(t, err)
	require.Len(t, layer.Features(), 1)
	assert.Equal(t, "ring", layer.Features()[0].Properties["name"])

	poly, ok := layer.Features()[0].Geometry.(*codec.Geom).T.(*geom.Polygon)
	require.True(t, ok)
	assert.InDelta(t, 100.0, poly.Area(), 1e-9)
}

func TestRunErrors(t *testing.T) {
	dir, in := writeInput(t)

	_, err := execute(t, nativetest.New(), "run", "dissolve", in, filepath.Join(dir, "x.geojson"))
	assert.ErrorIs(t, err, runner.ErrUnknownOperation)

	_, err = execute(t, nativetest.New(), "run", "makevalid", in, filepath.Join(dir, "x.gpkg"), "-q")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = execute(t, nativetest.New(), "run", "makevalid", filepath.Join(dir, "missing.csv"), filepath.Join(dir, "x.shp"))
	assert.ErrorContains(t, err, "unsupported input format")

	_, err = execute(t, nativetest.New(), "run", "makevalid", in)
	assert.Error(t, err)
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "lwgeomfix.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  workers: 4\noutput:\n  keep_input_type: true\n"), 0o644))

	out, err := execute(t, nativetest.New(), "--config", file, "--backend", "geos", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: geos")
	assert.Contains(t, out, "workers: 4")
	assert.Contains(t, out, "keep_input_type: true")
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("LWGEOMFIX_BACKEND", "qgis")
	_, err := execute(t, nativetest.New(), "algorithms")
	assert.ErrorIs(t, err, config.ErrInvalid)
}
