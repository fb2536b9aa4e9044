package lwgeom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/bsaid97/go-lwgeom-fixer/codec"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
	"github.com/bsaid97/go-lwgeom-fixer/runner"
)

func TestOpenMissingLibrary(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "liblwgeom.so"), proclog.Discard)
	assert.ErrorIs(t, err, ErrLoad)

	_, err = Open("", proclog.Discard)
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestOpenNotALibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liblwgeom.so")
	require.NoError(t, os.WriteFile(path, []byte("definitely not ELF"), 0o644))

	_, err := Open(path, proclog.Discard)
	assert.ErrorIs(t, err, ErrLoad)
}

func TestReportRoutesToActiveSink(t *testing.T) {
	log := proclog.New(nil)

	setActive(log)
	report(levelError, "GEOSMakeValid: unknown exception")
	report(levelNotice, "Self-intersection at or near point 5 5")
	setActive(nil)

	// logged only, nobody holds the call lock
	report(levelError, "stray")

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, proclog.Error, entries[0].Severity)
	assert.Equal(t, "FAILURE: liblwgeom error is:\nGEOSMakeValid: unknown exception", entries[0].Message)
	assert.Equal(t, proclog.Warning, entries[1].Severity)
	assert.Equal(t, "liblwgeom notice: Self-intersection at or near point 5 5", entries[1].Message)
}

// openTestLibrary loads the liblwgeom named by LWGEOM_TEST_LIBRARY.
func openTestLibrary(t *testing.T, sink proclog.Sink) *Binding {
	t.Helper()
	path := os.Getenv("LWGEOM_TEST_LIBRARY")
	if path == "" {
		t.Skip("LWGEOM_TEST_LIBRARY not set")
	}
	b, err := Open(path, sink)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestMakeValidBowtie(t *testing.T) {
	log := proclog.New(nil)
	b := openTestLibrary(t, log)

	r, err := runner.New(b, runner.MakeValid, log)
	require.NoError(t, err)

	bowtie := codec.NewGeom(geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {10, 10}, {10, 0}, {0, 10}, {0, 0}},
	}))
	require.NoError(t, r.Run(bowtie))

	mp, ok := bowtie.T.(*geom.MultiPolygon)
	require.True(t, ok, "got %T", bowtie.T)
	assert.Equal(t, 2, mp.NumPolygons())

	var area float64
	for i := 0; i < mp.NumPolygons(); i++ {
		area += mp.Polygon(i).Area()
	}
	assert.InDelta(t, 50.0, area, 1e-9)
}

func TestBuildAreaFromRing(t *testing.T) {
	log := proclog.New(nil)
	b := openTestLibrary(t, log)

	r, err := runner.New(b, runner.BuildArea, log)
	require.NoError(t, err)

	ring := codec.NewGeom(geom.NewLineString(geom.XY).MustSetCoords([]geom.Coord{
		{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
	}))
	require.NoError(t, r.Run(ring))

	poly, ok := ring.T.(*geom.Polygon)
	require.True(t, ok, "got %T", ring.T)
	assert.Equal(t, 1, poly.NumLinearRings())
	assert.InDelta(t, 100.0, poly.Area(), 1e-9)
}

func TestBuildAreaOfPointFails(t *testing.T) {
	log := proclog.New(nil)
	b := openTestLibrary(t, log)

	r, err := runner.New(b, runner.BuildArea, log)
	require.NoError(t, err)

	pt := codec.NewGeom(geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 1}))
	before := pt.T
	err = r.Run(pt)
	require.ErrorIs(t, err, runner.ErrTransform)
	assert.Same(t, before, pt.T)

	var messages []string
	for _, e := range log.Entries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "FAILURE: liblwgeom wasn't able to build area!")
}

func square() *codec.Geom {
	return codec.NewGeom(geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
	}))
}

// assertParseFails expects r to refuse the call without touching the
// geometry.
func assertParseFails(t *testing.T, r *runner.Runner, log *proclog.Log) {
	t.Helper()
	g := square()
	before := g.T
	assert.ErrorIs(t, r.Run(g), runner.ErrParse)
	assert.Same(t, before, g.T)

	var messages []string
	for _, e := range log.Entries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "FAILURE: liblwgeom wasn't able to parse the WKB!")
}

func TestUnloadedBindingIsInert(t *testing.T) {
	log := proclog.New(nil)
	b := &Binding{path: "/gone/liblwgeom.so"}
	require.NoError(t, b.Close())

	r, err := runner.New(b, runner.MakeValid, log)
	require.NoError(t, err)
	assertParseFails(t, r, log)
}

func TestRunnerAfterClose(t *testing.T) {
	log := proclog.New(nil)
	b := openTestLibrary(t, log)

	r, err := runner.New(b, runner.MakeValid, log)
	require.NoError(t, err)
	require.NoError(t, r.Run(square()))

	// a runner handed out before the library was unloaded
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assertParseFails(t, r, log)
}
