package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lwgeomfix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: geos
lwgeom:
  path: /opt/postgis/liblwgeom.so
server:
  workers: 4
output:
  keep_input_type: true
`), 0o644))

	t.Setenv("LWGEOMFIX_LOG_LEVEL", "debug")
	t.Setenv("LWGEOMFIX_SERVER_ADDR", "127.0.0.1:9000")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, BackendGEOS, cfg.Backend)
	assert.Equal(t, "/opt/postgis/liblwgeom.so", cfg.Lwgeom.Path)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.True(t, cfg.Output.KeepInputType)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFile)

	v := New()
	v.Set("backend", "jts")
	_, err = Load(v, "")
	assert.ErrorIs(t, err, ErrInvalid)

	v = New()
	v.Set("log.format", "xml")
	_, err = Load(v, "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestYAML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lwgeom.Path = "/usr/lib/liblwgeom.so"

	out, err := cfg.YAML()
	require.NoError(t, err)

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, *cfg, back)
	assert.Contains(t, string(out), "keep_input_type: false")
}

func TestDirLocator(t *testing.T) {
	empty := t.TempDir()
	dir := t.TempDir()
	for _, name := range []string{"liblwgeom-2.5.so.0", "liblwgeom-3.0.so.0", "libgeos_c.so"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "liblwgeom-9.so.1"), 0o755))

	loc := &DirLocator{Dirs: []string{empty, dir}, Patterns: []string{"liblwgeom-*.so.[0-9]"}}
	got, err := loc.Locate()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "liblwgeom-3.0.so.0"), got)

	_, err = (&DirLocator{Dirs: []string{empty}, Patterns: []string{"liblwgeom*"}}).Locate()
	assert.ErrorIs(t, err, ErrNotFound)
}

type fixedLocator string

func (f fixedLocator) Locate() (string, error) { return string(f), nil }

func TestLibraryPath(t *testing.T) {
	cfg := DefaultConfig()

	got, err := cfg.LibraryPath(fixedLocator("/found/liblwgeom.so"))
	require.NoError(t, err)
	assert.Equal(t, "/found/liblwgeom.so", got)

	cfg.Lwgeom.Path = "/configured/liblwgeom.so"
	got, err = cfg.LibraryPath(fixedLocator("/found/liblwgeom.so"))
	require.NoError(t, err)
	assert.Equal(t, "/configured/liblwgeom.so", got)

	cfg.Lwgeom.Path = ""
	_, err = cfg.LibraryPath(nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
