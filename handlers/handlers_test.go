package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsaid97/go-lwgeom-fixer/config"
	"github.com/bsaid97/go-lwgeom-fixer/native"
	"github.com/bsaid97/go-lwgeom-fixer/native/nativetest"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
	"github.com/bsaid97/go-lwgeom-fixer/provider"
	"github.com/bsaid97/go-lwgeom-fixer/runner"
)

const linework = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 1, "properties": {"name": "ring"},
     "geometry": {"type": "LineString", "coordinates": [[0,0],[10,0],[10,10],[0,10],[0,0]]}},
    {"type": "Feature", "id": 2, "properties": {"name": "dot"},
     "geometry": {"type": "Point", "coordinates": [3,4]}}
  ]
}`

func newServer(t *testing.T) (*httptest.Server, *nativetest.Library) {
	t.Helper()
	lib := nativetest.New()
	cfg := config.DefaultConfig()
	cfg.Lwgeom.Path = "/fake/libfake.so"

	p := provider.New(cfg, provider.WithOpener(func(string, string, proclog.Sink) (native.Library, error) {
		return lib, nil
	}))
	svc := NewService(p, nil)
	mux := http.NewServeMux()
	svc.Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		svc.Close()
	})
	return srv, lib
}

func decode(t *testing.T, res *http.Response) Response {
	t.Helper()
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func TestBuildAreaEndpoint(t *testing.T) {
	srv, lib := newServer(t)

	res, err := http.Post(srv.URL+"/build-area", "application/json", strings.NewReader(linework))
	require.NoError(t, err)
	out := decode(t, res)

	assert.Equal(t, 2, out.Processed)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, []int64{2}, out.FailedIDs)
	assert.Equal(t, 0, lib.Outstanding())

	var messages []string
	for _, e := range out.Log {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "FAILURE: previous failure info: layer request, feature #2")

	fc, err := geojson.UnmarshalFeatureCollection(out.Collection)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.IsType(t, orb.Polygon{}, fc.Features[0].Geometry)
	assert.Equal(t, orb.Point{3, 4}, fc.Features[1].Geometry, "a failed feature keeps its input")
	assert.Equal(t, "ring", fc.Features[0].Properties["name"])
}

func TestLogIsPerRequest(t *testing.T) {
	srv, _ := newServer(t)

	res, err := http.Post(srv.URL+"/build-area", "application/json", strings.NewReader(linework))
	require.NoError(t, err)
	first := decode(t, res)
	require.NotEmpty(t, first.Log)

	res, err = http.Post(srv.URL+"/build-area?select=1", "application/json", strings.NewReader(linework))
	require.NoError(t, err)
	second := decode(t, res)
	assert.Equal(t, 1, second.Processed)
	assert.Zero(t, second.Failed)
	assert.Empty(t, second.Log)
}

func TestFixGeometryZip(t *testing.T) {
	srv, _ := newServer(t)

	res, err := http.Post(srv.URL+"/v2/fix-geometry?format=zip", "application/json", strings.NewReader(linework))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/zip", res.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(res.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"makevalid.json", "makevalid.shp", "makevalid.shx", "makevalid.dbf"}, names)
}

func TestMultipartUpload(t *testing.T) {
	srv, _ := newServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("select", "2"))
	fw, err := mw.CreateFormFile("file", "lines.geojson")
	require.NoError(t, err)
	_, err = fw.Write([]byte(linework))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	res, err := http.Post(srv.URL+"/build-area", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, 1, out.Processed)
	assert.Equal(t, []int64{2}, out.FailedIDs)
}

func TestBadRequests(t *testing.T) {
	srv, _ := newServer(t)

	res, err := http.Get(srv.URL + "/v2/fix-geometry")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)

	res, err = http.Post(srv.URL+"/v2/fix-geometry", "application/json", strings.NewReader(`{"type":`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = http.Post(srv.URL+"/build-area", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAlgorithms(t *testing.T) {
	srv, _ := newServer(t)

	res, err := http.Get(srv.URL + "/algorithms")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var ds []runner.Descriptor
	require.NoError(t, json.NewDecoder(res.Body).Decode(&ds))
	require.Len(t, ds, 2)
	assert.Equal(t, "makevalid", ds[0].ID)
	assert.Equal(t, "lwgeom_buildarea", ds[1].Symbol)
	assert.Equal(t, runner.Group, ds[1].Group)
}

func TestCheckGeometry(t *testing.T) {
	srv, _ := newServer(t)

	payload := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","id":7,"properties":{},
	   "geometry":{"type":"Polygon","coordinates":[[[0,0],[10,10],[10,0],[0,10],[0,0]]]}},
	  {"type":"Feature","id":8,"properties":{},
	   "geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}}
	]}`
	res, err := http.Post(srv.URL+"/check-geometry", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var errs []Error
	require.NoError(t, json.NewDecoder(res.Body).Decode(&errs))
	require.Len(t, errs, 1)
	assert.Equal(t, int64(7), errs[0].Ref)
	assert.Contains(t, errs[0].ErrorMessage, "Self-intersection")
}
