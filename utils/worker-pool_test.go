package utils

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsOneJobAtATime(t *testing.T) {
	wp := NewWorkerPool(1, 8)
	wp.Start()
	defer wp.Close()

	var running, maxRunning, done int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := wp.Submit(context.Background(), func(context.Context) (any, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				atomic.AddInt32(&done, 1)
				atomic.AddInt32(&running, -1)
				return i * 2, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, i*2, v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning)
	assert.Equal(t, int32(20), done)
}

func TestWorkerPoolErrorsAndCancel(t *testing.T) {
	wp := NewWorkerPool(0, 1)
	assert.Equal(t, 1, wp.NumWorkers)
	wp.Start()

	boom := errors.New("boom")
	_, err := wp.Submit(context.Background(), func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	_, err = wp.Submit(ctx, func(context.Context) (any, error) { ran = true; return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)

	wp.Close()
	_, err = wp.Submit(context.Background(), func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	pt := NewProgressTracker(&buf, "buildarea")
	assert.Equal(t, -1, pt.Percent())

	pt.Report(50)
	pt.Report(100)
	assert.Equal(t, 100, pt.Percent())
	assert.Contains(t, buf.String(), "buildarea: 50%")
	assert.Contains(t, buf.String(), "buildarea: 100%")
}

func TestParseSelection(t *testing.T) {
	ids, err := ParseSelection(" 1, 4,7 ,")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 7}, ids)

	ids, err = ParseSelection("")
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = ParseSelection("1,x")
	assert.Error(t, err)
}

func TestReadMultiPartForm(t *testing.T) {
	var body bytes.Buffer
	body.WriteString("--XX\r\nContent-Disposition: form-data; name=\"select\"\r\n\r\n2,3\r\n")
	body.WriteString("--XX\r\nContent-Disposition: form-data; name=\"format\"\r\n\r\nzip\r\n")
	body.WriteString("--XX\r\nContent-Disposition: form-data; name=\"file\"; filename=\"in.geojson\"\r\nContent-Type: application/geo+json\r\n\r\n")
	body.WriteString(`{"type":"FeatureCollection","features":[]}`)
	body.WriteString("\r\n--XX--\r\n")

	req := httptest.NewRequest("POST", "/v2/fix-geometry", strings.NewReader(body.String()))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=XX")

	res, err := ReadMultiPartForm(req, "file")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, res.Properties.Selection)
	assert.Equal(t, "zip", res.Properties.Format)

	payload, err := res.Payload()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"FeatureCollection","features":[]}`, payload)

	_, err = MultipartResult{}.Payload()
	assert.ErrorIs(t, err, ErrNoPayload)
}
