package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/metrics"
	"gocv.io/x/gocv"
)

func newServer(t *testing.T) (*Server, *httptest.Server, context.Context) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := New(logs.NewTestingLog(t), metrics.New(), cancel)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(s.Close)

	return s, ts, ctx
}

func frame(t *testing.T) gocv.Mat {
	t.Helper()

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 128, 0, 0), 48, 64,
		gocv.MatTypeCV8UC3)
	t.Cleanup(func() { img.Close() })

	return img
}

func TestFrameAndCounts(t *testing.T) {

	s, ts, _ := newServer(t)

	resp, err := http.Get(ts.URL + "/frame.jpg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	counts := count.Counts{"cup": 2}
	require.NoError(t, s.Publish(frame(t), counts))

	// later changes by the run do not leak into the server
	counts["cup"] = 9

	resp, err = http.Get(ts.URL + "/frame.jpg")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8}, body[:2])

	resp, err = http.Get(ts.URL + "/counts")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got count.Counts
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, count.Counts{"cup": 2}, got)
}

func TestStop(t *testing.T) {

	_, ts, ctx := newServer(t)

	resp, err := http.Get(ts.URL + "/stop")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.NoError(t, ctx.Err())

	resp, err = http.Post(ts.URL+"/stop", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Error(t, ctx.Err())
}

func TestFinalCountsAfterStop(t *testing.T) {

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	s := New(logs.NewTestingLog(t), metrics.New(), stop)
	require.NoError(t, s.Start("127.0.0.1:0"))

	base := "http://" + s.Addr()

	require.NoError(t, s.Publish(frame(t), count.Counts{"cup": 1}))

	resp, err := http.Post(base+"/stop", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Error(t, ctx.Err())

	// the run ends after the stop and pushes its final counts
	s.SetCounts(count.Counts{"cup": 2, "plate": 1})

	resp, err = http.Get(base + "/counts")
	require.NoError(t, err)

	var got count.Counts
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, count.Counts{"cup": 2, "plate": 1}, got)

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(shutdown))

	_, err = http.Get(base + "/counts")
	assert.Error(t, err)
}

func TestStartAddressInUse(t *testing.T) {

	s := New(logs.NewTestingLog(t), nil, nil)
	require.NoError(t, s.Start("127.0.0.1:0"))
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	other := New(logs.NewTestingLog(t), nil, nil)
	assert.Error(t, other.Start(s.Addr()))
}

func TestMetricsRoute(t *testing.T) {

	s, ts, _ := newServer(t)
	require.NoError(t, s.Publish(frame(t), count.Counts{"laptop": 1}))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Contains(t, string(body), `objcount_objects{class="laptop"} 1`)
}

func TestSetCounts(t *testing.T) {

	s, _, _ := newServer(t)

	counts := count.Counts{"chair": 3}
	s.SetCounts(counts)
	counts["chair"] = 1

	assert.Equal(t, count.Counts{"chair": 3}, s.Counts())
}

func TestStream(t *testing.T) {

	s, ts, _ := newServer(t)
	require.NoError(t, s.Publish(frame(t), count.Counts{}))

	resp, err := http.Get(ts.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace"))

	rd := bufio.NewReader(resp.Body)

	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)

	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: image/jpeg\r\n", line)

	// closing the server ends the stream
	s.Close()

	_, err = io.ReadAll(rd)
	assert.NoError(t, err)

	// publishing after close is ignored
	assert.NoError(t, s.Publish(frame(t), count.Counts{"cup": 1}))
	assert.Empty(t, s.Counts())
}
