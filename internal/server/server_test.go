package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerialplan/internal/geo"
	"aerialplan/internal/observability"
	"aerialplan/internal/pipeline"
	"aerialplan/internal/planner"
	"aerialplan/internal/storage"
)

const orbitBody = `{"name":"tower","preset":"phantom4pro","pattern":{"type":"orbit","params":{"radius":30,"altitude":60,"segments":16,"orbitCount":1}}}`

var origin = geo.Origin{Latitude: 46.5, Longitude: 7.5, AltitudeMSL: 600}

type fixture struct {
	srv   *Server
	http  *httptest.Server
	store *storage.Store
	pipe  *pipeline.Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	metrics, err := observability.New(prometheus.NewRegistry())
	require.NoError(t, err)

	logger := slog.Default()
	svc := planner.NewService(geo.NewFrame(), planner.DefaultSettings, planner.NewCache(16, time.Minute), metrics, logger)
	pipe := pipeline.New(context.Background(), pipeline.Options{Concurrency: 1}, logger, store, svc, metrics)
	t.Cleanup(pipe.Stop)

	srv, err := NewServer(":0", store, pipe, svc, metrics, logger)
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &fixture{srv: srv, http: hs, store: store, pipe: pipe}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (f *fixture) setOrigin(t *testing.T) {
	t.Helper()
	_, err := f.pipe.SetOrigin(origin)
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestPlanEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "POST", "/plan", orbitBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "no origin yet")

	f.setOrigin(t)
	resp, body := f.do(t, "POST", "/plan", orbitBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res planner.Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Len(t, res.Waypoints, 17)
	assert.Equal(t, uint64(1), res.Generation)

	resp, _ = f.do(t, "POST", "/plan", `{"pattern":{"type":"orbit","params":{"radius":-1,"altitude":60,"segments":16}}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "POST", "/plan", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOriginEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "GET", "/origin", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := f.do(t, "PUT", "/origin", `{"lat":46.5,"lon":7.5,"alt":600}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, _ = f.do(t, "PUT", "/origin", `{"lat":46.5,"lon":7.5,"alt":600}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "second set must require reorigin")

	resp, _ = f.do(t, "PUT", "/origin", `{"lat":95,"lon":7.5,"alt":600}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, "POST", "/origin/reorigin", `{"lat":46.6,"lon":7.5,"alt":600}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ref geo.Reference
	require.NoError(t, json.Unmarshal(body, &ref))
	assert.Equal(t, uint64(2), ref.Generation)

	saved, err := f.store.LoadOrigin("default")
	require.NoError(t, err)
	assert.Equal(t, ref, saved)
}

func TestFrameConversion(t *testing.T) {
	f := newFixture(t)
	f.setOrigin(t)

	resp, body := f.do(t, "POST", "/frame/enu", `{"lat":46.5,"lon":7.5,"alt":650}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p geo.ENUPoint
	require.NoError(t, json.Unmarshal(body, &p))
	assert.InDelta(t, 0, p.East, 1e-9)
	assert.InDelta(t, 50, p.Up, 1e-9)

	resp, body = f.do(t, "POST", "/frame/geodetic", `{"east":0,"north":0,"up":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g geo.Geodetic
	require.NoError(t, json.Unmarshal(body, &g))
	assert.InDelta(t, 610, g.Altitude, 1e-9)
}

func TestPresetsAndOptics(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "GET", "/presets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"phantom4pro"`)

	resp, body = f.do(t, "POST", "/optics", `{"preset":"phantom4pro","altitude":100}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res planner.OpticsResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.InDelta(t, 2.741, res.GSD, 1e-3)

	resp, _ = f.do(t, "POST", "/optics", `{"preset":"phantom4pro"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitJobAndFetch(t *testing.T) {
	f := newFixture(t)
	f.setOrigin(t)

	results, unsub := f.pipe.Subscribe()
	defer unsub()

	resp, body := f.do(t, "POST", "/jobs", orbitBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var sub submitResponse
	require.NoError(t, json.Unmarshal(body, &sub))
	require.NotEmpty(t, sub.ID)

	select {
	case res := <-results:
		require.NoError(t, res.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("job never finished")
	}

	resp, body = f.do(t, "GET", "/jobs/"+sub.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var detail JobDetail
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, "completed", detail.Job.Status)
	assert.True(t, detail.Current)
	assert.Len(t, detail.Waypoints, 17)

	resp, body = f.do(t, "GET", "/jobs?limit=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), sub.ID)

	resp, _ = f.do(t, "GET", "/jobs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "GET", "/jobs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err := f.pipe.Reorigin(geo.Origin{Latitude: 46.7, Longitude: 7.5, AltitudeMSL: 600})
	require.NoError(t, err)
	_, body = f.do(t, "GET", "/jobs/"+sub.ID, "")
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.False(t, detail.Current)
	assert.True(t, detail.Job.Stale)
}

func TestStreamDeliversJobEvents(t *testing.T) {
	f := newFixture(t)
	f.setOrigin(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", f.http.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	_, err = f.pipe.Submit(pipeline.Job{Source: "test", Request: mustRequest(t)})
	require.NoError(t, err)

	line := make(chan string, 1)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "data: ") {
				line <- strings.TrimPrefix(sc.Text(), "data: ")
				return
			}
		}
	}()

	select {
	case data := <-line:
		var ev jobEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		assert.Equal(t, "completed", ev.Status)
		assert.Equal(t, "orbit", ev.Pattern)
		assert.Equal(t, 17, ev.Waypoints)
	case <-time.After(5 * time.Second):
		t.Fatal("no event on stream")
	}
}

func TestWebsocketReceivesJobEvents(t *testing.T) {
	f := newFixture(t)
	f.setOrigin(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.hub.Run(ctx)
	go f.srv.forwardResults(ctx)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.srv.hub.Clients(ctx) == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err = f.pipe.Submit(pipeline.Job{Source: "test", Request: mustRequest(t)})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev jobEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "test", ev.Source)
	assert.Equal(t, "completed", ev.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.setOrigin(t)
	f.do(t, "POST", "/plan", orbitBody)

	resp, body := f.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "aerialplan_plans_total")
	assert.Contains(t, string(body), `route="/plan"`)
}

func mustRequest(t *testing.T) planner.Request {
	t.Helper()
	var req planner.Request
	require.NoError(t, json.Unmarshal([]byte(orbitBody), &req))
	return req
}
