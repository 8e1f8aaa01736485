package web

import (
	"bufio"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raspifpv/internal/flightlog"
	"raspifpv/internal/overlay"
	"raspifpv/internal/telemetry"
	"raspifpv/internal/wire"
)

type fakeRx struct {
	snap  telemetry.Snapshot
	stats telemetry.SubscriberStats
}

func (f *fakeRx) Snapshot() telemetry.Snapshot     { return f.snap }
func (f *fakeRx) Stats() telemetry.SubscriberStats { return f.stats }

func homeSnapshot() telemetry.Snapshot {
	home := telemetry.Location{Latitude: 47.3977, Longitude: 8.5456, Altitude: 400}
	return telemetry.Snapshot{
		Location: telemetry.Location{Latitude: 47.3987, Longitude: 8.5456, Altitude: 450},
		Home:     home,
		Voltage:  16.8,
		Current:  12,
		RSSI:     -6,
	}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil && resp.StatusCode == http.StatusOK {
		require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestAPIStatus(t *testing.T) {
	rx := &fakeRx{
		snap:  homeSnapshot(),
		stats: telemetry.SubscriberStats{Running: true, Received: 1234567, Dropped: 3},
	}
	st := NewStatus(rx)
	st.SetStatic("rx", "224.1.1.43:9001")
	st.SetFlightLog(func() flightlog.RecorderStats {
		return flightlog.RecorderStats{FlightID: 7, Written: 10, LastError: "disk full"}
	})

	ts := httptest.NewServer(Handler(st, nil, nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	var snap StatusSnapshot
	resp := getJSON(t, ts.URL+"/api/status", &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "raspifpv", snap.Service)
	assert.Equal(t, "224.1.1.43:9001", snap.Group)
	assert.Equal(t, "1,234,567", snap.ReceivedHuman)
	assert.Equal(t, "3", snap.DroppedHuman)
	assert.Equal(t, "201.6 W", snap.PowerHuman)
	assert.Equal(t, -6.0, snap.Telemetry.RSSI)

	require.NotNil(t, snap.Home)
	assert.InDelta(t, 111.19, snap.Home.DistanceM, 0.05)
	assert.InDelta(t, 180, snap.Home.BearingDeg, 1e-6)
	assert.True(t, strings.HasPrefix(snap.Home.MGRS, "32T"), "mgrs=%q", snap.Home.MGRS)
	assert.True(t, strings.HasPrefix(snap.Home.UTM, "32N "), "utm=%q", snap.Home.UTM)

	require.NotNil(t, snap.FlightLog)
	assert.Equal(t, int64(7), snap.FlightLog.FlightID)
	assert.Equal(t, "disk full", snap.LastError)
}

func TestAPIStatus_NoHomeYet(t *testing.T) {
	rx := &fakeRx{stats: telemetry.SubscriberStats{LastError: "socket setup failed"}}
	ts := httptest.NewServer(Handler(NewStatus(rx), nil, nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	var snap StatusSnapshot
	getJSON(t, ts.URL+"/api/status", &snap)
	assert.Nil(t, snap.Home)
	assert.Empty(t, snap.PowerHuman)
	assert.Equal(t, "socket setup failed", snap.LastError)
}

func TestAPIStatus_CPUTemp(t *testing.T) {
	old := cpuTempPath
	t.Cleanup(func() { cpuTempPath = old })
	cpuTempPath = filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.WriteFile(cpuTempPath, []byte("48500\n"), 0o644))

	ts := httptest.NewServer(Handler(NewStatus(&fakeRx{}), nil, nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	var snap StatusSnapshot
	getJSON(t, ts.URL+"/api/status", &snap)
	require.NotNil(t, snap.CPUTempC)
	assert.InDelta(t, 48.5, *snap.CPUTempC, 1e-9)

	require.NoError(t, os.Remove(cpuTempPath))
	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "cpu_temp_c")
}

func TestAPICompass(t *testing.T) {
	rx := &fakeRx{snap: homeSnapshot()}
	view := NewView(rx.Snapshot, nil, 1280, 720, true)
	ts := httptest.NewServer(Handler(NewStatus(rx), view, nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	var fr struct {
		Width   int  `json:"width"`
		Height  int  `json:"height"`
		HasHome bool `json:"has_home"`
		Arrow   []struct {
			X, Y float64
		} `json:"arrow"`
		Labels []struct {
			Kind  string `json:"kind"`
			Text  string `json:"text"`
			Align string `json:"align"`
		} `json:"labels"`
	}
	resp := getJSON(t, ts.URL+"/api/compass?w=320&h=240", &fr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 320, fr.Width)
	assert.Equal(t, 240, fr.Height)
	assert.True(t, fr.HasHome)
	assert.Len(t, fr.Arrow, 7)

	kinds := map[string]string{}
	for _, l := range fr.Labels {
		kinds[l.Kind] = l.Text
	}
	assert.Equal(t, "111 m", kinds["distance"])
	assert.Equal(t, "450 m alt", kinds["altitude"])

	getJSON(t, ts.URL+"/api/compass", &fr)
	assert.Equal(t, 1280, fr.Width)

	view.SetShowAltitude(false)
	getJSON(t, ts.URL+"/api/compass", &fr)
	for _, l := range fr.Labels {
		assert.NotEqual(t, "altitude", l.Kind)
	}

	for _, q := range []string{"w=0", "h=abc", "w=99999"} {
		resp := getJSON(t, ts.URL+"/api/compass?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestOverlayPNG(t *testing.T) {
	r, err := overlay.NewRenderer()
	require.NoError(t, err)
	rx := &fakeRx{snap: homeSnapshot()}
	view := NewView(rx.Snapshot, r, 640, 360, false)
	ts := httptest.NewServer(Handler(NewStatus(rx), view, nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/overlay.png?w=160&h=120")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestOverlayPNG_NoRenderer(t *testing.T) {
	view := NewView(nil, nil, 640, 360, false)
	ts := httptest.NewServer(Handler(NewStatus(nil), view, nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/overlay.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestTelemetryStream(t *testing.T) {
	b := NewSampleBroadcaster()
	b.Publish(wire.Power{Voltage: 16.8, Current: 12})

	ts := httptest.NewServer(Handler(NewStatus(nil), nil, b, SettingsStore{}, nil, nil))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/telemetry/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream; charset=utf-8", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return "", ""
	}

	event, data := readEvent()
	assert.Equal(t, "power", event)
	assert.Contains(t, data, `"voltage":16.8`)

	b.Publish(wire.Signal{RSSI: -7})
	event, data = readEvent()
	assert.Equal(t, "signal", event)
	assert.Contains(t, data, `"rssi":-7`)

	cancel()
	require.Eventually(t, func() bool { return b.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRootPage(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(&fakeRx{}), nil, nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}

	nf, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get /nope: %v", err)
	}
	defer nf.Body.Close()
	if nf.StatusCode != http.StatusNotFound {
		t.Fatalf("status code=%d want 404", nf.StatusCode)
	}
}

func TestAPIAbout(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(nil), nil, nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	var about AboutResponse
	getJSON(t, ts.URL+"/api/about", &about)
	if about.Service != "raspifpv" || about.GoVersion == "" {
		t.Fatalf("about=%+v", about)
	}
}
