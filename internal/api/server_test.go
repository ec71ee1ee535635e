package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"grimm.is/netaudit/internal/device"
	"grimm.is/netaudit/internal/events"
	"grimm.is/netaudit/internal/health"
	"grimm.is/netaudit/internal/jammer"
	"grimm.is/netaudit/internal/logging"
	"grimm.is/netaudit/internal/traffic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJammer struct {
	mu      sync.Mutex
	calls   []string
	devices []device.Target
	jammed  []string
}

func (f *fakeJammer) ToggleJammer(_ context.Context, address string, devices []device.Target) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, address)
	f.devices = devices
	f.jammed = append(f.jammed, address)
}

func (f *fakeJammer) Status() jammer.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return jammer.Status{
		JammedDevices:     append([]string{}, f.jammed...),
		JamPendingDevices: []string{},
	}
}

type fakeMonitor struct {
	mu      sync.Mutex
	active  bool
	cleared int
	packets []traffic.Record
}

func (f *fakeMonitor) ToggleMonitoring(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = !f.active
}

func (f *fakeMonitor) ClearPackets() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.packets = nil
}

func (f *fakeMonitor) State() traffic.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return traffic.Snapshot{
		Active:        f.active,
		Packets:       append([]traffic.Record{}, f.packets...),
		JammedPackets: []traffic.Record{},
	}
}

type failingInventory struct{}

func (failingInventory) Devices(context.Context) ([]device.Target, error) {
	return nil, errors.New("backend unreachable")
}

var testDevices = device.Static{
	{IP: "192.168.1.1", MAC: "AA:AA:AA:AA:AA:AA", IsGateway: true},
	{IP: "192.168.1.20", MAC: "BB:BB:BB:BB:BB:BB"},
}

type fixture struct {
	server  *Server
	jammer  *fakeJammer
	monitor *fakeMonitor
	status  *logging.StatusLog
	hub     *events.Hub
}

func newFixture(t *testing.T, inv device.Inventory) *fixture {
	t.Helper()
	hub := events.NewHub()
	f := &fixture{
		jammer:  &fakeJammer{},
		monitor: &fakeMonitor{},
		status:  logging.NewStatusLog(100, nil, hub),
		hub:     hub,
	}
	s, err := NewServer(ServerOptions{
		Jammer:    f.jammer,
		Monitor:   f.monitor,
		Inventory: inv,
		Logs:      f.status.Buffer(),
		Hub:       hub,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	f.server = s
	return f
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(ServerOptions{})
	assert.Error(t, err)
}

func TestHandleToggleJam(t *testing.T) {
	f := newFixture(t, testDevices)

	rr := f.do("POST", "/api/jam/192.168.1.20")
	require.Equal(t, http.StatusAccepted, rr.Code)

	var status jammer.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, []string{"192.168.1.20"}, status.JammedDevices)

	assert.Equal(t, []string{"192.168.1.20"}, f.jammer.calls)
	assert.Len(t, f.jammer.devices, 2, "toggle receives the current inventory")
}

func TestHandleToggleJam_InvalidAddress(t *testing.T) {
	f := newFixture(t, testDevices)

	rr := f.do("POST", "/api/jam/not-an-ip")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, f.jammer.calls)
}

func TestHandleToggleJam_InventoryFailure(t *testing.T) {
	f := newFixture(t, failingInventory{})

	rr := f.do("POST", "/api/jam/192.168.1.20")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "backend unreachable")
	assert.Empty(t, f.jammer.calls)
}

func TestHandleJamStatus(t *testing.T) {
	f := newFixture(t, testDevices)

	rr := f.do("GET", "/api/jam")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"jammedDevices":[],"jamPendingDevices":[]}`, rr.Body.String())
}

func TestHandleTraffic(t *testing.T) {
	f := newFixture(t, testDevices)
	f.monitor.packets = []traffic.Record{{Packet: traffic.Packet{ID: 1, Length: 64}, Seq: 1, UID: "u1"}}

	rr := f.do("GET", "/api/traffic")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap traffic.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.False(t, snap.Active)
	require.Len(t, snap.Packets, 1)
	assert.Equal(t, "u1", snap.Packets[0].UID)
	assert.Contains(t, rr.Body.String(), `"isActive":false`)
}

func TestHandleToggleTraffic(t *testing.T) {
	f := newFixture(t, testDevices)

	rr := f.do("POST", "/api/traffic/toggle")
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"active":true}`, rr.Body.String())

	rr = f.do("POST", "/api/traffic/toggle")
	assert.JSONEq(t, `{"active":false}`, rr.Body.String())
}

func TestHandleClearTraffic(t *testing.T) {
	f := newFixture(t, testDevices)

	rr := f.do("POST", "/api/traffic/clear")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, f.monitor.cleared)
}

func TestHandleDevices(t *testing.T) {
	f := newFixture(t, testDevices)

	rr := f.do("GET", "/api/devices")
	require.Equal(t, http.StatusOK, rr.Code)

	var devices []device.Target
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &devices))
	assert.Equal(t, []device.Target(testDevices), devices)

	f = newFixture(t, failingInventory{})
	assert.Equal(t, http.StatusBadGateway, f.do("GET", "/api/devices").Code)
}

func TestHandleLogs(t *testing.T) {
	f := newFixture(t, testDevices)
	for i := 0; i < 5; i++ {
		f.status.AddLog("192.168.1.20", "line")
	}
	f.status.AddLog("traffic", "traffic capture started")

	rr := f.do("GET", "/api/logs?limit=3")
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []logging.AppLogEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "traffic", entries[2].Source, "newest line last")

	rr = f.do("GET", "/api/logs?source=traffic")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "traffic capture started", entries[0].Message)

	rr = f.do("GET", "/api/logs?source=10.0.0.1")
	assert.JSONEq(t, `[]`, rr.Body.String())

	for _, bad := range []string{"0", "-1", "abc"} {
		assert.Equal(t, http.StatusBadRequest, f.do("GET", "/api/logs?limit="+bad).Code, bad)
	}
}

func TestRouting_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, testDevices)

	assert.Equal(t, http.StatusMethodNotAllowed, f.do("GET", "/api/jam/192.168.1.20").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do("DELETE", "/api/traffic").Code)
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/api/unknown").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, testDevices)
	f.do("GET", "/api/jam")

	rr := f.do("GET", "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "netaudit_api_requests_total"))
}

func TestMaxBodyMiddleware(t *testing.T) {
	f := newFixture(t, testDevices)
	f.server.config.MaxBodyBytes = 4
	handler := f.server.maxBodyMiddleware(4)(f.server.mux)

	req := httptest.NewRequest("POST", "/api/traffic/clear", strings.NewReader("too large"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestToggleLimit(t *testing.T) {
	hub := events.NewHub()
	jam := &fakeJammer{}
	s, err := NewServer(ServerOptions{
		Jammer:      jam,
		Monitor:     &fakeMonitor{},
		Inventory:   testDevices,
		Hub:         hub,
		ToggleLimit: 2,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	post := func(path, remote string) int {
		req := httptest.NewRequest("POST", path, nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusAccepted, post("/api/jam/192.168.1.20", "10.0.0.5:4000"))
	assert.Equal(t, http.StatusAccepted, post("/api/traffic/toggle", "10.0.0.5:4001"))
	assert.Equal(t, http.StatusTooManyRequests, post("/api/jam/192.168.1.20", "10.0.0.5:4002"))

	// Other clients and read routes are unaffected.
	assert.Equal(t, http.StatusAccepted, post("/api/traffic/toggle", "10.0.0.6:4000"))
	assert.Equal(t, http.StatusNoContent, post("/api/traffic/clear", "10.0.0.5:4003"))

	jam.mu.Lock()
	defer jam.mu.Unlock()
	assert.Len(t, jam.calls, 1)
}

func TestHealthRoutes(t *testing.T) {
	f := newFixture(t, testDevices)
	rr := f.do("GET", "/api/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	checker := health.NewChecker(0)
	checker.Register("backend", health.BackendCheck(failingInventory{}, time.Second))
	s, err := NewServer(ServerOptions{
		Jammer:    &fakeJammer{},
		Monitor:   &fakeMonitor{},
		Inventory: testDevices,
		Health:    checker,
	})
	require.NoError(t, err)

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, health.StatusUnhealthy, report.Checks["backend"].Status)

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
