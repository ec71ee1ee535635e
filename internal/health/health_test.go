package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/netaudit/internal/clock"
	"grimm.is/netaudit/internal/device"
)

func fixed(status Status) CheckFunc {
	return func(context.Context) Check { return Check{Status: status} }
}

func TestChecker_OverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks []Status
		want   Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(0)
			for i, s := range tt.checks {
				c.Register(string(rune('a'+i)), fixed(s))
			}
			report := c.Check(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Checks, len(tt.checks))
		})
	}
}

func TestChecker_Cache(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(1700000000, 0))
	c := NewChecker(5 * time.Second).WithClock(clk)

	var runs atomic.Int32
	c.Register("counted", func(context.Context) Check {
		runs.Add(1)
		return Check{Status: StatusHealthy}
	})

	c.Check(context.Background())
	c.Check(context.Background())
	assert.Equal(t, int32(1), runs.Load())

	clk.Advance(5 * time.Second)
	report := c.Check(context.Background())
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, "counted", report.Checks["counted"].Name)
	assert.Equal(t, clk.Now(), report.Checks["counted"].LastChecked)
}

type failingInventory struct{}

func (failingInventory) Devices(context.Context) ([]device.Target, error) {
	return nil, errors.New("no responders")
}

func TestBackendCheck(t *testing.T) {
	ctx := context.Background()

	ok := BackendCheck(device.Static{
		{IP: "192.168.1.1", MAC: "AA:AA:AA:AA:AA:AA", IsGateway: true},
		{IP: "192.168.1.20", MAC: "BB:BB:BB:BB:BB:BB"},
	}, time.Second)(ctx)
	assert.Equal(t, StatusHealthy, ok.Status)
	assert.Equal(t, "2 devices", ok.Message)

	noGateway := BackendCheck(device.Static{{IP: "192.168.1.20"}}, time.Second)(ctx)
	assert.Equal(t, StatusDegraded, noGateway.Status)

	failed := BackendCheck(failingInventory{}, time.Second)(ctx)
	assert.Equal(t, StatusUnhealthy, failed.Status)
	assert.Contains(t, failed.Message, "no responders")
}

type connState bool

func (c connState) Connected() bool { return bool(c) }

func TestConnectionCheck(t *testing.T) {
	assert.Equal(t, StatusHealthy, ConnectionCheck(connState(true))(context.Background()).Status)
	assert.Equal(t, StatusDegraded, ConnectionCheck(connState(false))(context.Background()).Status)
}

func TestHandler(t *testing.T) {
	c := NewChecker(0)
	c.Register("backend", fixed(StatusHealthy))

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/api/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, StatusHealthy, report.Status)

	c.Register("backend", fixed(StatusUnhealthy))
	rr = httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestLivenessHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	LivenessHandler().ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}
