package traffic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"grimm.is/netaudit/internal/clock"
	"grimm.is/netaudit/internal/events"
	"grimm.is/netaudit/internal/gateway"
	"grimm.is/netaudit/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) AddLog(address, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, address+" "+message)
}

func (s *recordingSink) contains(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func ok(context.Context, json.RawMessage) (any, error) { return nil, nil }

// newBackend returns a loopback transport serving the capture commands.
func newBackend(t *testing.T, startErr error) *gateway.Local {
	t.Helper()
	l := gateway.NewLocal()
	require.NoError(t, l.Handle("start_traffic_capture", func(context.Context, json.RawMessage) (any, error) {
		return nil, startErr
	}))
	require.NoError(t, l.Handle("stop_traffic_capture", ok))
	t.Cleanup(func() { l.Close() })
	return l
}

func packet(i int, intercepted bool) Packet {
	return Packet{
		ID:            uint64(i),
		Timestamp:     int64(1700000000000 + i),
		SourceIP:      "192.168.1.20",
		DestinationIP: "192.168.1.1",
		Protocol:      "TCP",
		Length:        100,
		Info:          fmt.Sprintf("packet %d", i),
		IsIntercepted: intercepted,
	}
}

func TestRing(t *testing.T) {
	r := NewRing[int](5)
	assert.Empty(t, r.Snapshot())

	for i := 1; i <= 7; i++ {
		r.Push(i)
	}
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 5, r.Cap())
	assert.Equal(t, []int{7, 6, 5, 4, 3}, r.Snapshot())

	snap := r.Snapshot()
	snap[0] = 99
	assert.Equal(t, 7, r.Snapshot()[0], "snapshot must be a copy")

	r.Clear()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Snapshot())

	r.Push(8)
	assert.Equal(t, []int{8}, r.Snapshot())
}

func TestIngest_AllBufferKeepsNewest(t *testing.T) {
	m := NewMonitor(newBackend(t, nil), &recordingSink{})

	const n = 5100
	for i := 1; i <= n; i++ {
		m.Ingest(packet(i, false))
	}
	m.flush()

	s := m.State()
	require.Len(t, s.Packets, 5000)
	assert.Equal(t, uint64(n), s.Packets[0].Seq)
	assert.Equal(t, uint64(n-4999), s.Packets[4999].Seq)
	for i := 1; i < len(s.Packets); i++ {
		require.Greater(t, s.Packets[i-1].Seq, s.Packets[i].Seq)
	}
	assert.Empty(t, s.JammedPackets)
}

func TestIngest_InterceptedBuffer(t *testing.T) {
	m := NewMonitor(newBackend(t, nil), &recordingSink{})

	// every tenth of 3000 events is intercepted
	for i := 1; i <= 3000; i++ {
		m.Ingest(packet(i, i%10 == 0))
	}
	m.flush()

	s := m.State()
	require.Len(t, s.JammedPackets, 300)
	for _, r := range s.JammedPackets {
		assert.True(t, r.IsIntercepted)
	}
	assert.Len(t, s.Packets, 3000)
}

func TestIngest_InterceptedOverflow(t *testing.T) {
	m := NewMonitor(newBackend(t, nil), &recordingSink{}, WithCapacities(10, 3))

	for i := 1; i <= 8; i++ {
		m.Ingest(packet(i, true))
	}
	m.flush()

	s := m.State()
	require.Len(t, s.JammedPackets, 3)
	assert.Equal(t, uint64(8), s.JammedPackets[0].Seq)
	assert.Equal(t, uint64(6), s.JammedPackets[2].Seq)
}

func TestIngest_AssignsUniqueIdentifiers(t *testing.T) {
	m := NewMonitor(newBackend(t, nil), &recordingSink{})
	for i := 1; i <= 50; i++ {
		m.Ingest(packet(i, false))
	}
	m.flush()

	seen := make(map[string]bool)
	for _, r := range m.State().Packets {
		require.NotEmpty(t, r.UID)
		require.False(t, seen[r.UID], "duplicate uid %s", r.UID)
		seen[r.UID] = true
	}
}

func TestEventStream_AlternatingEvents(t *testing.T) {
	backend := newBackend(t, nil)
	m := NewMonitor(backend, &recordingSink{})
	require.NoError(t, m.Start(context.Background()))
	defer m.Close()

	for i := 1; i <= 12; i++ {
		require.NoError(t, backend.Emit("traffic-event", packet(i, i%2 == 0)))
	}
	m.flush()

	s := m.State()
	require.Len(t, s.Packets, 12)
	for i, r := range s.Packets {
		assert.Equal(t, uint64(12-i), r.Seq)
		assert.Equal(t, uint64(12-i), r.ID)
	}
	require.Len(t, s.JammedPackets, 6)
	assert.Equal(t, uint64(12), s.JammedPackets[0].ID)
}

func TestEventStream_MalformedPayloadDropped(t *testing.T) {
	m := NewMonitor(newBackend(t, nil), &recordingSink{})
	before := testutil.ToFloat64(metrics.Get().TrafficDecodeErrors)

	m.handle([]byte(`{"id": "not a number"`))
	m.handle([]byte(`{"id": 1, "length": 40}`))
	m.flush()

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Get().TrafficDecodeErrors))
	s := m.State()
	require.Len(t, s.Packets, 1)
	assert.Equal(t, 40, s.Packets[0].Length)
}

func TestToggleMonitoring_StartAndStop(t *testing.T) {
	hub := events.NewHub()
	states := hub.Subscribe(8, events.EventTrafficState)
	defer hub.Unsubscribe(states)

	sink := &recordingSink{}
	m := NewMonitor(newBackend(t, nil), sink, WithHub(hub))

	m.ToggleMonitoring(context.Background())
	assert.True(t, m.Active())
	assert.True(t, sink.contains("traffic capture started"))

	for i := 1; i <= 4; i++ {
		m.Ingest(packet(i, false))
	}
	m.flush()

	m.ToggleMonitoring(context.Background())
	assert.False(t, m.Active())
	assert.True(t, sink.contains("traffic capture stopped"))

	// Stopping keeps the data inspectable
	m.flush()
	s := m.State()
	assert.False(t, s.Active)
	assert.Len(t, s.Packets, 4)

	require.Len(t, states, 2)
	assert.Equal(t, events.TrafficStateData{Active: true}, (<-states).Data)
	assert.Equal(t, events.TrafficStateData{Active: false}, (<-states).Data)
}

func TestToggleMonitoring_StartClearsPreviousSession(t *testing.T) {
	m := NewMonitor(newBackend(t, nil), &recordingSink{})

	for i := 1; i <= 4; i++ {
		m.Ingest(packet(i, true))
	}
	m.flush()
	require.Len(t, m.State().Packets, 4)

	m.ToggleMonitoring(context.Background())
	s := m.State()
	assert.True(t, s.Active)
	assert.Empty(t, s.Packets)
	assert.Empty(t, s.JammedPackets)

	m.Ingest(packet(1, false))
	m.flush()
	assert.Equal(t, uint64(1), m.State().Packets[0].Seq, "sequence restarts per session")
}

func TestToggleMonitoring_StartFailureForcesInactive(t *testing.T) {
	sink := &recordingSink{}
	m := NewMonitor(newBackend(t, errors.New("interface down")), sink)

	m.ToggleMonitoring(context.Background())

	assert.False(t, m.Active())
	assert.True(t, sink.contains("failed to start traffic capture"))
	assert.True(t, sink.contains("interface down"))
}

func TestToggleMonitoring_StartTimeout(t *testing.T) {
	backend := gateway.NewLocal()
	defer backend.Close()
	require.NoError(t, backend.Handle("start_traffic_capture", func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	sink := &recordingSink{}
	m := NewMonitor(backend, sink, WithTimeout(20*time.Millisecond))
	m.ToggleMonitoring(context.Background())

	assert.False(t, m.Active())
	assert.True(t, sink.contains("timed out"))
}

func TestClearPackets(t *testing.T) {
	hub := events.NewHub()
	snaps := hub.Subscribe(8, events.EventTrafficSnapshot)
	defer hub.Unsubscribe(snaps)

	m := NewMonitor(newBackend(t, nil), &recordingSink{}, WithHub(hub))
	m.ToggleMonitoring(context.Background())

	for i := 1; i <= 10; i++ {
		m.Ingest(packet(i, i%2 == 0))
	}
	m.flush()
	require.NotZero(t, m.State().Speed)
	<-snaps

	m.ClearPackets()

	// published immediately, without waiting for a tick
	require.Len(t, snaps, 1)
	cleared := (<-snaps).Data.(Snapshot)
	assert.Empty(t, cleared.Packets)
	assert.Empty(t, cleared.JammedPackets)
	assert.Zero(t, cleared.Speed)

	m.flush()
	s := m.State()
	assert.Empty(t, s.Packets)
	assert.Empty(t, s.JammedPackets)
	assert.Zero(t, s.Speed)

	m.Ingest(packet(1, false))
	m.flush()
	assert.Equal(t, uint64(1), m.State().Packets[0].Seq)
}

func TestFlush_Speed(t *testing.T) {
	m := NewMonitor(newBackend(t, nil), &recordingSink{}, WithInterval(200*time.Millisecond))
	m.ToggleMonitoring(context.Background())

	for i := 1; i <= 10; i++ {
		m.Ingest(packet(i, false)) // 100 bytes each
	}
	m.flush()
	assert.InDelta(t, 5000.0, m.State().Speed, 0.001)

	// accumulator resets between ticks
	m.flush()
	assert.Zero(t, m.State().Speed)
}

func TestFlush_IdleResetsSpeed(t *testing.T) {
	m := NewMonitor(newBackend(t, nil), &recordingSink{})
	m.ToggleMonitoring(context.Background())
	m.Ingest(packet(1, false))
	m.flush()
	require.NotZero(t, m.State().Speed)

	m.ToggleMonitoring(context.Background())
	m.ClearPackets()
	m.flush()
	s := m.State()
	assert.False(t, s.Active)
	assert.Zero(t, s.Speed)
}

func TestStart_FlushesOnTicker(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(1700000000, 0))
	hub := events.NewHub()
	snaps := hub.Subscribe(8, events.EventTrafficSnapshot)
	defer hub.Unsubscribe(snaps)

	m := NewMonitor(newBackend(t, nil), &recordingSink{}, WithClock(clk), WithHub(hub))
	require.NoError(t, m.Start(context.Background()))
	defer m.Close()
	require.Equal(t, 1, clk.Tickers())

	m.Ingest(packet(1, true))
	assert.Empty(t, m.State().Packets, "nothing is published before a tick")

	clk.Advance(200 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(m.State().Packets) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, m.State().JammedPackets, 1)
}

func TestStartAndClose(t *testing.T) {
	backend := newBackend(t, nil)
	m := NewMonitor(backend, &recordingSink{}, WithEvent("pkt"))

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, 1, backend.Listeners("pkt"))
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, m.Close())
	assert.Zero(t, backend.Listeners("pkt"))
	require.NoError(t, m.Close())

	// events after close are not ingested
	require.NoError(t, backend.Emit("pkt", packet(1, false)))
	m.flush()
	assert.Empty(t, m.State().Packets)
}

func TestStart_SubscribeFailure(t *testing.T) {
	backend := gateway.NewLocal()
	require.NoError(t, backend.Close())

	m := NewMonitor(backend, &recordingSink{})
	err := m.Start(context.Background())
	assert.ErrorIs(t, err, gateway.ErrClosed)
}
