// Package traffic ingests the traffic event stream of a monitoring session
// into two newest-first ring buffers and periodically publishes snapshots of
// them together with a throughput estimate.
package traffic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"grimm.is/netaudit/internal/clock"
	"grimm.is/netaudit/internal/config"
	"grimm.is/netaudit/internal/events"
	"grimm.is/netaudit/internal/gateway"
	"grimm.is/netaudit/internal/logging"
	"grimm.is/netaudit/internal/metrics"
)

// StatusSource is the address under which monitor status lines are logged.
const StatusSource = "traffic"

// ErrAlreadyStarted is returned by Start on a running monitor.
var ErrAlreadyStarted = errors.New("traffic monitor already started")

// StatusSink receives human-readable status lines keyed by address.
type StatusSink interface {
	AddLog(address, message string)
}

// Monitor owns the traffic buffers of one control plane.
type Monitor struct {
	gw      gateway.Gateway
	sink    StatusSink
	logger  *logging.Logger
	hub     *events.Hub
	metrics *metrics.Registry
	clock   clock.Clock

	timeout  time.Duration
	interval time.Duration
	startCmd string
	stopCmd  string
	event    string
	allCap   int
	interCap int

	mu          sync.Mutex
	active      bool
	toggling    bool
	all         *Ring[Record]
	intercepted *Ring[Record]
	seq         uint64
	bytes       int64
	published   Snapshot

	lifeMu      sync.Mutex
	unsubscribe gateway.Unsubscribe
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock driving the flush ticker.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithCapacities sets the sizes of the all and intercepted buffers.
func WithCapacities(all, intercepted int) Option {
	return func(m *Monitor) {
		if all > 0 {
			m.allCap = all
		}
		if intercepted > 0 {
			m.interCap = intercepted
		}
	}
}

// WithInterval sets the flush period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithTimeout sets the race timeout of the start and stop commands.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithCommands overrides the capture command names.
func WithCommands(start, stop string) Option {
	return func(m *Monitor) {
		if start != "" {
			m.startCmd = start
		}
		if stop != "" {
			m.stopCmd = stop
		}
	}
}

// WithEvent overrides the traffic event name.
func WithEvent(name string) Option {
	return func(m *Monitor) {
		if name != "" {
			m.event = name
		}
	}
}

// WithHub publishes snapshots and session state on hub.
func WithHub(h *events.Hub) Option {
	return func(m *Monitor) { m.hub = h }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// FromConfig applies the traffic block of cfg.
func FromConfig(cfg *config.TrafficConfig) Option {
	return func(m *Monitor) {
		WithCapacities(cfg.AllCapacity, cfg.InterceptedCapacity)(m)
		WithInterval(cfg.Interval())(m)
		WithCommands(cfg.StartCommand, cfg.StopCommand)(m)
		WithEvent(cfg.Event)(m)
	}
}

// NewMonitor creates an inactive monitor. Call Start to subscribe to the
// event stream.
func NewMonitor(gw gateway.Gateway, sink StatusSink, opts ...Option) *Monitor {
	m := &Monitor{
		gw:       gw,
		sink:     sink,
		metrics:  metrics.Get(),
		clock:    clock.Default,
		timeout:  config.DefaultCommandTimeout,
		interval: config.DefaultFlushInterval,
		startCmd: config.DefaultStartCaptureCommand,
		stopCmd:  config.DefaultStopCaptureCommand,
		event:    config.DefaultTrafficEvent,
		allCap:   config.DefaultAllCapacity,
		interCap: config.DefaultInterceptedCapacity,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("traffic")
	}
	m.all = NewRing[Record](m.allCap)
	m.intercepted = NewRing[Record](m.interCap)
	m.published = emptySnapshot()
	return m
}

// Start subscribes to the traffic events and starts the flush loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.stopCh != nil {
		return ErrAlreadyStarted
	}

	unsub, err := m.gw.Listen(ctx, m.event, m.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", m.event, err)
	}
	m.unsubscribe = unsub
	m.stopCh = make(chan struct{})

	ticker := m.clock.NewTicker(m.interval)
	m.wg.Add(1)
	go m.run(ticker, m.stopCh)

	m.logger.Info("Traffic monitor started", "event", m.event, "interval", m.interval)
	return nil
}

// Close unsubscribes from the event stream and stops the flush loop. It
// returns once the loop has exited.
func (m *Monitor) Close() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.stopCh == nil {
		return nil
	}

	var err error
	if m.unsubscribe != nil {
		err = m.unsubscribe()
		m.unsubscribe = nil
	}
	close(m.stopCh)
	m.wg.Wait()
	m.stopCh = nil
	return err
}

func (m *Monitor) run(ticker clock.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			m.flush()
		case <-stop:
			return
		}
	}
}

func (m *Monitor) handle(data []byte) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		m.metrics.TrafficDecodeErrors.Inc()
		m.logger.Warn("Dropping malformed traffic event", "event", m.event, "error", err)
		return
	}
	m.Ingest(p)
}

// ToggleMonitoring stops an active session or starts a new one. Failures
// are reported through the status sink.
func (m *Monitor) ToggleMonitoring(ctx context.Context) {
	m.mu.Lock()
	if m.toggling {
		m.mu.Unlock()
		m.sink.AddLog(StatusSource, fmt.Sprintf("%s capture toggle already in flight, ignoring", logging.PrefixWarn))
		return
	}
	m.toggling = true
	wasActive := m.active
	if !wasActive {
		m.resetLocked()
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.toggling = false
		m.mu.Unlock()
	}()

	if wasActive {
		m.stopSession(ctx)
	} else {
		m.startSession(ctx)
	}
}

func (m *Monitor) startSession(ctx context.Context) {
	err := gateway.InvokeTimeout(ctx, m.gw, m.timeout, m.startCmd, StatusSource, nil, nil)
	if err != nil {
		m.setActive(false)
		m.sink.AddLog(StatusSource, fmt.Sprintf("%s failed to start traffic capture: %v", logging.PrefixError, err))
		return
	}
	m.setActive(true)
	m.sink.AddLog(StatusSource, "traffic capture started")
}

func (m *Monitor) stopSession(ctx context.Context) {
	err := gateway.InvokeTimeout(ctx, m.gw, m.timeout, m.stopCmd, StatusSource, nil, nil)
	m.setActive(false)
	if err != nil {
		m.sink.AddLog(StatusSource, fmt.Sprintf("%s failed to stop traffic capture: %v", logging.PrefixError, err))
		return
	}
	m.sink.AddLog(StatusSource, "traffic capture stopped")
}

func (m *Monitor) setActive(active bool) {
	m.mu.Lock()
	m.active = active
	m.mu.Unlock()

	if active {
		m.metrics.TrafficActive.Set(1)
	} else {
		m.metrics.TrafficActive.Set(0)
	}
	if m.hub != nil {
		m.hub.EmitTrafficState(active)
	}
}

// ClearPackets empties both buffers and publishes an empty snapshot.
func (m *Monitor) ClearPackets() {
	m.mu.Lock()
	m.resetLocked()
	snap := m.published
	snap.Active = m.active
	m.mu.Unlock()

	m.observeBuffers(0, 0)
	m.metrics.TrafficSpeed.Set(0)
	if m.hub != nil {
		m.hub.EmitTrafficSnapshot(snap)
	}
}

// resetLocked clears buffers, accumulator and sequence. Caller holds mu.
func (m *Monitor) resetLocked() {
	m.all.Clear()
	m.intercepted.Clear()
	m.seq = 0
	m.bytes = 0
	m.published = emptySnapshot()
}

// Ingest stamps p and stores it.
func (m *Monitor) Ingest(p Packet) {
	m.mu.Lock()
	m.seq++
	rec := Record{Packet: p, Seq: m.seq, UID: uuid.NewString()}
	m.all.Push(rec)
	if p.IsIntercepted {
		m.intercepted.Push(rec)
	}
	m.bytes += int64(p.Length)
	m.mu.Unlock()

	kind := "normal"
	if p.IsIntercepted {
		kind = "intercepted"
	}
	m.metrics.TrafficPackets.WithLabelValues(kind).Inc()
	if p.Length > 0 {
		m.metrics.TrafficBytes.Add(float64(p.Length))
	}
}

// flush publishes the buffers and the throughput since the previous tick.
func (m *Monitor) flush() {
	m.mu.Lock()
	if !m.active && m.all.Len() == 0 {
		changed := m.published.Speed != 0
		m.published.Speed = 0
		m.bytes = 0
		snap := m.published
		snap.Active = false
		m.mu.Unlock()

		m.metrics.TrafficSpeed.Set(0)
		if changed && m.hub != nil {
			m.hub.EmitTrafficSnapshot(snap)
		}
		return
	}

	speed := float64(m.bytes) * float64(time.Second) / float64(m.interval)
	m.bytes = 0
	m.published = Snapshot{
		Packets:       m.all.Snapshot(),
		JammedPackets: m.intercepted.Snapshot(),
		Speed:         speed,
	}
	snap := m.published
	snap.Active = m.active
	m.mu.Unlock()

	m.metrics.TrafficSpeed.Set(speed)
	m.observeBuffers(len(snap.Packets), len(snap.JammedPackets))
	if m.hub != nil {
		m.hub.EmitTrafficSnapshot(snap)
	}
}

func (m *Monitor) observeBuffers(all, intercepted int) {
	m.metrics.TrafficBuffer.WithLabelValues("all").Set(float64(all))
	m.metrics.TrafficBuffer.WithLabelValues("intercepted").Set(float64(intercepted))
}

// State returns a copy of the latest published snapshot with the live
// session flag.
func (m *Monitor) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Active:        m.active,
		Packets:       append([]Record{}, m.published.Packets...),
		JammedPackets: append([]Record{}, m.published.JammedPackets...),
		Speed:         m.published.Speed,
	}
}

// Active reports whether a monitoring session is running.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Packets:       []Record{},
		JammedPackets: []Record{},
	}
}
