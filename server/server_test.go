package server

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multispidey/spideysync/core"
	"github.com/multispidey/spideysync/levels"
	"github.com/multispidey/spideysync/messages"
	"github.com/multispidey/spideysync/metrics"
	"github.com/multispidey/spideysync/registry"
)

const eventTimeout = 2 * time.Second

type countingRegistry struct {
	*registry.Players
	mu    sync.Mutex
	calls int
}

func (r *countingRegistry) TryBindEndpoint(slot core.PlayerSlot, addr *net.UDPAddr) bool {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.Players.TryBindEndpoint(slot, addr)
}

func (r *countingRegistry) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingSink struct {
	mu     sync.Mutex
	states []core.PlayerState
	err    error
	panic  bool
}

func (s *recordingSink) WriteState(state core.PlayerState) error {
	if s.panic {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
	return s.err
}

func (s *recordingSink) States() []core.PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PlayerState(nil), s.states...)
}

type chanObserver[E any] chan E

func (c chanObserver[E]) Notify(e E) { c <- e }

func next[E any](t *testing.T, c chanObserver[E]) E {
	t.Helper()
	select {
	case e := <-c:
		return e
	case <-time.After(eventTimeout):
		t.Fatalf("no %T event within %v", *new(E), eventTimeout)
	}
	panic("unreachable")
}

func none[E any](t *testing.T, c chanObserver[E]) {
	t.Helper()
	select {
	case e := <-c:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

type fixture struct {
	session   *Session
	registry  *countingRegistry
	sink      *recordingSink
	metrics   *metrics.Metrics
	locations chanObserver[core.LocationEvent]
	endpoints chanObserver[core.EndpointEvent]
}

func newFixture(t *testing.T, port int) *fixture {
	f := &fixture{
		registry:  &countingRegistry{Players: registry.New(nil)},
		sink:      &recordingSink{},
		metrics:   metrics.New(nil),
		locations: make(chanObserver[core.LocationEvent], 16),
		endpoints: make(chanObserver[core.EndpointEvent], 16),
	}
	f.session = New(Config{IP: net.IPv4(127, 0, 0, 1), Port: port},
		WithSink(f.sink),
		WithMetrics(f.metrics),
		WithLevels(levels.Default()),
	)
	return f
}

func (f *fixture) start(t *testing.T) {
	require.NoError(t, f.session.Start(f.registry, f.locations, f.endpoints))
	t.Cleanup(f.session.Stop)
}

func (f *fixture) client(t *testing.T) *net.UDPConn {
	addr := f.session.Addr().(*net.UDPAddr)
	conn, err := messages.CreateClientSocket(addr.IP, addr.Port)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *net.UDPConn, data []byte) {
	t.Helper()
	_, err := conn.Write(data)
	require.NoError(t, err)
}

// sync sends a registration for a fresh slot and waits for its event.
// Datagrams are handled one at a time, so everything sent before it has
// been dispatched once the event arrives.
func (f *fixture) sync(t *testing.T, conn *net.UDPConn, slot core.PlayerSlot) core.EndpointEvent {
	t.Helper()
	send(t, conn, []byte{messages.TagSpinAWeb, uint8(slot)})
	e := next(t, f.endpoints)
	require.Equal(t, slot, e.Slot)
	return e
}

func freePort(t *testing.T) int {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func TestShortDatagramsAreDropped(t *testing.T) {
	f := newFixture(t, 0)
	f.start(t)
	conn := f.client(t)

	send(t, conn, []byte{})
	send(t, conn, []byte{messages.TagSpinAWeb})
	send(t, conn, []byte{messages.TagSpiderman})
	f.sync(t, conn, 8)

	assert.Equal(t, 1, f.registry.Calls(), "only the sync registration reaches the registry")
	assert.Empty(t, f.sink.States())
	none(t, f.locations)
	none(t, f.endpoints)
	assert.True(t, f.session.Running())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.DatagramsDropped.WithLabelValues(metrics.ReasonShort)))
}

func TestDuplicateRegistration(t *testing.T) {
	f := newFixture(t, 0)
	f.start(t)
	conn := f.client(t)

	send(t, conn, []byte{messages.TagSpinAWeb, 3})
	e := next(t, f.endpoints)
	assert.Equal(t, core.PlayerSlot(3), e.Slot)
	assert.Equal(t, "127.0.0.1", e.Addr)
	assert.Equal(t, conn.LocalAddr().(*net.UDPAddr).Port, e.Port)
	assert.Equal(t, 1, f.session.PlayerCount())

	send(t, conn, []byte{messages.TagSpinAWeb, 3})
	f.sync(t, conn, 8)

	assert.Equal(t, 3, f.registry.Calls())
	assert.Equal(t, 2, f.session.PlayerCount(), "the repeated registration must not count")
	none(t, f.endpoints)
}

func TestStateUpdateOffsets(t *testing.T) {
	f := newFixture(t, 0)
	f.start(t)
	conn := f.client(t)

	send(t, conn, []byte{messages.TagSpiderman, 3, 1, 0xaa})
	loc := next(t, f.locations)
	assert.Equal(t, core.LocationEvent{Slot: 3, Level: "Training"}, loc)

	send(t, conn, []byte{messages.TagSpiderman, 2, 1, 0xbb})
	next(t, f.locations)

	states := f.sink.States()
	require.Len(t, states, 2)
	assert.Equal(t, 1, states[0].Offset)
	assert.Equal(t, 0, states[1].Offset)
	assert.Equal(t, 0, states[0].PlayerCount)
}

// The host never reports its own state through this channel. Should a
// client claim slot 1 anyway, the update is dropped instead of reaching
// the sink with offset -1.
func TestHostSlotIsDropped(t *testing.T) {
	f := newFixture(t, 0)
	f.start(t)
	conn := f.client(t)

	send(t, conn, []byte{messages.TagSpiderman, uint8(core.HostSlot), 1, 0xaa})
	send(t, conn, []byte{messages.TagSpinAWeb, uint8(core.HostSlot)})
	f.sync(t, conn, 8)

	assert.Empty(t, f.sink.States())
	none(t, f.locations)
	assert.Equal(t, 1, f.registry.Calls(), "host registration never reaches the registry")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.DatagramsDropped.WithLabelValues(metrics.ReasonHostSlot)))
}

func TestUnknownAndMalformedAreDropped(t *testing.T) {
	f := newFixture(t, 0)
	f.start(t)
	conn := f.client(t)

	send(t, conn, []byte{0xff, 2, 3, 4})
	send(t, conn, []byte{0x00, 2})
	send(t, conn, []byte{messages.TagSpinAWeb, 0})
	send(t, conn, []byte{messages.TagSpiderman, 2, 1})
	f.sync(t, conn, 8)

	assert.Equal(t, 1, f.registry.Calls())
	assert.Empty(t, f.sink.States())
	none(t, f.locations)
	assert.Equal(t, 1, f.session.PlayerCount())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.DatagramsDropped.WithLabelValues(metrics.ReasonUnknownType)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.DatagramsDropped.WithLabelValues(metrics.ReasonDecode)))
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t, 0)
	f.start(t)
	conn := f.client(t)
	local := conn.LocalAddr().(*net.UDPAddr)

	require.NoError(t, messages.Send(conn, messages.GetSpinAWeb(4)))
	e := next(t, f.endpoints)
	assert.Equal(t, core.EndpointEvent{Slot: 4, Addr: local.IP.String(), Port: local.Port}, e)
	assert.Equal(t, 1, f.session.PlayerCount())

	bound, ok := f.registry.Endpoint(4)
	require.True(t, ok)
	assert.True(t, core.SameEndpoint(local, bound))

	payload := []byte("spidey state blob")
	require.NoError(t, messages.Send(conn, messages.GetSpiderman(4, 5, payload)))
	loc := next(t, f.locations)
	want := levels.Default().Resolve(5)
	assert.Equal(t, core.LocationEvent{Slot: 4, Level: want.Name}, loc)

	states := f.sink.States()
	require.Len(t, states, 1)
	assert.Equal(t, core.PlayerState{
		Slot:        4,
		Level:       want,
		Payload:     payload,
		Offset:      2,
		PlayerCount: 1,
	}, states[0])
}

func TestSinkErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, 0)
	f.sink.err = errors.New("game not running")
	f.start(t)
	conn := f.client(t)

	send(t, conn, []byte{messages.TagSpiderman, 2, 1, 0xaa})
	next(t, f.locations)
	f.sync(t, conn, 8)

	assert.True(t, f.session.Running())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SinkErrors))
}

func TestStopWhileReceiving(t *testing.T) {
	f := newFixture(t, freePort(t))
	require.NoError(t, f.session.Start(f.registry, f.locations, f.endpoints))
	require.True(t, f.session.Running())

	stopped := make(chan struct{})
	go func() {
		f.session.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(eventTimeout):
		t.Fatal("Stop did not interrupt the pending receive")
	}

	assert.NoError(t, f.session.Wait(), "cancellation is not an error")
	assert.False(t, f.session.Running())

	// the same port binds again, so the socket was released
	require.NoError(t, f.session.Start(f.registry, f.locations, f.endpoints))
	defer f.session.Stop()
	assert.True(t, f.session.Running())
}

func TestRestartResetsPlayerCount(t *testing.T) {
	f := newFixture(t, freePort(t))
	f.start(t)
	f.sync(t, f.client(t), 2)
	assert.Equal(t, 1, f.session.PlayerCount())

	f.session.Stop()
	f.registry.Release(2)
	f.start(t)
	assert.Equal(t, 0, f.session.PlayerCount())

	f.sync(t, f.client(t), 2)
	assert.Equal(t, 1, f.session.PlayerCount())
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t, 0)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.session.Start(f.registry, f.locations, f.endpoints)
		}(i)
	}
	wg.Wait()
	t.Cleanup(f.session.Stop)

	for _, err := range errs {
		assert.NoError(t, err)
	}
	addr := f.session.Addr()
	require.NoError(t, f.session.Start(f.registry, f.locations, f.endpoints))
	assert.Equal(t, addr, f.session.Addr(), "a second Start must not open another socket")

	f.sync(t, f.client(t), 5)
	none(t, f.endpoints)
}

func TestPanicEndsLoopAndReleasesSocket(t *testing.T) {
	f := newFixture(t, freePort(t))
	f.sink.panic = true
	require.NoError(t, f.session.Start(f.registry, f.locations, f.endpoints))
	conn := f.client(t)

	send(t, conn, []byte{messages.TagSpiderman, 2, 1, 0xaa})

	select {
	case <-f.session.Done():
	case <-time.After(eventTimeout):
		t.Fatal("loop did not end after the panic")
	}
	var perr *PanicError
	require.True(t, errors.As(f.session.Wait(), &perr))
	assert.Equal(t, "sink exploded", perr.Value)
	assert.False(t, f.session.Running())

	f.sink.panic = false
	require.NoError(t, f.session.Start(f.registry, f.locations, f.endpoints), "port must be free again")
	f.session.Stop()
}

func TestStartErrors(t *testing.T) {
	f := newFixture(t, 0)
	assert.Error(t, f.session.Start(nil, nil, nil))

	taken, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer taken.Close()

	g := newFixture(t, taken.LocalAddr().(*net.UDPAddr).Port)
	assert.Error(t, g.session.Start(g.registry, nil, nil))
	assert.False(t, g.session.Running())
	assert.NoError(t, g.session.Wait(), "never started")
}

func TestStopBeforeStart(t *testing.T) {
	s := New(Config{})
	s.Stop()
	assert.Nil(t, s.Addr())
	assert.False(t, s.Running())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done of an idle session must be closed")
	}
}
