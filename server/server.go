package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/multispidey/spideysync/core"
	"github.com/multispidey/spideysync/levels"
	"github.com/multispidey/spideysync/messages"
	"github.com/multispidey/spideysync/metrics"
	"github.com/multispidey/spideysync/sink"
)

type Config struct {
	// IP to listen on; nil listens on all interfaces.
	IP   net.IP
	Port int
	// ReadBuffer sets the kernel receive buffer when positive.
	ReadBuffer int
}

type Option func(*Session)

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

func WithLevels(r core.LevelResolver) Option {
	return func(s *Session) { s.levels = r }
}

func WithSink(ts core.TelemetrySink) Option {
	return func(s *Session) { s.sink = ts }
}

// PanicError is the fault reported when a collaborator panics while a
// datagram is dispatched.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("session loop panicked: %v", e.Value)
}

// Session owns the UDP socket the game clients send to. At most one
// receive loop runs per Session; it can be started again after it stopped.
type Session struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	levels  core.LevelResolver
	sink    core.TelemetrySink

	mu      sync.Mutex
	current *run

	// written by the loop goroutine only
	playerCount atomic.Int64
}

// run is one Listening period of a Session.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	addr   net.Addr
	err    error
}

func New(cfg Config, opts ...Option) *Session {
	s := &Session{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("udp")
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.levels == nil {
		s.levels = levels.Default()
	}
	if s.sink == nil {
		s.sink = sink.NewLog(s.log)
	}
	return s
}

// Start opens the socket and starts the receive loop unless one is already
// running, in which case it does nothing. Events are reported to
// onLocation and onEndpoint from the loop goroutine; nil observers discard.
func (s *Session) Start(registry core.Registry, onLocation core.Observer[core.LocationEvent], onEndpoint core.Observer[core.EndpointEvent]) error {
	if registry == nil {
		return errors.New("start session: nil registry")
	}
	if onLocation == nil {
		onLocation = core.Discard[core.LocationEvent]()
	}
	if onEndpoint == nil {
		onEndpoint = core.Discard[core.EndpointEvent]()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && !closed(s.current.done) {
		return nil
	}

	conn, err := messages.CreateServerSocket(s.cfg.IP, s.cfg.Port)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if s.cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(s.cfg.ReadBuffer); err != nil {
			s.log.Warn("failed to set UDP read buffer size",
				zap.Int("read_buffer", s.cfg.ReadBuffer),
				zap.Error(err),
			)
		}
	}

	// no loop is running, so the counter is ours to reset
	s.playerCount.Store(0)
	s.metrics.Players.Set(0)

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		cancel: cancel,
		done:   make(chan struct{}),
		addr:   conn.LocalAddr(),
	}
	s.current = r

	d := &dispatcher{
		session:    s,
		registry:   registry,
		onLocation: onLocation,
		onEndpoint: onEndpoint,
	}
	go func() {
		r.err = s.listen(ctx, conn, d)
		cancel()
		close(r.done)
	}()

	s.log.Info("session listening", zap.Stringer("addr", r.addr))
	return nil
}

// Stop cancels the receive loop and waits until the socket is released.
func (s *Session) Stop() {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Wait blocks until the current loop exits. It returns nil after Stop and
// the fault otherwise.
func (s *Session) Wait() error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	<-r.done
	return r.err
}

// Done is closed when the current loop exits.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return s.current.done
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !closed(s.current.done)
}

// Addr is the local address of the most recent loop, nil before Start.
func (s *Session) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.addr
}

// PlayerCount is the number of new endpoint bindings since the last Start.
func (s *Session) PlayerCount() int {
	return int(s.playerCount.Load())
}

// listen is the receive loop. It returns nil when ctx is canceled and the
// transport fault otherwise. conn is closed on every exit path.
func (s *Session) listen(ctx context.Context, conn *net.UDPConn, d *dispatcher) (err error) {
	stop := messages.CancelOnDone(ctx, conn)
	defer stop()
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			s.log.Warn("error closing UDP socket", zap.Error(cerr))
		}
		s.log.Info("session stopped", zap.Int("players", s.PlayerCount()), zap.Error(err))
	}()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	buf := make([]byte, messages.MaxDatagramSize)
	for {
		addr, data, err := messages.Receive(conn, buf)
		if err != nil {
			if ctx.Err() != nil {
				// canceled while waiting, not an error
				return nil
			}
			return fmt.Errorf("receiving from UDP socket: %w", err)
		}
		s.metrics.DatagramsReceived.Inc()
		d.dispatch(data, addr)
	}
}

func closed(c chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
