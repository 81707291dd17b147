package markov

import (
	"math/rand"
	"net"
	"sync"
	"time"
)

// Conn simulates a lossy link on the send path with a two state Markov
// chain: after a delivered packet the next one is dropped with
// probability P, after a dropped packet with probability Q.
type Conn struct {
	UDPConn *net.UDPConn
	P       float64
	Q       float64

	mu          sync.Mutex
	rng         *rand.Rand
	lastDropped bool
	dropped     uint64
}

func newConn(conn *net.UDPConn, p, q float64, seed int64) *Conn {
	return &Conn{
		UDPConn: conn,
		P:       p,
		Q:       q,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// drop advances the chain and reports whether the current packet is lost.
func (mc *Conn) drop() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	prob := mc.P
	if mc.lastDropped {
		prob = mc.Q
	}
	mc.lastDropped = mc.rng.Float64() < prob
	if mc.lastDropped {
		mc.dropped++
	}
	return mc.lastDropped
}

// Dropped is the number of packets swallowed so far.
func (mc *Conn) Dropped() uint64 {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.dropped
}

// Implement the interface for net.PacketConn
func (mc *Conn) ReadFrom(p []byte) (n int, addr net.Addr, err error) {
	return mc.UDPConn.ReadFrom(p)
}

func (mc *Conn) WriteTo(p []byte, addr net.Addr) (n int, err error) {
	if mc.drop() {
		return len(p), nil
	}
	return mc.UDPConn.WriteTo(p, addr)
}

// Implement the interface for net.Conn
func (mc *Conn) Read(p []byte) (n int, err error) {
	return mc.UDPConn.Read(p)
}

func (mc *Conn) Write(p []byte) (n int, err error) {
	if mc.drop() {
		return len(p), nil
	}
	return mc.UDPConn.Write(p)
}

func (mc *Conn) RemoteAddr() net.Addr {
	return mc.UDPConn.RemoteAddr()
}

// Implement the interface for both net.Conn and net.PacketConn
func (mc *Conn) Close() error {
	return mc.UDPConn.Close()
}

func (mc *Conn) LocalAddr() net.Addr {
	return mc.UDPConn.LocalAddr()
}

func (mc *Conn) SetDeadline(t time.Time) error {
	return mc.UDPConn.SetDeadline(t)
}

func (mc *Conn) SetReadDeadline(t time.Time) error {
	return mc.UDPConn.SetReadDeadline(t)
}

func (mc *Conn) SetWriteDeadline(t time.Time) error {
	return mc.UDPConn.SetWriteDeadline(t)
}
