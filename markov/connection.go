package markov

import (
	"fmt"
	"net"
	"time"
)

// ValidProbabilities reports whether p and q can drive the chain.
func ValidProbabilities(p, q float64) bool {
	return p >= 0 && p <= 1 && q >= 0 && q <= 1
}

// CreateClientSocket dials ip:port through a lossy link. p = q = 0 gives a
// lossless link.
func CreateClientSocket(ip net.IP, port int, p float64, q float64) (*Conn, error) {
	if !ValidProbabilities(p, q) {
		return nil, fmt.Errorf("p and/or q values for the markov chain are invalid")
	}
	raddr := &net.UDPAddr{
		Port: port,
		IP:   ip,
	}
	// this automatically takes local laddr
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("error dialing to server: %w", err)
	}
	return newConn(conn, p, q, time.Now().UnixNano()), nil
}

// Wrap puts an existing socket behind a lossy link with a fixed seed.
func Wrap(conn *net.UDPConn, p float64, q float64, seed int64) (*Conn, error) {
	if !ValidProbabilities(p, q) {
		return nil, fmt.Errorf("p and/or q values for the markov chain are invalid")
	}
	return newConn(conn, p, q, seed), nil
}
