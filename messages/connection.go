package messages

import (
	"fmt"
	"net"
)

// CreateServerSocket listens on ip:port. A nil ip listens on all interfaces
// and port 0 picks a free port.
func CreateServerSocket(ip net.IP, port int) (*net.UDPConn, error) {
	laddr := net.UDPAddr{
		Port: port,
		IP:   ip,
	}
	conn, err := net.ListenUDP("udp", &laddr)
	if err != nil {
		return nil, fmt.Errorf("creating ListenUDP: %w", err)
	}
	return conn, nil
}

func CreateClientSocket(ip net.IP, port int) (*net.UDPConn, error) {
	raddr := &net.UDPAddr{
		Port: port,
		IP:   ip,
	}
	// take local laddr
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing to server: %w", err)
	}
	return conn, nil
}
