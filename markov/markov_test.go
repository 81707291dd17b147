package markov_test

import (
	"net"
	"testing"
	"time"

	"github.com/multispidey/spideysync/markov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) *net.UDPConn {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestCreateClientSocket(t *testing.T) {
	server := listen(t)
	var conn net.Conn
	conn, err := markov.CreateClientSocket(net.IPv4(127, 0, 0, 1), server.LocalAddr().(*net.UDPAddr).Port, 0.5, 0.6)
	require.NoError(t, err, "could not create client socket")
	assert.NoError(t, conn.Close(), "could not close client socket")
}

func TestInvalidProbabilities(t *testing.T) {
	_, err := markov.CreateClientSocket(net.IPv4(127, 0, 0, 1), 1, 1.5, 0)
	assert.Error(t, err)
	_, err = markov.CreateClientSocket(net.IPv4(127, 0, 0, 1), 1, 0, -0.1)
	assert.Error(t, err)
}

func TestLosslessDeliversEverything(t *testing.T) {
	server := listen(t)
	conn, err := markov.CreateClientSocket(net.IPv4(127, 0, 0, 1), server.LocalAddr().(*net.UDPAddr).Port, 0, 0)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 5; i++ {
		_, err := conn.Write([]byte{byte(i)})
		require.NoError(t, err)
	}
	buf := make([]byte, 4)
	for i := 0; i < 5; i++ {
		require.NoError(t, server.SetReadDeadline(time.Now().Add(time.Second)))
		n, _, err := server.ReadFrom(buf)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, buf[:n])
	}
	assert.Zero(t, conn.Dropped())
}

func TestAlwaysDrop(t *testing.T) {
	server := listen(t)
	udp, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	conn, err := markov.Wrap(udp, 1, 1, 42)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		n, err := conn.Write([]byte{1, 2})
		require.NoError(t, err)
		assert.Equal(t, 2, n, "dropped writes still report the full length")
	}
	assert.Equal(t, uint64(3), conn.Dropped())

	require.NoError(t, server.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err = server.ReadFrom(make([]byte, 4))
	assert.Error(t, err, "nothing should have been delivered")
}
