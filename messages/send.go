package messages

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

func (m SpinAWeb) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, m.Header); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return buf.Bytes(), nil
}

func (m Spiderman) Encode() ([]byte, error) {
	if len(m.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("encoding message: payload of %d bytes exceeds %d", len(m.Payload), MaxPayloadSize)
	}
	buf := new(bytes.Buffer)
	buf.Grow(HeaderSize + 1 + len(m.Payload))
	/* encode header */
	if err := binary.Write(buf, binary.LittleEndian, m.Header); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	buf.WriteByte(m.Level)
	/* variable length payload is appended as is */
	buf.Write(m.Payload)
	return buf.Bytes(), nil
}

// Send writes m to a connected socket.
func Send(conn net.Conn, m Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// SendTo writes m to addr over an unconnected socket.
func SendTo(conn net.PacketConn, addr net.Addr, m Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	if _, err := conn.WriteTo(data, addr); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}
