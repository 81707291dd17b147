package messages

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// MaxDatagramSize is large enough for any UDP payload.
const MaxDatagramSize = 65507

// Receive reads one datagram from conn into buf. The returned data aliases
// buf and is only valid until the next call.
func Receive(conn net.PacketConn, buf []byte) (*net.UDPAddr, []byte, error) {
	n, addr, err := conn.ReadFrom(buf)
	if err != nil {
		// return error as it is so callers can match timeouts
		return nil, nil, err
	}
	raddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected address type %T", addr)
	}
	return raddr, buf[:n], nil
}

// CancelOnDone interrupts any pending or future read on conn once ctx is
// done by moving the read deadline into the past. The returned function
// detaches the watcher and reports whether it had not fired yet.
func CancelOnDone(ctx context.Context, conn net.PacketConn) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Unix(1, 0))
	})
}

// Parse classifies a datagram by its type tag and decodes it. The returned
// message never aliases data.
func Parse(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return nil, &ShortDatagramError{Length: len(data)}
	}
	switch data[0] {
	case TagSpinAWeb:
		return ParseSpinAWeb(data)
	case TagSpiderman:
		return ParseSpiderman(data)
	default:
		// no valid client packet
		return nil, &UnknownTypeError{Type: data[0]}
	}
}

func parseHeader(data []byte, tag uint8) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, &ShortDatagramError{Length: len(data)}
	}
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, &DecodeError{Type: tag, Reason: err.Error()}
	}
	if h.Type != tag {
		return h, &DecodeError{Type: tag, Reason: fmt.Sprintf("header carries type 0x%02x", h.Type)}
	}
	if !validSlot(h.Slot) {
		return h, &DecodeError{Type: tag, Reason: fmt.Sprintf("player slot %d out of range 1..%d", h.Slot, MaxSlot)}
	}
	return h, nil
}

// ParseSpinAWeb decodes a registration datagram.
func ParseSpinAWeb(data []byte) (SpinAWeb, error) {
	var m SpinAWeb
	h, err := parseHeader(data, TagSpinAWeb)
	if err != nil {
		return m, err
	}
	if len(data) != HeaderSize {
		return m, &DecodeError{Type: TagSpinAWeb, Reason: fmt.Sprintf("length %d, want %d", len(data), HeaderSize)}
	}
	m.Header = h
	return m, nil
}

// ParseSpiderman decodes a state update datagram.
func ParseSpiderman(data []byte) (Spiderman, error) {
	var m Spiderman
	h, err := parseHeader(data, TagSpiderman)
	if err != nil {
		return m, err
	}
	body := data[HeaderSize:]
	if len(body) < 1 {
		return m, &DecodeError{Type: TagSpiderman, Reason: "missing level byte"}
	}
	payload := body[1:]
	switch {
	case len(payload) == 0:
		return m, &DecodeError{Type: TagSpiderman, Reason: "empty payload"}
	case len(payload) > MaxPayloadSize:
		return m, &DecodeError{Type: TagSpiderman, Reason: fmt.Sprintf("payload of %d bytes exceeds %d", len(payload), MaxPayloadSize)}
	}
	m.Header = h
	m.Level = body[0]
	m.Payload = append([]byte(nil), payload...)
	return m, nil
}
