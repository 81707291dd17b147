package messages

import "fmt"

// ShortDatagramError is returned for datagrams shorter than HeaderSize.
type ShortDatagramError struct {
	Length int
}

func (e *ShortDatagramError) Error() string {
	return fmt.Sprintf("datagram of %d bytes is shorter than the %d byte header", e.Length, HeaderSize)
}

// UnknownTypeError is returned for reserved or future type tags.
type UnknownTypeError struct {
	Type uint8
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type: 0x%02x", e.Type)
}

// DecodeError is returned when a known message type has an invalid body.
type DecodeError struct {
	Type   uint8
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message type 0x%02x: %s", e.Type, e.Reason)
}
