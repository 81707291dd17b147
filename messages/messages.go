package messages

import (
	"github.com/multispidey/spideysync/core"
)

// HeaderSize is the fixed header every datagram starts with: type tag and
// player slot. Anything shorter is not a message.
const HeaderSize = 2

const (
	// MaxSlot is the highest player slot a client may claim.
	MaxSlot = 8
	// MaxPayloadSize bounds the opaque game-state blob of a state update.
	MaxPayloadSize = 1024
)

// client message types
const (
	TagSpinAWeb  uint8 = 0x01 // endpoint registration
	TagSpiderman uint8 = 0x02 // player state update
)

// Message is the parsed form of one datagram.
type Message interface {
	Tag() uint8
	Encode() ([]byte, error)
}

type Header struct {
	Type uint8
	Slot uint8
}

// SpinAWeb announces the sender's endpoint for a player slot.
type SpinAWeb struct {
	Header Header
}

func GetSpinAWeb(slot core.PlayerSlot) *SpinAWeb {
	return &SpinAWeb{Header: Header{Type: TagSpinAWeb, Slot: uint8(slot)}}
}

func (m SpinAWeb) Tag() uint8 { return TagSpinAWeb }

func (m SpinAWeb) Slot() core.PlayerSlot { return core.PlayerSlot(m.Header.Slot) }

// Spiderman carries the game state of one player and the level it is in.
type Spiderman struct {
	Header  Header
	Level   uint8
	Payload []byte /* variable length, encoded after the fixed part */
}

func GetSpiderman(slot core.PlayerSlot, level uint8, payload []byte) *Spiderman {
	return &Spiderman{
		Header:  Header{Type: TagSpiderman, Slot: uint8(slot)},
		Level:   level,
		Payload: payload,
	}
}

func (m Spiderman) Tag() uint8 { return TagSpiderman }

func (m Spiderman) Slot() core.PlayerSlot { return core.PlayerSlot(m.Header.Slot) }

func validSlot(slot uint8) bool {
	return slot >= 1 && slot <= MaxSlot
}
