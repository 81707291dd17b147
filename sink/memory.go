package sink

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/multispidey/spideysync/core"
)

var (
	ErrNegativeOffset   = errors.New("negative player offset")
	ErrPayloadTooLarge  = errors.New("payload does not fit the player stride")
	ErrUnsupportedOS    = errors.New("process memory access is not supported on this platform")
	ErrProcessNotFound  = errors.New("game process not found")
	ErrLayoutIncomplete = errors.New("memory layout needs player_base and player_stride")
)

// Layout locates the shared state in the game process.
type Layout struct {
	// PlayerBase is the address of the state block of offset 0.
	PlayerBase uintptr
	// PlayerStride is the distance between two state blocks.
	PlayerStride uintptr
	// LevelBase, when set, receives one level id byte per offset.
	LevelBase uintptr
	// CountAddr, when set, receives the player count as a little endian uint32.
	CountAddr uintptr
}

func (l Layout) Validate() error {
	if l.PlayerBase == 0 || l.PlayerStride == 0 {
		return ErrLayoutIncomplete
	}
	return nil
}

// Memory writes player state into another process.
type Memory struct {
	pid    int
	layout Layout
	log    *zap.Logger
	write  func(pid int, addr uintptr, data []byte) error
}

func NewMemory(pid int, layout Layout, log *zap.Logger) (*Memory, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Memory{
		pid:    pid,
		layout: layout,
		log:    log.Named("sink").With(zap.Int("pid", pid)),
		write:  writeProcessMemory,
	}, nil
}

// WriteState implements core.TelemetrySink.
func (m *Memory) WriteState(state core.PlayerState) error {
	if state.Offset < 0 {
		return fmt.Errorf("slot %v: %w", state.Slot, ErrNegativeOffset)
	}
	if uintptr(len(state.Payload)) > m.layout.PlayerStride {
		return fmt.Errorf("slot %v: %d bytes: %w", state.Slot, len(state.Payload), ErrPayloadTooLarge)
	}
	off := uintptr(state.Offset)
	if err := m.write(m.pid, m.layout.PlayerBase+off*m.layout.PlayerStride, state.Payload); err != nil {
		return fmt.Errorf("write state of slot %v: %w", state.Slot, err)
	}
	if m.layout.LevelBase != 0 {
		if err := m.write(m.pid, m.layout.LevelBase+off, []byte{state.Level.ID}); err != nil {
			return fmt.Errorf("write level of slot %v: %w", state.Slot, err)
		}
	}
	if m.layout.CountAddr != 0 {
		count := make([]byte, 4)
		binary.LittleEndian.PutUint32(count, uint32(state.PlayerCount))
		if err := m.write(m.pid, m.layout.CountAddr, count); err != nil {
			return fmt.Errorf("write player count: %w", err)
		}
	}
	return nil
}
