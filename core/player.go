package core

import (
	"fmt"
	"net"
)

// PlayerSlot identifies a participant. Slots are 1-based.
type PlayerSlot uint8

// HostSlot is the local player running the server. It never gets a remote
// endpoint and is excluded from the telemetry offset space.
const HostSlot PlayerSlot = 1

func (s PlayerSlot) String() string {
	return fmt.Sprintf("P%d", uint8(s))
}

// Offset is the index of the slot in the shared state written by a
// TelemetrySink. Slot 2 maps to 0. The host slot yields -1.
func (s PlayerSlot) Offset() int {
	return int(s) - 2
}

// Level is a resolved game-content level.
type Level struct {
	ID   uint8
	Name string
}

// EndpointBinding pairs a slot with the endpoint further data for that
// player is sent to.
type EndpointBinding struct {
	Slot PlayerSlot
	Addr *net.UDPAddr
}

// PlayerState is the decoded telemetry of one remote player together with
// the values derived while dispatching it.
type PlayerState struct {
	Slot        PlayerSlot
	Level       Level
	Payload     []byte
	Offset      int
	PlayerCount int
}

// EndpointEvent is raised once per new endpoint binding.
type EndpointEvent struct {
	Slot PlayerSlot `json:"slot"`
	Addr string     `json:"addr"`
	Port int        `json:"port"`
}

// LocationEvent is raised for every decoded state update.
type LocationEvent struct {
	Slot  PlayerSlot `json:"slot"`
	Level string     `json:"level"`
}

// SameEndpoint reports whether a and b address the same IP and port.
func SameEndpoint(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port && a.IP.Equal(b.IP) && a.Zone == b.Zone
}

// CloneAddr returns a copy of addr that does not share the IP slice.
func CloneAddr(addr *net.UDPAddr) *net.UDPAddr {
	if addr == nil {
		return nil
	}
	ip := make(net.IP, len(addr.IP))
	copy(ip, addr.IP)
	return &net.UDPAddr{IP: ip, Port: addr.Port, Zone: addr.Zone}
}
