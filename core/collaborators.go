package core

import "net"

// Registry owns the canonical slot to endpoint table. It is shared with the
// TCP control component and must be safe for concurrent use.
type Registry interface {
	// TryBindEndpoint binds addr to slot unless the slot is already bound
	// to an equivalent endpoint. It reports whether a new binding occurred.
	TryBindEndpoint(slot PlayerSlot, addr *net.UDPAddr) bool
}

// TelemetrySink receives decoded player state and applies it to the
// monitored game.
type TelemetrySink interface {
	WriteState(state PlayerState) error
}

// LevelResolver maps the level byte of a state update to a level.
type LevelResolver interface {
	Resolve(id uint8) Level
}

// Observer receives fire-and-forget notifications.
type Observer[E any] interface {
	Notify(event E)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc[E any] func(event E)

func (f ObserverFunc[E]) Notify(event E) {
	f(event)
}

// Discard is an Observer that drops every event.
func Discard[E any]() Observer[E] {
	return ObserverFunc[E](func(E) {})
}
