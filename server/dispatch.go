package server

import (
	"errors"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/multispidey/spideysync/core"
	"github.com/multispidey/spideysync/messages"
	"github.com/multispidey/spideysync/metrics"
)

// dispatcher handles the datagrams of one run. All of its methods are
// called from the loop goroutine.
type dispatcher struct {
	session    *Session
	registry   core.Registry
	onLocation core.Observer[core.LocationEvent]
	onEndpoint core.Observer[core.EndpointEvent]
}

func (d *dispatcher) dispatch(data []byte, from *net.UDPAddr) {
	msg, err := messages.Parse(data)
	if err != nil {
		// a malformed or newer packet from one client must not affect the others
		d.drop(reason(err), from, err)
		return
	}

	switch m := msg.(type) {
	case messages.SpinAWeb:
		d.handleSpinAWeb(m, from)
	case messages.Spiderman:
		d.handleSpiderman(m, from)
	}
}

func reason(err error) string {
	var e1 *messages.ShortDatagramError
	var e2 *messages.UnknownTypeError
	switch {
	case errors.As(err, &e1):
		return metrics.ReasonShort
	case errors.As(err, &e2):
		return metrics.ReasonUnknownType
	default:
		return metrics.ReasonDecode
	}
}

func (d *dispatcher) drop(reason string, from *net.UDPAddr, err error) {
	d.session.metrics.DatagramsDropped.WithLabelValues(reason).Inc()
	if ce := d.session.log.Check(zap.DebugLevel, "datagram dropped"); ce != nil {
		ce.Write(zap.String("reason", reason), zap.Stringer("from", from), zap.Error(err))
	}
}

func (d *dispatcher) handleSpinAWeb(m messages.SpinAWeb, from *net.UDPAddr) {
	slot := m.Slot()
	if slot == core.HostSlot {
		d.drop(metrics.ReasonHostSlot, from, nil)
		return
	}
	if !d.registry.TryBindEndpoint(slot, from) {
		// clients resend their registration until they see data
		d.session.log.Debug("endpoint already registered", zap.Stringer("slot", slot), zap.Stringer("from", from))
		return
	}

	count := d.session.playerCount.Add(1)
	d.session.metrics.Registrations.Inc()
	d.session.metrics.Players.Set(float64(count))
	d.session.log.Info("player endpoint registered",
		zap.Stringer("slot", slot),
		zap.Stringer("addr", from),
		zap.Int64("players", count),
	)
	d.onEndpoint.Notify(core.EndpointEvent{Slot: slot, Addr: from.IP.String(), Port: from.Port})
}

func (d *dispatcher) handleSpiderman(m messages.Spiderman, from *net.UDPAddr) {
	slot := m.Slot()
	if slot <= core.HostSlot {
		// the host has no offset in the shared state
		d.drop(metrics.ReasonHostSlot, from, nil)
		return
	}

	level := d.session.levels.Resolve(m.Level)
	level.Name = strings.TrimSpace(level.Name)
	d.onLocation.Notify(core.LocationEvent{Slot: slot, Level: level.Name})

	state := core.PlayerState{
		Slot:        slot,
		Level:       level,
		Payload:     m.Payload,
		Offset:      slot.Offset(),
		PlayerCount: d.session.PlayerCount(),
	}
	d.session.metrics.StateUpdates.Inc()
	if err := d.session.sink.WriteState(state); err != nil {
		d.session.metrics.SinkErrors.Inc()
		d.session.log.Warn("telemetry sink write failed",
			zap.Stringer("slot", slot),
			zap.Int("offset", state.Offset),
			zap.Error(err),
		)
	}
}
