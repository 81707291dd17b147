// Package registry holds the slot to endpoint table shared by the TCP
// control component and the UDP session.
package registry

import (
	"net"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/multispidey/spideysync/core"
)

// Players is an in-process core.Registry. The zero value is not usable;
// create one with New.
type Players struct {
	mu        sync.RWMutex
	endpoints map[core.PlayerSlot]*net.UDPAddr
	log       *zap.Logger
}

func New(log *zap.Logger) *Players {
	if log == nil {
		log = zap.NewNop()
	}
	return &Players{
		endpoints: make(map[core.PlayerSlot]*net.UDPAddr),
		log:       log.Named("registry"),
	}
}

// TryBindEndpoint implements core.Registry. The host slot is never bound.
func (p *Players) TryBindEndpoint(slot core.PlayerSlot, addr *net.UDPAddr) bool {
	if slot <= core.HostSlot || addr == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.endpoints[slot]; ok && core.SameEndpoint(current, addr) {
		return false
	}
	p.endpoints[slot] = core.CloneAddr(addr)
	p.log.Info("udp endpoint bound",
		zap.Stringer("slot", slot),
		zap.Stringer("addr", addr),
	)
	return true
}

// Endpoint returns the endpoint bound to slot.
func (p *Players) Endpoint(slot core.PlayerSlot) (*net.UDPAddr, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	addr, ok := p.endpoints[slot]
	return core.CloneAddr(addr), ok
}

// Release forgets the endpoint of slot, e.g. when its TCP connection drops.
func (p *Players) Release(slot core.PlayerSlot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.endpoints[slot]; !ok {
		return false
	}
	delete(p.endpoints, slot)
	p.log.Info("udp endpoint released", zap.Stringer("slot", slot))
	return true
}

// Bindings returns a snapshot ordered by slot.
func (p *Players) Bindings() []core.EndpointBinding {
	p.mu.RLock()
	out := make([]core.EndpointBinding, 0, len(p.endpoints))
	for slot, addr := range p.endpoints {
		out = append(out, core.EndpointBinding{Slot: slot, Addr: core.CloneAddr(addr)})
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func (p *Players) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.endpoints)
}
