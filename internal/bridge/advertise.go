package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/node"
)

// startAdvertising opens the commissioning window on every commissionable
// node: the shared node in bridge mode, each healthy plugin's node in
// childbridge mode. Failures are logged per node.
func (o *Orchestrator) startAdvertising() {
	for _, h := range o.commissionableNodes() {
		if err := o.AdvertiseNode(h); err != nil {
			o.logger.Error("advertise failed", "node", h.ID(), "error", err)
		}
	}
}

// commissionableNodes returns the nodes that accept pairing attempts in
// the current topology.
func (o *Orchestrator) commissionableNodes() []node.Handle {
	if o.mode == ModeBridge {
		o.nodesMu.Lock()
		defer o.nodesMu.Unlock()
		if o.sharedNode == nil {
			return nil
		}
		return []node.Handle{o.sharedNode}
	}

	var out []node.Handle
	for _, p := range o.healthyPlugins() {
		if h := p.Node(); h != nil {
			out = append(out, h)
		}
	}
	return out
}

// AdvertiseNode opens (or restarts) the bounded commissioning window for
// one node. Any existing window timer for the node is cleared first, so
// repeated calls refresh rather than stack.
func (o *Orchestrator) AdvertiseNode(h node.Handle) error {
	info, err := o.factory.Advertise(h)
	if err != nil {
		return err
	}
	info.ExpiresAt = time.Now().UTC().Add(o.advertiseWindow)

	o.advertMu.Lock()
	if t, ok := o.timers[h.ID()]; ok {
		t.Stop()
	}
	o.timers[h.ID()] = time.AfterFunc(o.advertiseWindow, func() {
		o.expireAdvertising(h)
	})
	o.pairings[h.ID()] = info
	o.advertMu.Unlock()

	o.logger.Info("commissioning window open",
		"node", h.ID(),
		"discriminator", info.Discriminator,
		"expires_at", info.ExpiresAt,
	)
	return nil
}

// expireAdvertising fires when a window's timer elapses.
func (o *Orchestrator) expireAdvertising(h node.Handle) {
	if err := o.factory.StopAdvertise(h); err != nil {
		o.logger.Warn("closing commissioning window failed", "node", h.ID(), "error", err)
	}

	o.advertMu.Lock()
	delete(o.timers, h.ID())
	delete(o.pairings, h.ID())
	o.advertMu.Unlock()

	o.logger.Warn("commissioning window expired, restart the hub to commission again",
		"node", h.ID(),
	)
}

// StopAdvertiseNode closes a node's commissioning window early.
// Closing an already-closed window is a no-op.
func (o *Orchestrator) StopAdvertiseNode(h node.Handle) error {
	o.advertMu.Lock()
	t, ok := o.timers[h.ID()]
	if ok {
		t.Stop()
		delete(o.timers, h.ID())
	}
	delete(o.pairings, h.ID())
	o.advertMu.Unlock()

	if !ok {
		return nil
	}
	if err := o.factory.StopAdvertise(h); err != nil {
		return err
	}
	o.logger.Info("commissioning window closed early", "node", h.ID())
	return nil
}

// StopAllAdvertising closes every open commissioning window.
func (o *Orchestrator) StopAllAdvertising() {
	for _, h := range o.commissionableNodes() {
		if err := o.StopAdvertiseNode(h); err != nil {
			o.logger.Warn("closing commissioning window failed", "node", h.ID(), "error", err)
		}
	}
}

// Pairings returns the pairing information of every open commissioning
// window.
func (o *Orchestrator) Pairings() []node.PairingInfo {
	o.advertMu.Lock()
	defer o.advertMu.Unlock()

	out := make([]node.PairingInfo, 0, len(o.pairings))
	for _, info := range o.pairings {
		out = append(out, info)
	}
	return out
}

// clearTimers stops every owned timer. Tolerates already-fired and
// already-cleared timers.
func (o *Orchestrator) clearTimers() {
	o.advertMu.Lock()
	defer o.advertMu.Unlock()

	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	o.pairings = make(map[string]node.PairingInfo)
	if o.configTimer != nil {
		o.configTimer.Stop()
		o.configTimer = nil
	}
}
