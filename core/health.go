package core

// Health is the three-level classification every adapter's state machine
// reduces its NetworkState to (§4.5).
type Health string

const (
	Healthy  Health = "healthy"
	Warning  Health = "warning"
	Critical Health = "critical"
)

// ClassifyHealth derives a Health value from a NetworkState snapshot.
//
// Critical when disconnected, or connected but not synced with zero peers.
// Warning when unsynced, when zero peers are reachable and the node isn't
// acting as its own primary, when the node prefers self-primary but isn't
// one yet, or when synced with peers below the configured floor. A node
// that is synced and self-primary (prefer_self_as_master && is_primary) is
// Healthy regardless of peer_count, per §4.5; zero peers never counts as
// Healthy on its own, even with min_peers = 0.
func ClassifyHealth(ns NetworkState) Health {
	if !ns.Connected {
		return Critical
	}
	if !ns.Synced && ns.PeerCount == 0 {
		return Critical
	}
	if !ns.Synced {
		return Warning
	}
	selfPrimary := ns.PreferSelfMaster && ns.IsPrimary
	if ns.PeerCount == 0 && !selfPrimary {
		return Warning
	}
	if ns.PreferSelfMaster && !ns.IsPrimary {
		return Warning
	}
	if selfPrimary {
		return Healthy
	}
	if ns.PeerCount < ns.MinPeers {
		return Warning
	}
	return Healthy
}

// ElectPrimary decides whether this node should consider itself primary
// given a fallback-to-self-node decision (§4.1, §8 property 2): a node that
// failed to connect to any peer, with self-node fallback enabled, becomes
// its own primary.
func ElectPrimary(connectFailed bool, enableSelfNodeFallback bool, currentlyPrimary bool) bool {
	if connectFailed && enableSelfNodeFallback {
		return true
	}
	return currentlyPrimary
}
