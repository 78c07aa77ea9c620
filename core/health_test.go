package core

import "testing"

func TestClassifyHealth(t *testing.T) {
	cases := []struct {
		name string
		ns   NetworkState
		want Health
	}{
		{"disconnected", NetworkState{Connected: false}, Critical},
		{"connected unsynced no peers", NetworkState{Connected: true, Synced: false, PeerCount: 0}, Critical},
		{"below min peers", NetworkState{Connected: true, Synced: true, PeerCount: 1, MinPeers: 3}, Warning},
		{"unsynced with peers", NetworkState{Connected: true, Synced: false, PeerCount: 5, MinPeers: 2}, Warning},
		{"prefers self but not primary", NetworkState{Connected: true, Synced: true, PeerCount: 5, MinPeers: 2, PreferSelfMaster: true, IsPrimary: false}, Warning},
		{"healthy", NetworkState{Connected: true, Synced: true, PeerCount: 5, MinPeers: 2, PreferSelfMaster: true, IsPrimary: true}, Healthy},
		{"self primary below min peers is healthy", NetworkState{Connected: true, Synced: true, PeerCount: 0, MinPeers: 2, PreferSelfMaster: true, IsPrimary: true}, Healthy},
		{"zero min peers with no peers and no self preference stays warning", NetworkState{Connected: true, Synced: true, PeerCount: 0, MinPeers: 0, PreferSelfMaster: false, IsPrimary: false}, Warning},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ClassifyHealth(c.ns); got != c.want {
				t.Fatalf("ClassifyHealth(%+v) = %s, want %s", c.ns, got, c.want)
			}
		})
	}
}

func TestElectPrimary(t *testing.T) {
	if !ElectPrimary(true, true, false) {
		t.Fatalf("expected self-node fallback to elect primary on connect failure")
	}
	if ElectPrimary(true, false, false) {
		t.Fatalf("expected no primary election when fallback disabled")
	}
	if !ElectPrimary(false, true, true) {
		t.Fatalf("expected existing primary status preserved")
	}
}
