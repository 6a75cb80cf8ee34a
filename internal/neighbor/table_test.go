package neighbor

import (
	"testing"
	"time"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestObserveHelloDiscoversThenPromotes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tbl := New(clock, "local", 20*time.Second)

	events := tbl.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "peer", CapacityMbps: 1000})
	require.Len(t, events, 1)
	require.Equal(t, EventDiscovered, events[0].Kind)
	require.Equal(t, Init, events[0].Neighbor.State)

	events = tbl.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "peer", CapacityMbps: 1000, KnownNeighbors: []string{"local"}})
	require.Len(t, events, 1)
	require.Equal(t, EventTwoWay, events[0].Kind)
}

func TestSweepTwoPhaseRemoval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tbl := New(clock, "local", 20*time.Second)
	tbl.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "peer", CapacityMbps: 1000, KnownNeighbors: []string{"local"}})

	clock.Advance(21 * time.Second)
	events := tbl.Sweep()
	require.Len(t, events, 1)
	require.Equal(t, EventDown, events[0].Kind)

	// Entry still present until the following sweep.
	require.Len(t, tbl.All(), 1)

	events = tbl.Sweep()
	require.Len(t, events, 1)
	require.Equal(t, EventRemoved, events[0].Kind)
	require.Empty(t, tbl.All())
}

func TestSweepNoChangeWithinDeadInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tbl := New(clock, "local", 20*time.Second)
	tbl.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "peer", CapacityMbps: 1000})

	clock.Advance(10 * time.Second)
	events := tbl.Sweep()
	require.Empty(t, events)
}

func TestSnapshotTwoWayUsesMinCapacity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tbl := New(clock, "local", 20*time.Second)
	tbl.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "peer", CapacityMbps: 10, KnownNeighbors: []string{"local"}})

	snap := tbl.SnapshotTwoWay(func(iface string) uint32 { return 1000 })
	require.Len(t, snap, 1)
	require.Equal(t, Cost(10), snap[0].EffectiveLinkCost)
}

func TestMonotonicityAcrossHelloSequence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tbl := New(clock, "local", 20*time.Second)

	// No HELLO yet → no entry at all.
	require.Empty(t, tbl.All())

	// HELLO without us listed → INIT.
	tbl.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "peer", CapacityMbps: 1000})
	require.Equal(t, Init, tbl.All()[0].State)

	// HELLO listing us → TWO_WAY.
	tbl.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "peer", CapacityMbps: 1000, KnownNeighbors: []string{"local"}})
	require.Equal(t, TwoWay, tbl.All()[0].State)

	// No further HELLO within dead_interval → still TWO_WAY.
	clock.Advance(19 * time.Second)
	tbl.Sweep()
	require.Equal(t, TwoWay, tbl.All()[0].State)

	// Past dead_interval → DOWN.
	clock.Advance(2 * time.Second)
	tbl.Sweep()
	require.Equal(t, Down, tbl.All()[0].State)
}
