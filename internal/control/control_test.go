package control

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/LennyGonzales/P-OSPF/internal/config"
	"github.com/LennyGonzales/P-OSPF/internal/iface"
	"github.com/LennyGonzales/P-OSPF/internal/lsdb"
	"github.com/LennyGonzales/P-OSPF/internal/neighbor"
	"github.com/LennyGonzales/P-OSPF/internal/rib"
	"github.com/LennyGonzales/P-OSPF/internal/state"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeNetlink struct{}

func (fakeNetlink) RouteReplace(*rib.Route) error { return nil }
func (fakeNetlink) RouteDelete(*rib.Route) error  { return nil }

// fakeEnableSetter stands in for the loop's own goroutine in these
// dispatch-level tests, applying synchronously since there is no reactor
// running here to drain a channel.
type fakeEnableSetter struct{ st *state.State }

func (f fakeEnableSetter) SetEnabled(_ context.Context, v bool) { f.st.SetEnabled(v) }

func testServer(t *testing.T) (*Server, *state.State) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClock()

	ifaces, err := iface.Build(log, []config.InterfaceConfig{
		{Name: "nonexistent0", CapacityMbps: 1000, LinkActive: true},
	})
	require.NoError(t, err)

	neighbors := neighbor.New(clock, "A", 20_000_000_000)
	db := lsdb.New(clock, "A")
	syncer := rib.New(log, fakeNetlink{}, 99)
	var key codec.Key

	st := state.New("A", key, ifaces, neighbors, db, syncer)
	return New(log, st, fakeEnableSetter{st: st}, t.TempDir()+"/ctl.sock"), st
}

func TestDispatchNeighborsEmpty(t *testing.T) {
	s, _ := testServer(t)
	require.Equal(t, ".\n", s.dispatch(context.Background(), "neighbors"))
}

func TestDispatchNeighborsListsEntries(t *testing.T) {
	s, st := testServer(t)
	st.Neighbors.ObserveHello("nonexistent0", "10.0.0.2", &codec.Hello{RouterID: "B", CapacityMbps: 1000, KnownNeighbors: []string{"A"}})

	out := s.dispatch(context.Background(), "neighbors")
	require.True(t, strings.Contains(out, "nonexistent0 B 10.0.0.2 TWO_WAY"))
	require.True(t, strings.HasSuffix(out, ".\n"))
}

func TestDispatchRoutingTableEmpty(t *testing.T) {
	s, _ := testServer(t)
	require.Equal(t, ".\n", s.dispatch(context.Background(), "routing-table"))
}

func TestDispatchEnableDisenable(t *testing.T) {
	s, st := testServer(t)
	require.True(t, st.Enabled())

	require.Equal(t, "ok\n", s.dispatch(context.Background(), "disenable"))
	require.False(t, st.Enabled())

	require.Equal(t, "ok\n", s.dispatch(context.Background(), "enable"))
	require.True(t, st.Enabled())
}

func TestDispatchUnknownCommand(t *testing.T) {
	s, _ := testServer(t)
	out := s.dispatch(context.Background(), "bogus")
	require.Contains(t, out, "unknown command")
}

func TestDispatchStats(t *testing.T) {
	s, _ := testServer(t)
	out := s.dispatch(context.Background(), "stats")
	require.Contains(t, out, "enabled true")
	require.Contains(t, out, "neighbors 0")
	require.Contains(t, out, "routes 0")
}
