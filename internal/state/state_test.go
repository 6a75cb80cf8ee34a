package state

import (
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/LennyGonzales/P-OSPF/internal/config"
	"github.com/LennyGonzales/P-OSPF/internal/iface"
	"github.com/LennyGonzales/P-OSPF/internal/lsdb"
	"github.com/LennyGonzales/P-OSPF/internal/neighbor"
	"github.com/LennyGonzales/P-OSPF/internal/rib"
	"github.com/LennyGonzales/P-OSPF/internal/spf"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeNetlink struct{ deleted int }

func (f *fakeNetlink) RouteReplace(*rib.Route) error { return nil }
func (f *fakeNetlink) RouteDelete(*rib.Route) error  { f.deleted++; return nil }

func testState(t *testing.T) (*State, *fakeNetlink) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClock()

	ifaces, err := iface.Build(log, []config.InterfaceConfig{
		{Name: "nonexistent0", CapacityMbps: 1000, LinkActive: true},
	})
	require.NoError(t, err)

	nl := &fakeNetlink{}
	syncer := rib.New(log, nl, 89)
	st := New("A", codec.Key{}, ifaces, neighbor.New(clock, "A", 20_000_000_000), lsdb.New(clock, "A"), syncer)
	return st, nl
}

func TestNewStateStartsEnabled(t *testing.T) {
	st, _ := testState(t)
	require.True(t, st.Enabled())
}

func TestSetEnabledFalsePurgesRIB(t *testing.T) {
	st, nl := testState(t)

	_, dest, _ := net.ParseCIDR("10.1.0.0/24")
	st.RIB.Reconcile([]spf.Decision{{DestPrefix: dest, NextHopIPv4: "10.0.0.2", EgressInterface: "nonexistent0", Cost: 1}})
	require.Len(t, st.RIB.Shadow(), 1)

	st.SetEnabled(false)
	require.False(t, st.Enabled())
	require.Equal(t, 1, nl.deleted)
	require.Empty(t, st.RIB.Shadow())
}

func TestSetEnabledTrueAfterFalseIsNoopOnRIB(t *testing.T) {
	st, nl := testState(t)

	st.SetEnabled(false)
	st.SetEnabled(true)
	require.True(t, st.Enabled())
	require.Equal(t, 0, nl.deleted)
}
