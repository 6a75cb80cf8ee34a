package flood

import (
	"io"
	"log/slog"
	"testing"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/LennyGonzales/P-OSPF/internal/config"
	"github.com/LennyGonzales/P-OSPF/internal/iface"
	"github.com/LennyGonzales/P-OSPF/internal/lsdb"
	"github.com/LennyGonzales/P-OSPF/internal/neighbor"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type sent struct {
	iface, dest string
	frame       []byte
}

type fakeSender struct {
	sends []sent
	fail  map[string]bool
}

func (f *fakeSender) SendTo(ifaceName, dest string, frame []byte) error {
	if f.fail[dest] {
		return errFake
	}
	f.sends = append(f.sends, sent{iface: ifaceName, dest: dest, frame: frame})
	return nil
}

var errFake = fakeErr("send failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// oneActiveIface builds a Table with a single interface absent from the
// test host, so it resolves admin_active=false and contributes no stub
// prefixes; Flooder only needs a non-nil Table, never specific addresses.
func oneActiveIface(t *testing.T) *iface.Table {
	t.Helper()
	tbl, err := iface.Build(testLogger(), []config.InterfaceConfig{
		{Name: "nonexistent0", CapacityMbps: 1000, LinkActive: true},
	})
	require.NoError(t, err)
	return tbl
}

func TestOriginateInstallsAndFloods(t *testing.T) {
	clock := clockwork.NewFakeClock()
	db := lsdb.New(clock, "A")
	neighbors := neighbor.New(clock, "A", 20_000_000_000)
	neighbors.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "B", CapacityMbps: 1000, KnownNeighbors: []string{"A"}})

	sender := &fakeSender{fail: map[string]bool{}}
	var key codec.Key
	f := New(testLogger(), "A", key, db, neighbors, oneActiveIface(t), sender)

	f.Originate()

	require.NotNil(t, db.Get("A"))
	require.Equal(t, uint64(1), db.Get("A").Seq)
	require.Len(t, sender.sends, 1)
	require.Equal(t, "10.0.0.2", sender.sends[0].dest)
}

func TestReceiveInstalledRefloodsExceptIngress(t *testing.T) {
	clock := clockwork.NewFakeClock()
	db := lsdb.New(clock, "C")
	neighbors := neighbor.New(clock, "C", 20_000_000_000)
	neighbors.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "A", CapacityMbps: 1000, KnownNeighbors: []string{"C"}})
	neighbors.ObserveHello("eth1", "10.0.1.2", &codec.Hello{RouterID: "D", CapacityMbps: 1000, KnownNeighbors: []string{"C"}})

	sender := &fakeSender{fail: map[string]bool{}}
	var key codec.Key
	f := New(testLogger(), "C", key, db, neighbors, oneActiveIface(t), sender)

	lsa := &codec.LSA{Origin: "A", Seq: 1, Links: []codec.Link{{Peer: "B", Cost: 1, Up: true}}}
	f.Receive("eth0", "10.0.0.2", lsa, []byte("frame"))

	require.Len(t, sender.sends, 1, "must not re-flood back to the ingress neighbor A")
	require.Equal(t, "10.0.1.2", sender.sends[0].dest)
}

func TestReceiveDuplicateDropsSilently(t *testing.T) {
	clock := clockwork.NewFakeClock()
	db := lsdb.New(clock, "C")
	neighbors := neighbor.New(clock, "C", 20_000_000_000)

	sender := &fakeSender{fail: map[string]bool{}}
	var key codec.Key
	f := New(testLogger(), "C", key, db, neighbors, oneActiveIface(t), sender)

	lsa := &codec.LSA{Origin: "A", Seq: 7}
	f.Receive("eth0", "10.0.0.2", lsa, []byte("frame1"))
	sender.sends = nil
	f.Receive("eth1", "10.0.1.2", lsa, []byte("frame2"))

	require.Empty(t, sender.sends, "duplicate (origin,seq) must not be re-forwarded")
}

func TestReceiveLogsDuplicateStubPrefixClaimButDropsNeitherRouter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	db := lsdb.New(clock, "C")
	neighbors := neighbor.New(clock, "C", 20_000_000_000)

	sender := &fakeSender{fail: map[string]bool{}}
	var key codec.Key
	f := New(testLogger(), "C", key, db, neighbors, oneActiveIface(t), sender)

	f.Receive("eth0", "10.0.0.2", &codec.LSA{Origin: "A", Seq: 1, StubPrefixes: []string{"10.1.0.0/24"}}, []byte("frameA"))
	f.Receive("eth1", "10.0.1.2", &codec.LSA{Origin: "B", Seq: 1, StubPrefixes: []string{"10.1.0.0/24"}}, []byte("frameB"))

	byOrigin := db.StubPrefixesByOrigin()
	require.Equal(t, []string{"10.1.0.0/24"}, byOrigin["A"])
	require.Empty(t, byOrigin["B"], "B's later claim on A's prefix must be excluded, not merged")
}

func TestReceiveStaleDropsSilently(t *testing.T) {
	clock := clockwork.NewFakeClock()
	db := lsdb.New(clock, "C")
	neighbors := neighbor.New(clock, "C", 20_000_000_000)

	sender := &fakeSender{fail: map[string]bool{}}
	var key codec.Key
	f := New(testLogger(), "C", key, db, neighbors, oneActiveIface(t), sender)

	f.Receive("eth0", "10.0.0.2", &codec.LSA{Origin: "A", Seq: 12}, []byte("frame12"))
	sender.sends = nil
	f.Receive("eth0", "10.0.0.2", &codec.LSA{Origin: "A", Seq: 5}, []byte("frame5"))

	require.Empty(t, sender.sends)
	require.Equal(t, uint64(12), db.Get("A").Seq)
}

// TestReceiveSplitHorizonKeysOnIngressLinkNotRouterID covers the case
// where the same originating router is also a TWO_WAY neighbor reachable
// over two different links: only the actual ingress (interface,
// peer_ipv4) pair must be excluded from re-flooding, not every neighbor
// entry that happens to share its router id.
func TestReceiveSplitHorizonKeysOnIngressLinkNotRouterID(t *testing.T) {
	clock := clockwork.NewFakeClock()
	db := lsdb.New(clock, "C")
	neighbors := neighbor.New(clock, "C", 20_000_000_000)
	neighbors.ObserveHello("eth0", "10.0.0.2", &codec.Hello{RouterID: "A", CapacityMbps: 1000, KnownNeighbors: []string{"C"}})
	neighbors.ObserveHello("eth1", "10.0.1.2", &codec.Hello{RouterID: "A", CapacityMbps: 1000, KnownNeighbors: []string{"C"}})

	sender := &fakeSender{fail: map[string]bool{}}
	var key codec.Key
	f := New(testLogger(), "C", key, db, neighbors, oneActiveIface(t), sender)

	lsa := &codec.LSA{Origin: "A", Seq: 1, Links: []codec.Link{{Peer: "B", Cost: 1, Up: true}}}
	f.Receive("eth0", "10.0.0.2", lsa, []byte("frame"))

	require.Len(t, sender.sends, 1, "must still re-flood out the second link to the same router id")
	require.Equal(t, "10.0.1.2", sender.sends[0].dest)
}
