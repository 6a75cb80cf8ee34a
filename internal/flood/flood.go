// Package flood implements spec.md §4.5's Flooder: origination of the
// local LSA on topology change or refresh interval, reception/validation/
// forwarding with split-horizon and de-duplication via LSDB monotonicity.
// Grounded on the teacher's reconcile-on-ticker-or-signal loop shape
// (`internal/manager/manager.go`'s `StartReconciler`) for "originate on
// event OR on interval"; the per-neighbor fan-out itself stays a plain
// sequential loop since a router's neighbor count is small and bounded
// by interface count, not worth a concurrency limiter.
package flood

import (
	"log/slog"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/LennyGonzales/P-OSPF/internal/iface"
	"github.com/LennyGonzales/P-OSPF/internal/lsdb"
	"github.com/LennyGonzales/P-OSPF/internal/neighbor"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricFloodsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posp_flood_sends_total",
		Help: "LSA datagrams sent, by outcome",
	}, []string{"outcome"})
	metricDuplicateOrStale = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posp_lsa_drops_total",
		Help: "Incoming LSAs dropped, by reason",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(metricFloodsSent, metricDuplicateOrStale)
}

// Sender abstracts per-neighbor UDP unicast send so the loop package (C8)
// owns the actual sockets; Flooder only decides who gets what.
type Sender interface {
	SendTo(iface, destIPv4 string, frame []byte) error
}

// Flooder is spec.md §4.5's Flooder.
type Flooder struct {
	log         *slog.Logger
	localRouter string
	key         codec.Key
	db          *lsdb.DB
	neighbors   *neighbor.Table
	ifaces      *iface.Table
	sender      Sender
}

func New(log *slog.Logger, localRouter string, key codec.Key, db *lsdb.DB, neighbors *neighbor.Table, ifaces *iface.Table, sender Sender) *Flooder {
	return &Flooder{
		log:         log,
		localRouter: localRouter,
		key:         key,
		db:          db,
		neighbors:   neighbors,
		ifaces:      ifaces,
		sender:      sender,
	}
}

// Originate builds a fresh local LSA from the current TWO_WAY neighbor
// set and active interfaces' stub prefixes, installs it, and floods it to
// every TWO_WAY neighbor (spec.md §4.5.1).
func (f *Flooder) Originate() {
	twoWay := f.neighbors.SnapshotTwoWay(func(ifName string) uint32 {
		if ifc := f.ifaces.Get(ifName); ifc != nil {
			return ifc.CapacityMbps
		}
		return 0
	})

	links := make([]lsdb.Link, 0, len(twoWay))
	for _, n := range twoWay {
		links = append(links, lsdb.Link{Peer: n.RouterID, Cost: n.EffectiveLinkCost, Up: true})
	}

	var stubs []string
	for _, ifc := range f.ifaces.Active() {
		if p := ifc.StubPrefix(); p != nil {
			stubs = append(stubs, p.String())
		}
	}

	rec := f.db.InstallLocal(links, stubs)
	f.logPrefixConflicts()
	frame, err := codec.EncodeLSA(f.key, toWire(rec))
	if err != nil {
		f.log.Error("flood: encode local lsa failed", "error", err)
		return
	}
	rec.RawEncoded = frame

	f.floodTo(frame, twoWay, "", "")
}

// Receive implements spec.md §4.5.2: offer to the LSDB, then re-flood on
// Installed, split-horizon by the specific ingress (interface, peer_ipv4)
// the LSA arrived on — not by router id, so a router reachable via two
// interfaces only has its actual ingress link excluded, not both. The
// outcome is returned so the packet loop (C8) knows whether a topology
// event occurred and SPF should be scheduled.
func (f *Flooder) Receive(ingressIface, ingressPeerIPv4 string, lsa *codec.LSA, rawFrame []byte) lsdb.Outcome {
	rec := lsdb.Record{
		Origin:       lsa.Origin,
		Seq:          lsa.Seq,
		Links:        lsdb.LinksFromCodec(lsa.Links),
		StubPrefixes: lsa.StubPrefixes,
		RawEncoded:   rawFrame,
	}

	outcome := f.db.Offer(rec)
	f.logPrefixConflicts()
	switch outcome {
	case lsdb.Installed:
		metricFloodsSent.WithLabelValues("installed").Inc()
		twoWay := f.neighbors.SnapshotTwoWay(func(ifName string) uint32 {
			if ifc := f.ifaces.Get(ifName); ifc != nil {
				return ifc.CapacityMbps
			}
			return 0
		})
		f.floodTo(rawFrame, twoWay, ingressIface, ingressPeerIPv4)
	case lsdb.Duplicate:
		metricDuplicateOrStale.WithLabelValues("duplicate").Inc()
	case lsdb.Stale:
		metricDuplicateOrStale.WithLabelValues("stale").Inc()
	case lsdb.Rejected:
		// Origin was our own router id; spec.md forbids accepting this via offer().
	}
	return outcome
}

// logPrefixConflicts drains and logs any stub-prefix claims the LSDB just
// rejected in favor of an earlier claimant (spec.md §9's first-installed-
// wins rule — never silently re-preferred, always logged).
func (f *Flooder) logPrefixConflicts() {
	for _, c := range f.db.DrainPrefixConflicts() {
		f.log.Warn("flood: rejecting duplicate stub-prefix claim", "prefix", c.Prefix, "owner", c.Owner, "rejected_from", c.RejectedFrom)
	}
}

func (f *Flooder) floodTo(frame []byte, twoWay []neighbor.TwoWayNeighbor, exceptIface, exceptPeerIPv4 string) {
	for _, n := range twoWay {
		if n.OnInterface == exceptIface && n.PeerIPv4 == exceptPeerIPv4 {
			continue
		}
		if err := f.sender.SendTo(n.OnInterface, n.PeerIPv4, frame); err != nil {
			f.log.Warn("flood: send failed, will retry on next trigger", "peer", n.PeerIPv4, "iface", n.OnInterface, "error", err)
			metricFloodsSent.WithLabelValues("send_error").Inc()
			continue
		}
		metricFloodsSent.WithLabelValues("sent").Inc()
	}
}

func toWire(rec *lsdb.Record) *codec.LSA {
	links := make([]codec.Link, len(rec.Links))
	for i, l := range rec.Links {
		links[i] = codec.Link{Peer: l.Peer, Cost: l.Cost, Up: l.Up}
	}
	return &codec.LSA{
		Origin:       rec.Origin,
		Seq:          rec.Seq,
		Links:        links,
		StubPrefixes: rec.StubPrefixes,
	}
}
