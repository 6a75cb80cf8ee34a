// Package neighbor implements spec.md §4.3's NeighborTable: per-interface
// discovery, timeout, and INIT/TWO_WAY/DOWN lifecycle management, grounded
// on the liveness session/state-machine shape of the teacher package
// `internal/liveness` (sessions keyed by peer, mutex-guarded timestamps,
// two-phase removal on expiry).
package neighbor

import (
	"sync"
	"time"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/jonboulle/clockwork"
)

// State is spec.md §3's neighbor lifecycle state.
type State uint8

const (
	Init State = iota
	TwoWay
	Down
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case TwoWay:
		return "TWO_WAY"
	case Down:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// Neighbor is spec.md §3's Neighbor record.
type Neighbor struct {
	RouterID           string
	PeerIPv4           string
	OnInterface        string
	LastHelloAt        time.Time
	State              State
	AdvertisedCapacity uint32

	pendingRemoval bool // set once DOWN has been observed for one sweep
}

type key struct {
	iface string
	peer  string
}

// Table is the per-interface peer_ipv4 → Neighbor map spec.md §4.3
// describes, guarded by a single mutex since it is only ever mutated by
// the packet loop (C8).
type Table struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	localRouter  string
	deadInterval time.Duration
	entries      map[key]*Neighbor
}

// Event is a topology event: any neighbor presence/state change whose
// resolution may alter routing output (spec.md glossary).
type Event struct {
	Neighbor *Neighbor
	Kind     EventKind
}

type EventKind uint8

const (
	EventDiscovered EventKind = iota
	EventTwoWay
	EventDown
	EventRemoved
)

func New(clock clockwork.Clock, localRouterID string, deadInterval time.Duration) *Table {
	return &Table{
		clock:        clock,
		localRouter:  localRouterID,
		deadInterval: deadInterval,
		entries:      make(map[key]*Neighbor),
	}
}

// ObserveHello implements spec.md §4.3's observe_hello operation, returning
// any topology event it produced.
func (t *Table) ObserveHello(onInterface, peerIPv4 string, hello *codec.Hello) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{iface: onInterface, peer: peerIPv4}
	var events []Event

	n, exists := t.entries[k]
	if !exists {
		n = &Neighbor{
			RouterID:    hello.RouterID,
			PeerIPv4:    peerIPv4,
			OnInterface: onInterface,
			State:       Init,
		}
		t.entries[k] = n
		events = append(events, Event{Neighbor: n, Kind: EventDiscovered})
	}

	n.RouterID = hello.RouterID
	n.AdvertisedCapacity = hello.CapacityMbps
	n.LastHelloAt = t.clock.Now()
	n.pendingRemoval = false

	sawUs := false
	for _, id := range hello.KnownNeighbors {
		if id == t.localRouter {
			sawUs = true
			break
		}
	}

	if sawUs && n.State != TwoWay {
		n.State = TwoWay
		events = append(events, Event{Neighbor: n, Kind: EventTwoWay})
	} else if !sawUs && n.State == TwoWay {
		// Peer no longer lists us: fall back to INIT without removing the
		// entry; this is not itself one of spec.md's named transitions but
		// keeps state consistent until the next HELLO or timeout resolves it.
		n.State = Init
	}

	return events
}

// Sweep implements spec.md §4.3's sweep operation: two-phase DOWN
// detection then removal, so consumers observe the transition exactly
// once.
func (t *Table) Sweep() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	var events []Event

	for k, n := range t.entries {
		if n.pendingRemoval {
			delete(t.entries, k)
			events = append(events, Event{Neighbor: n, Kind: EventRemoved})
			continue
		}
		if n.State != Down && now.Sub(n.LastHelloAt) > t.deadInterval {
			n.State = Down
			n.pendingRemoval = true
			events = append(events, Event{Neighbor: n, Kind: EventDown})
		}
	}

	return events
}

// TwoWayNeighbor is the per-(origin) entry spec.md §4.3's snapshot_twoway
// returns.
type TwoWayNeighbor struct {
	RouterID          string
	PeerIPv4          string
	OnInterface       string
	EffectiveLinkCost uint32
}

// SnapshotTwoWay implements spec.md §4.3's snapshot_twoway, joining each
// TWO_WAY neighbor against the local interface's capacity to compute the
// effective link cost.
func (t *Table) SnapshotTwoWay(localCapacity func(iface string) uint32) []TwoWayNeighbor {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TwoWayNeighbor, 0, len(t.entries))
	for _, n := range t.entries {
		if n.State != TwoWay {
			continue
		}
		localCap := localCapacity(n.OnInterface)
		cap := localCap
		if n.AdvertisedCapacity < cap {
			cap = n.AdvertisedCapacity
		}
		out = append(out, TwoWayNeighbor{
			RouterID:          n.RouterID,
			PeerIPv4:          n.PeerIPv4,
			OnInterface:       n.OnInterface,
			EffectiveLinkCost: Cost(cap),
		})
	}
	return out
}

// RouterIDsOnInterface returns the router ids of every neighbor heard on
// the given interface, for populating a HELLO's known_neighbors field.
func (t *Table) RouterIDsOnInterface(onInterface string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for k, n := range t.entries {
		if k.iface == onInterface {
			out = append(out, n.RouterID)
		}
	}
	return out
}

// All returns a snapshot of every neighbor entry, for the control port.
func (t *Table) All() []Neighbor {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Neighbor, 0, len(t.entries))
	for _, n := range t.entries {
		out = append(out, *n)
	}
	return out
}
