// Package state composes spec.md §3's AppState: the single
// process-wide, synchronized set of {InterfaceTable, NeighborTable, LSDB,
// KernelRouteShadow, enable_flag, shared_key}. It is mutated only by the
// packet loop (C8); the control port (C9) reads it from its own connection
// goroutines through each component's locked accessors, and its
// enable/disenable toggles are applied on the loop's own goroutine
// (spec.md §5). Grounded on the composed-struct
// shape of the teacher's `manager.NetlinkManager` (fields for every
// owned subsystem plus one mutex/atomic for cross-cutting flags).
package state

import (
	"sync/atomic"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/LennyGonzales/P-OSPF/internal/iface"
	"github.com/LennyGonzales/P-OSPF/internal/lsdb"
	"github.com/LennyGonzales/P-OSPF/internal/neighbor"
	"github.com/LennyGonzales/P-OSPF/internal/rib"
)

// State is the AppState spec.md §3 describes.
type State struct {
	RouterID string
	Key      codec.Key

	Interfaces *iface.Table
	Neighbors  *neighbor.Table
	LSDB       *lsdb.DB
	RIB        *rib.Syncer

	enabled atomic.Bool
}

func New(routerID string, key codec.Key, interfaces *iface.Table, neighbors *neighbor.Table, db *lsdb.DB, syncer *rib.Syncer) *State {
	s := &State{
		RouterID:   routerID,
		Key:        key,
		Interfaces: interfaces,
		Neighbors:  neighbors,
		LSDB:       db,
		RIB:        syncer,
	}
	s.enabled.Store(true)
	return s
}

// Enabled reports the routing function's enable_flag.
func (s *State) Enabled() bool { return s.enabled.Load() }

// SetEnabled implements the control port's `enable`/`disenable` commands.
// Transitioning to false purges every RIB-owned route (spec.md §4.7).
func (s *State) SetEnabled(v bool) {
	wasEnabled := s.enabled.Swap(v)
	if wasEnabled && !v {
		s.RIB.Purge()
	}
}
