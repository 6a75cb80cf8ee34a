// Package rib implements spec.md §4.7's RIBSyncer: it diffs the latest
// SPF decisions against a KernelRouteShadow and reconciles the kernel
// forwarding table, owning only the routes it installed. Grounded
// directly on the teacher's `internal/routing/netlink.go` (RouteAdd via
// `nl.RouteReplace`, RouteDelete via `nl.RouteDel`, protocol-filtered
// listing), adapted from DoubleZero tunnel routes to OSPF next-hop
// routes.
package rib

import (
	"fmt"
	"net"
	"sync"

	"github.com/LennyGonzales/P-OSPF/internal/spf"
	"log/slog"
)

// Route is the kernel-facing route record, keyed the way spec.md §6's
// kernel routing interface requires: (destination prefix, egress
// interface, next hop).
type Route struct {
	Dest      *net.IPNet
	NextHop   net.IP
	Interface string
	Cost      uint32
}

func (r *Route) key() routeKey {
	return routeKey{dest: r.Dest.String(), iface: r.Interface}
}

type routeKey struct {
	dest  string
	iface string
}

// Netlinker is the kernel routing interface: RouteReplace (add-or-replace)
// and RouteDelete, each given the route's (prefix, interface, next hop).
// Listing owned routes is the separate, optional OwnershipLister.
// Implemented by Netlink (vishvananda/netlink) in prod, faked in tests.
type Netlinker interface {
	RouteReplace(r *Route) error
	RouteDelete(r *Route) error
}

// OwnershipLister is an optional Netlinker capability for recovering
// routes this process installed before a restart (spec.md §6: list-owned
// is purely an optimization, never required for correctness since
// Reconcile will re-add anything missing on its own).
type OwnershipLister interface {
	ListOwned() ([]*Route, error)
}

// Syncer is spec.md §4.7's RIBSyncer. mu guards shadow: Reconcile and
// Purge run on the packet loop's own goroutine (the rib_sync timer and the
// loop-applied enable/disenable request), but Shadow is also reachable
// from the control port's per-connection goroutines (internal/control's
// "routing-table" and "stats" commands), the same cross-goroutine sharing
// internal/neighbor's Table and internal/lsdb's DB guard with their own
// mutexes.
type Syncer struct {
	log     *slog.Logger
	nl      Netlinker
	protoID int // a distinguishing route protocol id, so foreign routes are never touched

	mu     sync.Mutex
	shadow map[routeKey]*Route // KernelRouteShadow: what this process has installed
}

func New(log *slog.Logger, nl Netlinker, protoID int) *Syncer {
	return &Syncer{
		log:     log,
		nl:      nl,
		protoID: protoID,
		shadow:  make(map[routeKey]*Route),
	}
}

// AdoptShadow seeds the shadow from whatever this process's protocol id
// already owns in the kernel table, so a restart doesn't leak or
// re-install routes it installed before exiting. A no-op when nl doesn't
// implement OwnershipLister (e.g. the fake Netlinker tests use).
func (s *Syncer) AdoptShadow() error {
	lister, ok := s.nl.(OwnershipLister)
	if !ok {
		return nil
	}
	routes, err := lister.ListOwned()
	if err != nil {
		return fmt.Errorf("rib: list owned routes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range routes {
		s.shadow[r.key()] = r
	}
	return nil
}

// Reconcile implements spec.md §4.7's single-pass diff: add/replace
// anything changed or missing, then delete anything in the shadow that
// the latest decisions no longer want. The shadow is updated only on
// success of each individual operation; failures are logged and retried
// on the next call (spec.md §7's KernelRouteError policy).
func (s *Syncer) Reconcile(decisions []spf.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[routeKey]*Route, len(decisions))
	for _, d := range decisions {
		r := &Route{Dest: d.DestPrefix, NextHop: net.ParseIP(d.NextHopIPv4), Interface: d.EgressInterface, Cost: d.Cost}
		wanted[r.key()] = r
	}

	for k, r := range wanted {
		cur, installed := s.shadow[k]
		if installed && cur.NextHop.Equal(r.NextHop) && cur.Interface == r.Interface {
			continue
		}
		if err := s.nl.RouteReplace(r); err != nil {
			s.log.Error("rib: route replace failed, will retry next cycle", "route", r.Dest.String(), "error", err)
			continue
		}
		s.shadow[k] = r
	}

	for k, r := range s.shadow {
		if _, stillWanted := wanted[k]; stillWanted {
			continue
		}
		if err := s.nl.RouteDelete(r); err != nil {
			s.log.Error("rib: route delete failed, will retry next cycle", "route", r.Dest.String(), "error", err)
			continue
		}
		delete(s.shadow, k)
	}
}

// Purge deletes every shadow route and clears the shadow: spec.md §4.7's
// behavior on enable_flag transitioning to false.
func (s *Syncer) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, r := range s.shadow {
		if err := s.nl.RouteDelete(r); err != nil {
			s.log.Error("rib: route delete failed during purge", "route", r.Dest.String(), "error", err)
			continue
		}
		delete(s.shadow, k)
	}
}

// Shadow returns a snapshot of currently-installed routes, for the
// control port's routing-table command.
func (s *Syncer) Shadow() []Route {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Route, 0, len(s.shadow))
	for _, r := range s.shadow {
		out = append(out, *r)
	}
	return out
}

func (r *Route) String() string {
	return fmt.Sprintf("%s via %s dev %s cost %d", r.Dest, r.NextHop, r.Interface, r.Cost)
}
