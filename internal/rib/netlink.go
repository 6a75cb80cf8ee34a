//go:build linux

package rib

import (
	"fmt"

	nl "github.com/vishvananda/netlink"
)

// Netlink is the production Netlinker, backed by vishvananda/netlink
// exactly as the teacher's `routing.Netlink` is (RouteReplace/RouteDel).
// Routes are tagged with a distinguishing protocol id so P-OSPF never
// touches routes it did not install (spec.md §5).
type Netlink struct {
	ProtoID int
}

func (n Netlink) RouteReplace(r *Route) error {
	link, err := nl.LinkByName(r.Interface)
	if err != nil {
		return fmt.Errorf("rib: link %s: %w", r.Interface, err)
	}
	return nl.RouteReplace(&nl.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       r.Dest,
		Gw:        r.NextHop,
		Protocol:  nl.RouteProtocol(n.ProtoID),
	})
}

func (n Netlink) RouteDelete(r *Route) error {
	link, err := nl.LinkByName(r.Interface)
	if err != nil {
		return fmt.Errorf("rib: link %s: %w", r.Interface, err)
	}
	return nl.RouteDel(&nl.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       r.Dest,
		Gw:        r.NextHop,
		Protocol:  nl.RouteProtocol(n.ProtoID),
	})
}

// ListOwned lists routes tagged with this process's protocol id, as an
// optimization for recovering shadow state after a restart (spec.md §6);
// the RIBSyncer does not otherwise depend on it.
func (n Netlink) ListOwned() ([]*Route, error) {
	filter := &nl.Route{Protocol: nl.RouteProtocol(n.ProtoID)}
	routes, err := nl.RouteListFiltered(nl.FAMILY_V4, filter, nl.RT_FILTER_PROTOCOL)
	if err != nil {
		return nil, err
	}
	out := make([]*Route, 0, len(routes))
	for _, r := range routes {
		link, err := nl.LinkByIndex(r.LinkIndex)
		ifName := ""
		if err == nil {
			ifName = link.Attrs().Name
		}
		out = append(out, &Route{Dest: r.Dst, NextHop: r.Gw, Interface: ifName})
	}
	return out, nil
}
