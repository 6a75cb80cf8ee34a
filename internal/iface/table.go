// Package iface implements spec.md §4.2's InterfaceTable: a read-only,
// once-built mapping from configured interface name to its resolved
// IPv4/broadcast address, nominal capacity, and admin state.
package iface

import (
	"fmt"
	"net"

	"github.com/LennyGonzales/P-OSPF/internal/config"
	"log/slog"
)

// Interface is spec.md §3's Interface record. Network is the resolved
// IPv4/mask the address was found under, used to derive both the
// broadcast address and the stub prefix advertised in the local LSA.
type Interface struct {
	Name          string
	IPv4          net.IP
	BroadcastIPv4 net.IP
	Network       *net.IPNet
	CapacityMbps  uint32
	AdminActive   bool
}

// Table is the immutable-for-the-run interface set, built once at startup
// from config plus OS enumeration (spec.md §4.2).
type Table struct {
	byName map[string]*Interface
	order  []string // config order, for deterministic iteration
}

// netInterfaceAddrs abstracts *net.Interface.Addrs for testability.
type netInterfaceAddrs func(name string) ([]net.Addr, error)

func defaultAddrs(name string) ([]net.Addr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return ifi.Addrs()
}

// Build constructs the InterfaceTable from RouterConfig. Interfaces named
// in config but absent on the host, or lacking a usable IPv4 address, are
// logged and marked admin_active=false (spec.md §4.2).
func Build(log *slog.Logger, cfgIfaces []config.InterfaceConfig) (*Table, error) {
	return build(log, cfgIfaces, defaultAddrs)
}

func build(log *slog.Logger, cfgIfaces []config.InterfaceConfig, addrsFn netInterfaceAddrs) (*Table, error) {
	t := &Table{byName: make(map[string]*Interface, len(cfgIfaces))}

	for _, c := range cfgIfaces {
		entry := &Interface{
			Name:         c.Name,
			CapacityMbps: c.CapacityMbps,
			AdminActive:  c.LinkActive,
		}

		addrs, err := addrsFn(c.Name)
		if err != nil {
			log.Warn("iface: configured interface not found on host, marking inactive", "iface", c.Name, "error", err)
			entry.AdminActive = false
			t.byName[c.Name] = entry
			t.order = append(t.order, c.Name)
			continue
		}

		ip4, network, bcast, err := firstIPv4(addrs)
		if err != nil {
			log.Warn("iface: configured interface has no usable IPv4 address, marking inactive", "iface", c.Name, "error", err)
			entry.AdminActive = false
			t.byName[c.Name] = entry
			t.order = append(t.order, c.Name)
			continue
		}

		entry.IPv4 = ip4
		entry.Network = network
		entry.BroadcastIPv4 = bcast
		t.byName[c.Name] = entry
		t.order = append(t.order, c.Name)
	}

	if len(t.byName) == 0 {
		return nil, fmt.Errorf("iface: no interfaces configured")
	}
	return t, nil
}

func firstIPv4(addrs []net.Addr) (ip net.IP, network *net.IPNet, broadcast net.IP, err error) {
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipn.IP.To4()
		if ip4 == nil {
			continue
		}
		mask := ipn.Mask
		if len(mask) == 16 {
			mask = mask[12:]
		}
		bcast := make(net.IP, len(ip4))
		for i := range ip4 {
			bcast[i] = ip4[i] | ^mask[i]
		}
		return ip4, &net.IPNet{IP: ip4.Mask(mask), Mask: mask}, bcast, nil
	}
	return nil, nil, nil, fmt.Errorf("no IPv4 address found")
}

// Get returns the named interface, or nil if it was never configured.
func (t *Table) Get(name string) *Interface {
	return t.byName[name]
}

// Active returns every admin-active interface, in config order.
func (t *Table) Active() []*Interface {
	out := make([]*Interface, 0, len(t.order))
	for _, name := range t.order {
		if ifc := t.byName[name]; ifc != nil && ifc.AdminActive {
			out = append(out, ifc)
		}
	}
	return out
}

// All returns every configured interface, in config order.
func (t *Table) All() []*Interface {
	out := make([]*Interface, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.byName[name])
	}
	return out
}

// StubPrefix returns the directly-attached subnet for an interface, used by
// C6 SPF's stub_prefixes advertisement (spec.md §4.6).
func (ifc *Interface) StubPrefix() *net.IPNet {
	return ifc.Network
}
