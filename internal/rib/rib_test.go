package rib

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/LennyGonzales/P-OSPF/internal/spf"
	"github.com/stretchr/testify/require"
)

type fakeNetlink struct {
	replaced []*Route
	deleted  []*Route
	failNext bool
}

func (f *fakeNetlink) RouteReplace(r *Route) error {
	if f.failNext {
		f.failNext = false
		return errors.New("injected failure")
	}
	f.replaced = append(f.replaced, r)
	return nil
}

func (f *fakeNetlink) RouteDelete(r *Route) error {
	f.deleted = append(f.deleted, r)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decision(prefix, nextHop, iface string, cost uint32) spf.Decision {
	_, p, _ := net.ParseCIDR(prefix)
	return spf.Decision{DestPrefix: p, NextHopIPv4: nextHop, EgressInterface: iface, Cost: cost}
}

func TestReconcileInstallsNewRoutes(t *testing.T) {
	fnl := &fakeNetlink{}
	s := New(testLogger(), fnl, 99)

	s.Reconcile([]spf.Decision{decision("10.0.0.0/24", "10.0.0.2", "eth0", 1)})
	require.Len(t, fnl.replaced, 1)
	require.Len(t, s.Shadow(), 1)
}

func TestReconcileIsNoopWhenUnchanged(t *testing.T) {
	fnl := &fakeNetlink{}
	s := New(testLogger(), fnl, 99)
	d := []spf.Decision{decision("10.0.0.0/24", "10.0.0.2", "eth0", 1)}

	s.Reconcile(d)
	s.Reconcile(d)
	require.Len(t, fnl.replaced, 1, "second reconcile with identical decision should not re-replace")
}

func TestReconcileDeletesWithdrawnRoutes(t *testing.T) {
	fnl := &fakeNetlink{}
	s := New(testLogger(), fnl, 99)

	s.Reconcile([]spf.Decision{decision("10.0.0.0/24", "10.0.0.2", "eth0", 1)})
	s.Reconcile(nil)

	require.Len(t, fnl.deleted, 1)
	require.Empty(t, s.Shadow())
}

func TestReconcileNeverTouchesUnownedRoutes(t *testing.T) {
	fnl := &fakeNetlink{}
	s := New(testLogger(), fnl, 99)

	// Nothing in shadow yet; Reconcile with empty decisions must not
	// attempt any delete.
	s.Reconcile(nil)
	require.Empty(t, fnl.deleted)
}

func TestReconcileRetriesAfterFailure(t *testing.T) {
	fnl := &fakeNetlink{failNext: true}
	s := New(testLogger(), fnl, 99)
	d := []spf.Decision{decision("10.0.0.0/24", "10.0.0.2", "eth0", 1)}

	s.Reconcile(d)
	require.Empty(t, s.Shadow(), "failed replace must not update shadow")

	s.Reconcile(d)
	require.Len(t, s.Shadow(), 1, "retry on next cycle should succeed")
}

func TestPurgeClearsShadow(t *testing.T) {
	fnl := &fakeNetlink{}
	s := New(testLogger(), fnl, 99)
	s.Reconcile([]spf.Decision{decision("10.0.0.0/24", "10.0.0.2", "eth0", 1)})

	s.Purge()
	require.Empty(t, s.Shadow())
	require.Len(t, fnl.deleted, 1)
}
