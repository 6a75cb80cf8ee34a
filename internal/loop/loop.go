package loop

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/LennyGonzales/P-OSPF/internal/flood"
	"github.com/LennyGonzales/P-OSPF/internal/lsdb"
	"github.com/LennyGonzales/P-OSPF/internal/neighbor"
	"github.com/LennyGonzales/P-OSPF/internal/spf"
	"github.com/LennyGonzales/P-OSPF/internal/state"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoSocketsBound is returned by Run when every admin-active interface
// failed to bind a socket: spec.md §7 treats "bind failure on all
// interfaces" as fatal, and spec.md §6 reserves exit code 2 for it.
var ErrNoSocketsBound = errors.New("loop: failed to bind a socket on any admin-active interface")

var (
	metricInboundDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posp_loop_inbound_drops_total",
		Help: "Inbound datagrams dropped, by reason",
	}, []string{"reason"})
	metricSPFRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posp_loop_spf_runs_total",
		Help: "Number of times SPF was recomputed",
	})
)

func init() {
	prometheus.MustRegister(metricInboundDrops, metricSPFRuns)
}

// Intervals bundles the timer wheel's periods (spec.md §4.8), all derived
// from RouterConfig.
type Intervals struct {
	Hello        time.Duration
	LSARefresh   time.Duration
	Dead         time.Duration // also used as the neighbor sweep period
	LSDBExpire   time.Duration
	DebounceMin  time.Duration
	DebounceMax  time.Duration
	RIBSync      time.Duration
	UDPPort      int
}

// inboundDatagram is one decoded-ready frame read off a socket.
type inboundDatagram struct {
	frame []byte
	iface string
	src   string
}

// enableRequest carries a control-port enable/disenable command onto the
// loop's own goroutine (spec.md §5/§9), so the resulting state.SetEnabled
// (and its RIB purge) never races tick()'s own RIB.Reconcile call.
type enableRequest struct {
	value bool
	done  chan struct{}
}

// Loop is spec.md §4.8's PacketLoop (C8): the single reactor driving
// sockets, the timer wheel, and dispatch into C3/C5/C6/C7. Grounded on
// the teacher's scheduler shape (`internal/liveness/scheduler.go`'s
// single `select`-driven Run loop with explicit per-kind due-checks)
// generalized from a heap of per-session events to a small fixed set of
// named timers, since C8's timer set is static rather than per-peer.
type Loop struct {
	log   *slog.Logger
	clock clockwork.Clock
	st    *state.State
	flood *flood.Flooder
	ivl   Intervals

	sockets   map[string]*socket
	inbound   chan inboundDatagram
	enableReq chan enableRequest

	nextHello, nextSweep, nextLSA, nextExpire, nextRIBSync time.Time
	debouncePending                                        bool
	debounceDeadline                                       time.Time
	decisions                                              []spf.Decision
}

// New constructs the loop. flood.Flooder is built internally once Run
// binds the per-interface sockets, since Sender depends on them.
func New(log *slog.Logger, clock clockwork.Clock, st *state.State, ivl Intervals) *Loop {
	return &Loop{
		log:       log,
		clock:     clock,
		st:        st,
		ivl:       ivl,
		sockets:   make(map[string]*socket),
		inbound:   make(chan inboundDatagram, 256),
		enableReq: make(chan enableRequest),
	}
}

// SetEnabled implements the control port's `enable`/`disenable` commands
// (spec.md §6): it posts the request onto the loop's own goroutine and
// waits for it to apply, so the resulting state.SetEnabled (and any RIB
// purge) runs serialized with tick()'s own RIB.Reconcile call rather than
// racing it from the control port's connection goroutine (spec.md §5/§9).
// Returns without applying if ctx is canceled first, since the loop is
// shutting down in that case anyway.
func (l *Loop) SetEnabled(ctx context.Context, v bool) {
	req := enableRequest{value: v, done: make(chan struct{})}
	select {
	case l.enableReq <- req:
	case <-ctx.Done():
		return
	}
	select {
	case <-req.done:
	case <-ctx.Done():
	}
}

// Run binds one socket per admin-active interface, emits the startup
// HELLO burst, then drives the reactor until ctx is canceled. It returns
// ErrNoSocketsBound if every admin-active interface failed to bind
// (spec.md §7's fatal "bind failure on all interfaces" condition).
func (l *Loop) Run(ctx context.Context) error {
	for _, ifc := range l.st.Interfaces.Active() {
		s, err := newSocket(ifc.Name, ifc.IPv4, ifc.BroadcastIPv4, l.ivl.UDPPort)
		if err != nil {
			l.log.Error("loop: failed to bind interface, skipping", "iface", ifc.Name, "error", err)
			continue
		}
		l.sockets[ifc.Name] = s
		go l.readLoop(ctx, s)
	}
	defer l.closeSockets()

	if len(l.sockets) == 0 {
		return ErrNoSocketsBound
	}

	l.flood = flood.New(l.log, l.st.RouterID, l.st.Key, l.st.LSDB, l.st.Neighbors, l.st.Interfaces,
		socketSender{sockets: l.sockets, port: l.ivl.UDPPort})

	return l.reactor(ctx)
}

// reactor drives the select loop itself, split out of Run so it can be
// exercised without a real socket bind: sendHelloAll and the inbound
// channel are both safe to run against an empty sockets map.
func (l *Loop) reactor(ctx context.Context) error {
	now := l.clock.Now()
	l.nextHello = now
	l.nextSweep = now.Add(l.ivl.Dead)
	l.nextLSA = now
	l.nextExpire = now.Add(l.ivl.LSDBExpire)
	l.nextRIBSync = now.Add(l.ivl.RIBSync)

	// spec.md §4.8: emit one HELLO immediately on every active interface
	// to accelerate discovery, rather than waiting for the first tick.
	l.sendHelloAll()

	ticker := l.clock.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-l.enableReq:
			l.st.SetEnabled(req.value)
			close(req.done)
		case dg := <-l.inbound:
			l.handleInbound(dg)
			l.drainInboundThenTick()
		case <-ticker.Chan():
			l.tick()
		}
	}
}

// drainInboundThenTick implements step 1 of spec.md §4.8: drain every
// currently ready socket read before moving on to the timer wheel.
func (l *Loop) drainInboundThenTick() {
	for {
		select {
		case dg := <-l.inbound:
			l.handleInbound(dg)
		default:
			l.tick()
			return
		}
	}
}

func (l *Loop) readLoop(ctx context.Context, s *socket) {
	buf := make([]byte, 4096)
	for {
		n, src, err := s.readFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.log.Warn("loop: socket read failed", "iface", s.ifaceName, "error", err)
			continue
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		select {
		case l.inbound <- inboundDatagram{frame: frame, iface: s.ifaceName, src: src}:
		case <-ctx.Done():
			return
		default:
			metricInboundDrops.WithLabelValues("inbound_queue_full").Inc()
		}
	}
}

func (l *Loop) closeSockets() {
	for _, s := range l.sockets {
		_ = s.close()
	}
}

// handleInbound implements spec.md §4.8 step 1's decode-then-dispatch.
func (l *Loop) handleInbound(dg inboundDatagram) {
	msg, err := codec.Decode(l.st.Key, dg.frame)
	if err != nil {
		l.log.Debug("loop: dropping undecodable datagram", "iface", dg.iface, "src", dg.src, "error", err)
		metricInboundDrops.WithLabelValues("decode_error").Inc()
		return
	}

	switch msg.Kind {
	case codec.KindHello:
		events := l.st.Neighbors.ObserveHello(dg.iface, dg.src, msg.Hello)
		for _, ev := range events {
			if ev.Kind == neighbor.EventTwoWay || ev.Kind == neighbor.EventDown || ev.Kind == neighbor.EventRemoved {
				l.scheduleDebounce()
			}
		}
	case codec.KindLSA:
		if outcome := l.flood.Receive(dg.iface, dg.src, msg.LSA, dg.frame); outcome == lsdb.Installed {
			l.scheduleDebounce()
		}
	}
}

// scheduleDebounce implements spec.md §4.6's coalescing window: the first
// event in a burst sets the deadline to DebounceMin from now (capped at
// DebounceMax), and later events before that deadline leave it unchanged,
// so a steady trickle of changes cannot starve SPF indefinitely.
func (l *Loop) scheduleDebounce() {
	now := l.clock.Now()
	if l.debouncePending {
		return
	}
	l.debouncePending = true
	l.debounceDeadline = now.Add(l.ivl.DebounceMin)
	if max := now.Add(l.ivl.DebounceMax); l.debounceDeadline.After(max) {
		l.debounceDeadline = max
	}
}

// tick implements spec.md §4.8 step 2: drain fired timers in the fixed
// order hello → sweep → lsa_refresh → lsdb_expire → spf_debounce →
// rib_sync.
func (l *Loop) tick() {
	now := l.clock.Now()

	if !now.Before(l.nextHello) {
		l.sendHelloAll()
		l.nextHello = now.Add(l.ivl.Hello)
	}
	if !now.Before(l.nextSweep) {
		events := l.st.Neighbors.Sweep()
		for _, ev := range events {
			if ev.Kind == neighbor.EventDown || ev.Kind == neighbor.EventRemoved {
				l.scheduleDebounce()
			}
		}
		l.nextSweep = now.Add(l.ivl.Dead)
	}
	if !now.Before(l.nextLSA) {
		l.flood.Originate()
		l.nextLSA = now.Add(l.ivl.LSARefresh)
	}
	if !now.Before(l.nextExpire) {
		if expired := l.st.LSDB.Expire(l.ivl.LSDBExpire); len(expired) > 0 {
			l.scheduleDebounce()
		}
		l.nextExpire = now.Add(l.ivl.LSDBExpire)
	}
	if l.debouncePending && !now.Before(l.debounceDeadline) {
		l.runSPF()
		l.debouncePending = false
	}
	if !now.Before(l.nextRIBSync) {
		if l.st.Enabled() {
			l.st.RIB.Reconcile(l.decisions)
		}
		l.nextRIBSync = now.Add(l.ivl.RIBSync)
	}
}

// runSPF implements spec.md §4.6: recompute decisions from the current
// LSDB graph and install them for the next rib_sync tick to reconcile.
func (l *Loop) runSPF() {
	vertices, edges := l.st.LSDB.SnapshotGraph()
	stubs := l.st.LSDB.StubPrefixesByOrigin()
	twoWay := l.st.Neighbors.SnapshotTwoWay(func(ifName string) uint32 {
		if ifc := l.st.Interfaces.Get(ifName); ifc != nil {
			return ifc.CapacityMbps
		}
		return 0
	})

	l.decisions = spf.Compute(l.st.RouterID, vertices, edges, stubs, twoWay)
	metricSPFRuns.Inc()
}

func (l *Loop) sendHelloAll() {
	for _, ifc := range l.st.Interfaces.Active() {
		s, ok := l.sockets[ifc.Name]
		if !ok {
			continue
		}
		hello := &codec.Hello{
			RouterID:       l.st.RouterID,
			SenderIPv4:     ifc.IPv4.String(),
			InterfaceHint:  ifc.Name,
			KnownNeighbors: l.st.Neighbors.RouterIDsOnInterface(ifc.Name),
			CapacityMbps:   ifc.CapacityMbps,
			AdminActive:    ifc.AdminActive,
		}
		frame, err := codec.EncodeHello(l.st.Key, hello)
		if err != nil {
			l.log.Error("loop: encode hello failed", "iface", ifc.Name, "error", err)
			continue
		}
		if err := s.sendBroadcast(frame); err != nil {
			l.log.Warn("loop: send hello failed", "iface", ifc.Name, "error", err)
		}
	}
}

// socketSender adapts the loop's per-interface sockets to flood.Sender.
type socketSender struct {
	sockets map[string]*socket
	port    int
}

func (s socketSender) SendTo(ifaceName, destIPv4 string, frame []byte) error {
	sock, ok := s.sockets[ifaceName]
	if !ok {
		return net.UnknownNetworkError(ifaceName)
	}
	return sock.sendUnicast(destIPv4, s.port, frame)
}
