// Package control implements spec.md §4.9/§6's ControlPort (C9): a
// newline-delimited text protocol served over a UNIX domain socket,
// exposing read-only neighbor/route inspection plus the enable/disenable
// mutator. Grounded on the teacher's `internal/runtime/run.go` listener
// lifecycle (`net.Listen("unix", path)`, `unix.Unlink` cleanup,
// `os.Chmod`, serve-in-goroutine-then-ctx.Done teardown), re-expressed
// with a line-protocol handler instead of `net/http` since spec.md §6's
// wire format is plain text, not JSON-over-HTTP.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/LennyGonzales/P-OSPF/internal/state"
	"golang.org/x/sys/unix"
)

// EnableSetter is the loop's (C8's) half of the enable/disenable path:
// posting the request onto the loop's own goroutine so it applies
// serialized with tick()'s RIB reconciliation, rather than racing it from
// a control-port connection goroutine (spec.md §5/§9).
type EnableSetter interface {
	SetEnabled(ctx context.Context, v bool)
}

// Server is spec.md §4.9's ControlPort.
type Server struct {
	log      *slog.Logger
	st       *state.State
	enable   EnableSetter
	sockPath string
	lis      net.Listener
}

func New(log *slog.Logger, st *state.State, enable EnableSetter, sockPath string) *Server {
	return &Server{log: log, st: st, enable: enable, sockPath: sockPath}
}

// Serve binds the UNIX socket and accepts connections, spawning one
// goroutine per accepted connection: read-only commands (neighbors,
// routing-table, stats) touch AppState through its own-locked exported
// methods directly, but enable/disenable never mutate AppState from the
// connection goroutine — dispatch hands those to the loop's EnableSetter,
// which applies them on the loop's own goroutine (spec.md §5's "C9's
// handler runs inline within the loop's control-port dispatch turn" and
// §9's single-logical-writer requirement).
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.sockPath)
	lis, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", s.sockPath, err)
	}
	s.lis = lis
	defer unix.Unlink(s.sockPath) //nolint:errcheck

	if err := os.Chmod(s.sockPath, 0o666); err != nil {
		s.log.Warn("control: failed to set socket permissions", "path", s.sockPath, "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				errCh <- err
				return
			}
			go s.handleConn(ctx, conn)
		}
	}()

	select {
	case <-ctx.Done():
		_ = lis.Close()
		return nil
	case err := <-errCh:
		select {
		case <-ctx.Done():
			return nil
		default:
			return fmt.Errorf("control: accept: %w", err)
		}
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			return
		}
		reply := s.dispatch(ctx, line)
		if _, err := io.WriteString(conn, reply); err != nil {
			return
		}
	}
}

// dispatch implements spec.md §6's console command table.
func (s *Server) dispatch(ctx context.Context, cmd string) string {
	switch cmd {
	case "neighbors":
		return s.renderNeighbors()
	case "routing-table":
		return s.renderRoutes()
	case "enable":
		s.enable.SetEnabled(ctx, true)
		return "ok\n"
	case "disenable":
		s.enable.SetEnabled(ctx, false)
		return "ok\n"
	case "stats":
		return s.renderStats()
	default:
		return fmt.Sprintf("error: unknown command %q\n", cmd)
	}
}

func (s *Server) renderNeighbors() string {
	var b strings.Builder
	for _, n := range s.st.Neighbors.All() {
		age := time.Since(n.LastHelloAt).Round(time.Second)
		fmt.Fprintf(&b, "%s %s %s %s %d\n", n.OnInterface, n.RouterID, n.PeerIPv4, n.State, int(age.Seconds()))
	}
	b.WriteString(".\n")
	return b.String()
}

func (s *Server) renderRoutes() string {
	var b strings.Builder
	for _, r := range s.st.RIB.Shadow() {
		fmt.Fprintf(&b, "%s via %s dev %s cost %d\n", r.Dest, r.NextHop, r.Interface, r.Cost)
	}
	b.WriteString(".\n")
	return b.String()
}

// renderStats is the additive command spec.md §6 allows implementers to
// extend the console with: a quick health summary beyond the mandated
// neighbors/routing-table/enable/disenable/exit set.
func (s *Server) renderStats() string {
	var b strings.Builder
	fmt.Fprintf(&b, "enabled %v\n", s.st.Enabled())
	fmt.Fprintf(&b, "neighbors %d\n", len(s.st.Neighbors.All()))
	fmt.Fprintf(&b, "routes %d\n", len(s.st.RIB.Shadow()))
	b.WriteString(".\n")
	return b.String()
}
