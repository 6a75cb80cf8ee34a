//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LennyGonzales/P-OSPF/internal/codec"
	"github.com/LennyGonzales/P-OSPF/internal/config"
	"github.com/LennyGonzales/P-OSPF/internal/control"
	"github.com/LennyGonzales/P-OSPF/internal/iface"
	"github.com/LennyGonzales/P-OSPF/internal/loop"
	"github.com/LennyGonzales/P-OSPF/internal/lsdb"
	"github.com/LennyGonzales/P-OSPF/internal/neighbor"
	"github.com/LennyGonzales/P-OSPF/internal/rib"
	"github.com/LennyGonzales/P-OSPF/internal/state"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
)

const routeProtocolID = 89 // OSPF's own IP protocol number, reused as a free netlink route-protocol tag

var (
	configPath    = flag.String("config", "/etc/p-ospf/router.toml", "path to the router's TOML configuration file")
	verbose       = flag.BoolP("verbose", "v", false, "enable debug-level logging")
	metricsEnable = flag.Bool("metrics-enable", false, "enable the prometheus metrics listener")
	metricsAddr   = flag.String("metrics-addr", "localhost:0", "address to listen on for prometheus metrics")
	versionFlag   = flag.Bool("version", false, "print build version and exit")

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	flag.Parse()

	log := newLogger(*verbose)
	slog.SetDefault(log)

	if *versionFlag {
		fmt.Printf("version: %s\ncommit: %s\ndate: %s\n", version, commit, date)
		os.Exit(0)
	}

	if err := run(log); err != nil {
		log.Error("p-ospfd: fatal error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Error("p-ospfd: configuration error", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		log.Warn("p-ospfd: config warning", "warning", w)
	}

	ifaces, err := iface.Build(log, cfg.Interfaces)
	if err != nil {
		log.Error("p-ospfd: interface table build error", "error", err)
		os.Exit(1)
	}

	routerID := cfg.RouterID
	if routerID == "" {
		if active := ifaces.Active(); len(active) > 0 {
			routerID = active[0].IPv4.String()
		} else {
			log.Error("p-ospfd: no router_id configured and no active interface to default from")
			os.Exit(1)
		}
	}

	if *metricsEnable {
		buildInfo := promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "p_ospf_build_info",
			Help: "Build information of the p-ospfd binary",
		}, []string{"version", "commit", "date"})
		buildInfo.WithLabelValues(version, commit, date).Set(1)

		go func() {
			lis, err := net.Listen("tcp", *metricsAddr)
			if err != nil {
				log.Error("p-ospfd: failed to start prometheus metrics listener", "error", err)
				return
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("p-ospfd: prometheus metrics server started", "address", lis.Addr().String())
			if err := http.Serve(lis, mux); err != nil {
				log.Error("p-ospfd: prometheus metrics server stopped", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	neighbors := neighbor.New(clock, routerID, cfg.DeadInterval())
	db := lsdb.New(clock, routerID)
	syncer := rib.New(log, rib.Netlink{ProtoID: routeProtocolID}, routeProtocolID)
	if err := syncer.AdoptShadow(); err != nil {
		log.Warn("p-ospfd: failed to adopt pre-existing owned routes, starting with an empty shadow", "error", err)
	}
	st := state.New(routerID, cfg.Key, ifaces, neighbors, db, syncer)

	debounceMin, debounceMax := 200*time.Millisecond, 900*time.Millisecond

	l := loop.New(log, clock, st, loop.Intervals{
		Hello:       cfg.HelloInterval(),
		LSARefresh:  cfg.LSAInterval(),
		Dead:        cfg.DeadInterval(),
		LSDBExpire:  cfg.LSDBMaxAge(),
		DebounceMin: debounceMin,
		DebounceMax: debounceMax,
		RIBSync:     time.Second,
		UDPPort:     cfg.UDPPort,
	})

	ctl := control.New(log, st, l, cfg.ControlSocket)

	errCh := make(chan error, 2)
	log.Info("p-ospfd: starting packet loop", "router_id", routerID)
	go func() { errCh <- l.Run(ctx) }()
	log.Info("p-ospfd: starting control port", "socket", cfg.ControlSocket)
	go func() { errCh <- ctl.Serve(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("p-ospfd: shutting down")
		return nil
	case err := <-errCh:
		if errors.Is(err, loop.ErrNoSocketsBound) {
			log.Error("p-ospfd: failed to bind a socket on any interface", "error", err)
			os.Exit(2)
		}
		return err
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: level,
	}))
}
