package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	persistlog "mazeplan.ai/internal/persistence/log"
	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/tuning"
	"mazeplan.ai/internal/protocol"
	"mazeplan.ai/internal/transport/observer"
	"mazeplan.ai/internal/transport/ws"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	// Optional .env; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("load .env: %v", err)
	}

	var (
		addr       = flag.String("addr", envString("MAZEPLAN_ADDR", ":8080"), "http listen address")
		dataDir    = flag.String("data", envString("MAZEPLAN_DATA", "./data"), "runtime data directory")
		tuningPath = flag.String("tuning", envString("MAZEPLAN_TUNING", "./configs/planner.yaml"), "path to planner.yaml")
		disableDB  = flag.Bool("disable_db", envBool("MAZEPLAN_DISABLE_DB", false), "disable the sqlite index")
		noTrace    = flag.Bool("disable_trace", envBool("MAZEPLAN_DISABLE_TRACE", false), "disable the JSONL decision trace")
		fallback   = flag.Bool("fallback_first_legal", false, "answer lookup failures with the first legal move (overrides tuning)")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	if *fallback {
		tune.FallbackFirstLegal = true
	}
	logger.Printf("tuning digest=%s gamma=%v max_iterations=%d", tune.Digest(), tune.Gamma, tune.MaxIterations)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	var sinks []agent.Sink
	if !*noTrace {
		trace := persistlog.NewDecisionLogger(*dataDir)
		defer trace.Close()
		sinks = append(sinks, trace)
	}
	idx, err := openRuntimeIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
		sinks = append(sinks, idx)
	}

	hub := observer.NewHub()
	sinks = append(sinks, hub)

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("schemas: %v", err)
	}
	wsSrv := ws.NewServer(tune, validator, agent.Sinks(sinks...), logger)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := wsSrv.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP mazeplan_sessions Connected planner sessions.\n")
		fmt.Fprintf(rw, "# TYPE mazeplan_sessions gauge\n")
		fmt.Fprintf(rw, "mazeplan_sessions %d\n", m.Sessions)

		fmt.Fprintf(rw, "# HELP mazeplan_decisions_total Decisions answered.\n")
		fmt.Fprintf(rw, "# TYPE mazeplan_decisions_total counter\n")
		fmt.Fprintf(rw, "mazeplan_decisions_total %d\n", m.Decisions)
		fmt.Fprintf(rw, "mazeplan_decisions_not_converged_total %d\n", m.NotConverged)
		fmt.Fprintf(rw, "mazeplan_decisions_fallback_total %d\n", m.Fallbacks)

		fmt.Fprintf(rw, "# HELP mazeplan_errors_total ERROR replies sent.\n")
		fmt.Fprintf(rw, "# TYPE mazeplan_errors_total counter\n")
		fmt.Fprintf(rw, "mazeplan_errors_total %d\n", m.Errors)

		fmt.Fprintf(rw, "# HELP mazeplan_observers Connected observer streams.\n")
		fmt.Fprintf(rw, "# TYPE mazeplan_observers gauge\n")
		fmt.Fprintf(rw, "mazeplan_observers %d\n", hub.Subscribers())
		fmt.Fprintf(rw, "mazeplan_observer_dropped_total %d\n", hub.Dropped())

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP mazeplan_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE mazeplan_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "mazeplan_index_queue_depth %d\n", st.QueueDepth)
			fmt.Fprintf(rw, "mazeplan_index_dropped_total{kind=%q} %d\n", "episode", st.DropEpisodeTotal)
			fmt.Fprintf(rw, "mazeplan_index_dropped_total{kind=%q} %d\n", "decision", st.DropDecisionTotal)
			fmt.Fprintf(rw, "mazeplan_index_dropped_total{kind=%q} %d\n", "end", st.DropEndTotal)
		}
	})

	if envBool("MAZEPLAN_ENABLE_ADMIN_HTTP", true) {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				Tuning       tuning.Planner `json:"tuning"`
				TuningDigest string         `json:"tuning_digest"`
				Metrics      ws.Metrics     `json:"metrics"`
			}{
				Tuning:       tune,
				TuningDigest: tune.Digest(),
				Metrics:      wsSrv.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (MAZEPLAN_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("MAZEPLAN_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/v1/observe", observer.NewServer(hub, logger).WSHandler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		// Websocket sessions are hijacked and outlive srv.Shutdown; end their
		// episodes while the trace and index are still open.
		if err := wsSrv.Shutdown(ctx2); err != nil {
			logger.Printf("ws shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s (trace=%s)", *addr, persistlog.TraceDir(filepath.Clean(*dataDir)))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-stopped
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
