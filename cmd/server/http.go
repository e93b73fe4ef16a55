package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"lootdogs.ai/internal/app"
	"lootdogs.ai/internal/persistence/leaderboard"
	"lootdogs.ai/internal/transport/api"
	"lootdogs.ai/internal/transport/ws"
)

type muxDeps struct {
	rt     *app.Runtime
	api    *api.Server
	ws     *ws.Server
	store  *leaderboard.Store
	logger *log.Logger

	// adminHTTP overrides the environment switch when non-nil.
	adminHTTP *bool
}

func newMux(d muxDeps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		m, err := d.rt.Metrics(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, m, d.store.Stats(), d.ws.Clients(), d.ws.Dropped())
	})

	enableAdmin := envBool("LD_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	if d.adminHTTP != nil {
		enableAdmin = *d.adminHTTP
	}
	if enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			m, err := d.rt.Metrics(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{
				"ok":          true,
				"metrics":     m,
				"leaderboard": d.store.Stats(),
				"maps_digest": d.rt.MapsDigest(),
			})
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			rw.Header().Set("Content-Type", "application/json")
			if err := d.rt.Save(ctx); err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
		})
	} else if d.logger != nil {
		d.logger.Printf("admin endpoints disabled (LD_ENABLE_ADMIN_HTTP=false)")
	}

	mux.Handle("/api/", d.api.Handler())
	mux.HandleFunc("/v1/ws", d.ws.Handler())
	return mux
}

func writeMetrics(rw http.ResponseWriter, m app.Metrics, ls leaderboard.Stats, clients int, dropped uint64) {
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP lootdogs_ticks_total Ticks processed since start.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_ticks_total counter\n")
	fmt.Fprintf(rw, "lootdogs_ticks_total %d\n", m.Ticks)

	fmt.Fprintf(rw, "# HELP lootdogs_sessions Running game sessions.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_sessions gauge\n")
	fmt.Fprintf(rw, "lootdogs_sessions %d\n", m.Sessions)

	fmt.Fprintf(rw, "# HELP lootdogs_dogs Dogs in all sessions.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_dogs gauge\n")
	fmt.Fprintf(rw, "lootdogs_dogs %d\n", m.Dogs)

	fmt.Fprintf(rw, "# HELP lootdogs_loot Items lying on the roads.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_loot gauge\n")
	fmt.Fprintf(rw, "lootdogs_loot %d\n", m.Loot)

	fmt.Fprintf(rw, "# HELP lootdogs_players Tokens bound to dogs.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_players gauge\n")
	fmt.Fprintf(rw, "lootdogs_players %d\n", m.Players)

	fmt.Fprintf(rw, "# HELP lootdogs_retired_total Dogs sent into retirement.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_retired_total counter\n")
	fmt.Fprintf(rw, "lootdogs_retired_total %d\n", m.Retired)

	fmt.Fprintf(rw, "# HELP lootdogs_snapshots_total State snapshots written.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_snapshots_total counter\n")
	fmt.Fprintf(rw, "lootdogs_snapshots_total{result=%q} %d\n", "ok", m.Saves)
	fmt.Fprintf(rw, "lootdogs_snapshots_total{result=%q} %d\n", "error", m.SaveFailures)

	fmt.Fprintf(rw, "# HELP lootdogs_ws_clients Connected websocket clients.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_ws_clients gauge\n")
	fmt.Fprintf(rw, "lootdogs_ws_clients %d\n", clients)

	fmt.Fprintf(rw, "# HELP lootdogs_ws_dropped_frames_total STATE frames dropped for slow clients.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_ws_dropped_frames_total counter\n")
	fmt.Fprintf(rw, "lootdogs_ws_dropped_frames_total %d\n", dropped)

	fmt.Fprintf(rw, "# HELP lootdogs_leaderboard_queue_depth Retirement batches waiting for the writer.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_leaderboard_queue_depth gauge\n")
	fmt.Fprintf(rw, "lootdogs_leaderboard_queue_depth %d\n", ls.QueueDepth)

	fmt.Fprintf(rw, "# HELP lootdogs_leaderboard_batches_total Retirement batches by outcome.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_leaderboard_batches_total counter\n")
	fmt.Fprintf(rw, "lootdogs_leaderboard_batches_total{result=%q} %d\n", "enqueued", ls.EnqueuedTotal)
	fmt.Fprintf(rw, "lootdogs_leaderboard_batches_total{result=%q} %d\n", "dropped", ls.DroppedTotal)
	fmt.Fprintf(rw, "lootdogs_leaderboard_batches_total{result=%q} %d\n", "write_error", ls.WriteErrorsTotal)

	fmt.Fprintf(rw, "# HELP lootdogs_leaderboard_records_written_total Records stored in the leaderboard.\n")
	fmt.Fprintf(rw, "# TYPE lootdogs_leaderboard_records_written_total counter\n")
	fmt.Fprintf(rw, "lootdogs_leaderboard_records_written_total %d\n", ls.WrittenTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
