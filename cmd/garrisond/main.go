package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rtsgarrison.dev/internal/config"
	"rtsgarrison.dev/internal/logging"
	"rtsgarrison.dev/internal/persistence/indexdb"
	persistlog "rtsgarrison.dev/internal/persistence/log"
	"rtsgarrison.dev/internal/persistence/snapshot"
	"rtsgarrison.dev/internal/protocol"
	"rtsgarrison.dev/internal/sim/catalogs"
	"rtsgarrison.dev/internal/sim/scenario"
	"rtsgarrison.dev/internal/sim/tuning"
	"rtsgarrison.dev/internal/sim/world"
	"rtsgarrison.dev/internal/telemetry"
	"rtsgarrison.dev/internal/transport/observer"
	"rtsgarrison.dev/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "path to garrisond config file (yaml/json/toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogPretty).With().Str("world", cfg.WorldID).Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("garrisond stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	cats, err := catalogs.Load(cfg.CatalogDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	tune, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.Warn().Str("path", cfg.TuningPath).Msg("tuning not found; using defaults")
		tune = tuning.Defaults()
	}

	var schemas *protocol.Schemas
	if cfg.SchemaDir != "" {
		schemas, err = protocol.LoadSchemas(cfg.SchemaDir)
		if err != nil {
			return fmt.Errorf("load schemas: %w", err)
		}
	}

	worldDir := filepath.Join(cfg.DataDir, "worlds", cfg.WorldID)
	snapDir := filepath.Join(worldDir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return err
	}

	metrics, err := telemetry.NewContainMetrics(telemetry.Meter())
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Optional read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if cfg.Index.Enabled {
		idx, err = indexdb.OpenSQLite(cfg.Index.Path, logging.Component(logger, "indexdb"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cfg.CatalogDir, cats, tune); err != nil {
			logger.Warn().Err(err).Msg("index: upsert catalogs")
		}
	}

	wcfg := world.WorldConfig{
		ID:                 cfg.WorldID,
		TickRateHz:         tune.TickRateHz,
		Seed:               tune.Seed,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		StrictInvariants:   tune.StrictInvariants,
		CommandQueue:       tune.CommandQueue,
		ObserverQueue:      tune.ObserverQueue,
	}

	snapshotToLoad := strings.TrimSpace(cfg.Snapshot.LoadPath)
	if snapshotToLoad == "" && cfg.Snapshot.LoadLatest {
		snapshotToLoad, err = snapshot.Latest(snapDir)
		if err != nil {
			return fmt.Errorf("find latest snapshot: %w", err)
		}
	}

	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if s.Header.WorldID != "" && s.Header.WorldID != cfg.WorldID {
			return fmt.Errorf("snapshot world id mismatch: cfg=%s snap=%s", cfg.WorldID, s.Header.WorldID)
		}
		// The snapshot wins over tuning for everything the digest depends on.
		wcfg.Seed = s.Seed
		wcfg.TickRateHz = s.TickRate
		wcfg.StrictInvariants = s.StrictInvariants
		snap = &s
	}

	w, err := world.New(wcfg, cats,
		world.WithLogger(logging.Component(logger, "world")),
		world.WithMetrics(metrics),
		world.WithTickTimer(metrics),
	)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}

	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info().Str("snapshot", filepath.Base(snapshotToLoad)).Uint64("tick", w.CurrentTick()).Msg("resumed from snapshot")
	} else if cfg.ScenarioPath != "" {
		sc, err := scenario.Load(cfg.ScenarioPath)
		if err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
		if _, err := w.LoadScenario(sc); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	var ticks multiTickLogger
	if !cfg.DisableTickLog {
		tickLog := persistlog.NewTickLogger(worldDir)
		eventLog := persistlog.NewEventLogger(worldDir)
		defer tickLog.Close()
		defer eventLog.Close()
		ticks = append(ticks, tickLog)
		w.SetEventLogger(eventLog)
	}
	if idx != nil {
		ticks = append(ticks, idx)
	}
	if len(ticks) > 0 {
		w.SetTickLogger(ticks)
	}

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go writeSnapshots(ctx, snapCh, snapDir, idx, logging.Component(logger, "snapshot"))

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("world stopped")
		}
	}()

	obsSrv := observer.NewServer(w, logger, schemas)
	cmdSrv := ws.NewServer(w, logger, schemas)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		writeMetrics(rw, cfg.WorldID, w.Metrics(), idx)
	})
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{cfg.WorldID, w.CurrentTick(), w.Metrics()})
	})
	mux.HandleFunc("/admin/v1/command", cmdSrv.CommandHandler())
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/v1/ws", cmdSrv.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", cfg.Addr).Int("tick_rate_hz", wcfg.TickRateHz).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func writeSnapshots(ctx context.Context, ch <-chan snapshot.SnapshotV1, dir string, idx *indexdb.SQLiteIndex, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := snapshot.PathFor(dir, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Error().Err(err).Uint64("tick", snap.Header.Tick).Msg("snapshot write")
				continue
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
			logger.Debug().Str("path", path).Msg("snapshot written")
		}
	}
}

func writeMetrics(rw http.ResponseWriter, worldID string, m world.WorldMetrics, idx *indexdb.SQLiteIndex) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		fmt.Fprintf(rw, "%s{world=%q} %v\n", name, worldID, v)
	}
	gauge("garrison_world_tick", "Last simulated tick.", m.Tick)
	gauge("garrison_world_objects", "Live objects.", m.Objects)
	gauge("garrison_world_containers", "Containers with a live owner.", m.Containers)
	gauge("garrison_world_occupants", "Objects currently contained.", m.Occupants)
	gauge("garrison_world_observers", "Connected observer sessions.", m.Observers)
	gauge("garrison_world_inbox_depth", "Queued commands at the end of the last step.", m.InboxDepth)
	gauge("garrison_world_step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))
	if idx != nil {
		gauge("garrison_index_dropped_total", "Index writes dropped because the writer fell behind.", idx.Dropped())
	}
}

// multiTickLogger fans a tick entry out to every sink; failures are per-sink.
type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var first error
	for _, l := range m {
		if err := l.WriteTick(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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
