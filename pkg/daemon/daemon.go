// Package daemon implements the rosd lifecycle: it opens a device backend,
// serves it over gRPC and exports metrics over HTTP.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/rosctl/pkg/daemonconf"
	"github.com/psaab/rosctl/pkg/findmodify"
	"github.com/psaab/rosctl/pkg/grpcapi"
	"github.com/psaab/rosctl/pkg/journal"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/session"
	"github.com/psaab/rosctl/pkg/session/memory"
	"github.com/psaab/rosctl/pkg/session/redisdev"
)

// device is a backend the daemon can serve and seed.
type device interface {
	session.Session
	session.Seeder
}

// Daemon is the rosd daemon.
type Daemon struct {
	cfg      *daemonconf.Config
	registry *schema.Registry
	device   device
	closeFn  func() error
}

// New creates a daemon from a validated configuration.
func New(cfg *daemonconf.Config) *Daemon {
	return &Daemon{cfg: cfg}
}

// Run starts the daemon and blocks until ctx is cancelled or a signal
// arrives.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting rosd",
		"backend", d.cfg.Backend,
		"pid", os.Getpid())

	if err := d.open(); err != nil {
		return err
	}
	defer func() {
		if d.closeFn != nil {
			if err := d.closeFn(); err != nil {
				slog.Warn("failed to close backend", "err", err)
			}
		}
	}()

	if d.cfg.SeedFile != "" {
		seed, err := session.LoadSeedFile(d.cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, d.device); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
		slog.Info("seed applied", "file", d.cfg.SeedFile, "paths", len(seed))
	}

	// Prometheus metrics with isolated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	opts := []findmodify.Option{findmodify.WithMetrics(findmodify.NewMetrics(registry))}
	var jrnl *journal.Journal
	if d.cfg.JournalSize > 0 {
		jrnl = journal.New(d.cfg.JournalSize)
		opts = append(opts, findmodify.WithJournal(jrnl))
	}
	engine := findmodify.New(d.device, d.registry, opts...)
	grpcSrv := grpcapi.NewServer(d.cfg.GRPCAddr, d.device,
		grpcapi.WithEngine(engine),
		grpcapi.WithServerMetrics(grpcapi.NewMetrics(registry)))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpcSrv.Run(ctx); err != nil {
			errCh <- fmt.Errorf("gRPC: %w", err)
		}
	}()

	if d.cfg.MetricsAddr != "" {
		httpSrv := &http.Server{
			Addr:              d.cfg.MetricsAddr,
			Handler:           newMux(registry, jrnl),
			ReadHeaderTimeout: 5 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("metrics server listening", "addr", d.cfg.MetricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics: %w", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
	}

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		slog.Info("signal received, shutting down")
	}

	stop()
	wg.Wait()

	d.logFinalStats()
	slog.Info("shutdown complete")
	return runErr
}

// open loads the schema and connects the configured backend.
func (d *Daemon) open() error {
	if d.cfg.SchemaFile != "" {
		reg, err := schema.LoadFile(d.cfg.SchemaFile)
		if err != nil {
			return err
		}
		d.registry = reg
	} else {
		d.registry = schema.Builtin()
	}
	slog.Info("schema loaded", "paths", len(d.registry.Paths()))

	switch d.cfg.Backend {
	case daemonconf.BackendRedis:
		opts := []redisdev.Option{redisdev.WithSchema(d.registry)}
		if d.cfg.Redis.Prefix != "" {
			opts = append(opts, redisdev.WithPrefix(d.cfg.Redis.Prefix))
		}
		s := redisdev.New(d.cfg.Redis.Addr, d.cfg.Redis.Password, d.cfg.Redis.DB, opts...)
		d.device = s
		d.closeFn = s.Close
	default:
		d.device = memory.New(memory.WithSchema(d.registry))
	}
	return nil
}

func newMux(registry *prometheus.Registry, jrnl *journal.Journal) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if jrnl != nil {
		mux.HandleFunc("GET /journal", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, jrnl.List())
		})
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// logFinalStats logs the record count of each known path before shutdown.
func (d *Daemon) logFinalStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	attrs := make([]any, 0, 2*len(d.registry.Paths()))
	for _, p := range d.registry.Paths() {
		records, err := d.device.ListRecords(ctx, p)
		if err != nil {
			continue
		}
		attrs = append(attrs, p, len(records))
	}
	slog.Info("final record counts", attrs...)
}
