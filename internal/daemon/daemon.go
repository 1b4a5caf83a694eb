// Package daemon wires the registry components into a long-running service:
// catalog store, staleness scheduler, rebuild-job publisher, metrics endpoint
// and configuration watcher.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/config"
	"git.home.luguber.info/inful/docregistry/internal/ingest"
	"git.home.luguber.info/inful/docregistry/internal/logfields"
	"git.home.luguber.info/inful/docregistry/internal/metrics"
	"git.home.luguber.info/inful/docregistry/internal/queue"
	"git.home.luguber.info/inful/docregistry/internal/resolver"
	"git.home.luguber.info/inful/docregistry/internal/retry"
	"git.home.luguber.info/inful/docregistry/internal/staleness"
	"git.home.luguber.info/inful/docregistry/internal/tracker"
)

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Daemon owns the long-running registry components.
type Daemon struct {
	config         *config.Config
	configFilePath string
	status         atomic.Value // Status
	startTime      time.Time
	stopChan       chan struct{}
	mu             sync.RWMutex

	// Core components
	store         catalog.Store
	ingestor      *ingest.Ingestor
	tracker       *tracker.Tracker
	resolver      *resolver.Resolver
	detector      *staleness.Detector
	scheduler     *staleness.Scheduler
	publisher     *queue.Publisher
	recorder      metrics.Recorder
	metricsServer *http.Server
	configWatcher *ConfigWatcher
}

// NewDaemon creates a daemon without config file watching.
func NewDaemon(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	return NewDaemonWithConfigFile(ctx, cfg, "")
}

// NewDaemonWithConfigFile creates a daemon that reloads scheduler parameters
// when the config file changes.
func NewDaemonWithConfigFile(ctx context.Context, cfg *config.Config, configFilePath string) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	d := &Daemon{
		config:         cfg,
		configFilePath: configFilePath,
		stopChan:       make(chan struct{}),
		recorder:       metrics.NoopRecorder{},
	}
	d.status.Store(StatusStopped)

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		d.recorder = metrics.NewPrometheusRecorder(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(reg))
		d.metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	}

	store, err := catalog.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	d.store = store
	d.ingestor = ingest.New(store, d.recorder)
	d.tracker = tracker.New(store, d.recorder)
	d.resolver = resolver.New(store)
	d.detector = staleness.NewDetector(store, d.recorder)

	if cfg.Queue.Enabled {
		pub, err := queue.NewPublisher(queue.Options{
			URL:     cfg.Queue.URL,
			Stream:  cfg.Queue.Stream,
			Subject: cfg.Queue.Subject,
		}, d.recorder)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		d.publisher = pub
	}

	if cfg.Scheduler.Enabled {
		sched, err := staleness.NewScheduler(d.detector, d.publisher, retry.DefaultPolicy())
		if err != nil {
			d.closeComponents()
			return nil, err
		}
		cutoff, err := cfg.Scheduler.CutoffDate()
		if err != nil {
			d.closeComponents()
			return nil, err
		}
		sched.SetScanParams(cutoff, cfg.Scheduler.BatchLimit)
		if _, err := sched.SchedulePeriodicScan(cfg.Scheduler.ScanInterval); err != nil {
			d.closeComponents()
			return nil, err
		}
		d.scheduler = sched
	}

	if configFilePath != "" {
		watcher, err := NewConfigWatcher(configFilePath, d)
		if err != nil {
			d.closeComponents()
			return nil, err
		}
		d.configWatcher = watcher
	}

	return d, nil
}

// Ingestor exposes the release ingestor for CLI use.
func (d *Daemon) Ingestor() *ingest.Ingestor { return d.ingestor }

// Tracker exposes the build tracker for CLI use.
func (d *Daemon) Tracker() *tracker.Tracker { return d.tracker }

// Resolver exposes the artifact-pointer resolver for CLI use.
func (d *Daemon) Resolver() *resolver.Resolver { return d.resolver }

// Detector exposes the staleness detector for CLI use.
func (d *Daemon) Detector() *staleness.Detector { return d.detector }

// GetStatus returns the daemon lifecycle state.
func (d *Daemon) GetStatus() Status {
	return d.status.Load().(Status)
}

// GetConfig returns the active configuration.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Start starts the daemon and blocks until the context is cancelled or Stop
// is called.
func (d *Daemon) Start(ctx context.Context) error {
	if d.GetStatus() != StatusStopped {
		return fmt.Errorf("daemon is not in stopped state: %s", d.GetStatus())
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	if d.metricsServer != nil {
		go func() {
			slog.Info("Metrics endpoint listening", slog.String("addr", d.metricsServer.Addr))
			if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
	}

	if d.scheduler != nil {
		d.scheduler.Start(ctx)
		slog.Info("Staleness scheduler started",
			slog.Duration("scan_interval", d.config.Scheduler.ScanInterval),
			logfields.Cutoff(d.config.Scheduler.Cutoff),
			logfields.Limit(d.config.Scheduler.BatchLimit))
	}

	if d.configWatcher != nil {
		if err := d.configWatcher.Start(ctx); err != nil {
			slog.Error("Failed to start config watcher", logfields.Error(err))
		}
	}

	d.status.Store(StatusRunning)
	slog.Info("Registry daemon started",
		slog.String("store_path", d.config.Store.Path),
		slog.Bool("queue", d.config.Queue.Enabled),
		slog.Bool("scheduler", d.config.Scheduler.Enabled))

	select {
	case <-ctx.Done():
	case <-d.stopChan:
	}

	d.status.Store(StatusStopping)
	slog.Info("Registry daemon stopping")
	d.shutdown()
	d.status.Store(StatusStopped)
	return nil
}

// Stop requests a graceful shutdown; Start returns once it completes.
func (d *Daemon) Stop() {
	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}
}

// ReloadConfig applies a changed configuration. Only scheduler scan
// parameters are applied live; store and queue changes need a restart.
func (d *Daemon) ReloadConfig(ctx context.Context, newCfg *config.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if newCfg.Store.Path != d.config.Store.Path {
		return fmt.Errorf("store path change requires daemon restart")
	}
	if newCfg.Queue != d.config.Queue {
		return fmt.Errorf("queue change requires daemon restart")
	}
	if newCfg.Scheduler.Enabled != d.config.Scheduler.Enabled {
		return fmt.Errorf("enabling or disabling the scheduler requires daemon restart")
	}

	if d.scheduler != nil {
		cutoff, err := newCfg.Scheduler.CutoffDate()
		if err != nil {
			return err
		}
		d.scheduler.SetScanParams(cutoff, newCfg.Scheduler.BatchLimit)
		slog.Info("Scheduler scan parameters updated",
			logfields.Cutoff(newCfg.Scheduler.Cutoff),
			logfields.Limit(newCfg.Scheduler.BatchLimit))
	}

	d.config = newCfg
	return nil
}

func (d *Daemon) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.configWatcher != nil {
		_ = d.configWatcher.Stop()
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(shutdownCtx); err != nil {
			slog.Error("Failed to stop scheduler", logfields.Error(err))
		}
	}
	if d.metricsServer != nil {
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to stop metrics server", logfields.Error(err))
		}
	}
	d.closeComponents()
}

func (d *Daemon) closeComponents() {
	if d.publisher != nil {
		_ = d.publisher.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Error("Failed to close catalog store", logfields.Error(err))
		}
	}
}
