package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/config"
	"git.home.luguber.info/inful/docregistry/internal/daemon"
	"git.home.luguber.info/inful/docregistry/internal/ingest"
	"git.home.luguber.info/inful/docregistry/internal/logfields"
	"git.home.luguber.info/inful/docregistry/internal/resolver"
	"git.home.luguber.info/inful/docregistry/internal/staleness"
	"git.home.luguber.info/inful/docregistry/internal/tracker"
	"git.home.luguber.info/inful/docregistry/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"docregistry.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Daemon struct{} `cmd:"" help:"Run the registry daemon: staleness scheduler, rebuild queue and metrics endpoint"`

	Ingest struct {
		File string `short:"f" help:"Release metadata JSON file (defaults to stdin)" type:"existingfile" optional:""`
	} `cmd:"" help:"Ingest release metadata (a JSON object or array) into the catalog"`

	Claim struct {
		Release int64  `arg:"" help:"Release id to build"`
		Rustc   string `help:"Toolchain version string of the worker" required:""`
		Tool    string `help:"Builder tool version (defaults to this binary's version)" optional:""`
	} `cmd:"" help:"Register a new in-progress build attempt for a release (worker API)"`

	Complete struct {
		Build  int64  `arg:"" help:"Build id returned by claim"`
		Status string `arg:"" help:"Terminal status: success or failure"`
		Errors string `help:"Error text for failed builds" optional:""`
	} `cmd:"" help:"Record the terminal outcome of a build attempt (worker API)"`

	Stale struct {
		Cutoff string `help:"Nightly cutoff date (YYYY-MM-DD)" required:""`
		Limit  int    `help:"Maximum releases to report" default:"100"`
	} `cmd:"" help:"List releases whose documentation predates the nightly cutoff"`

	Builds struct {
		Package string `arg:"" help:"Package name"`
		Version string `arg:"" help:"Release version"`
	} `cmd:"" help:"Show documentation coverage and build history for a release"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Version struct{} `cmd:"" help:"Print the tool version"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch kctx.Command() {
	case "daemon":
		cfg := loadConfig()
		if err := runDaemon(cfg); err != nil {
			slog.Error("Daemon failed", logfields.Error(err))
			os.Exit(1)
		}
	case "ingest":
		cfg := loadConfig()
		if err := runIngest(cfg, CLI.Ingest.File); err != nil {
			slog.Error("Ingest failed", logfields.Error(err))
			os.Exit(1)
		}
	case "claim <release>":
		cfg := loadConfig()
		if err := runClaim(cfg, CLI.Claim.Release, CLI.Claim.Rustc, CLI.Claim.Tool); err != nil {
			slog.Error("Claim failed", logfields.Error(err))
			os.Exit(1)
		}
	case "complete <build> <status>":
		cfg := loadConfig()
		if err := runComplete(cfg, CLI.Complete.Build, CLI.Complete.Status, CLI.Complete.Errors); err != nil {
			slog.Error("Complete failed", logfields.Error(err))
			os.Exit(1)
		}
	case "stale":
		cfg := loadConfig()
		if err := runStale(cfg, CLI.Stale.Cutoff, CLI.Stale.Limit); err != nil {
			slog.Error("Staleness scan failed", logfields.Error(err))
			os.Exit(1)
		}
	case "builds <package> <version>":
		cfg := loadConfig()
		if err := runBuilds(cfg, CLI.Builds.Package, CLI.Builds.Version); err != nil {
			slog.Error("Build lookup failed", logfields.Error(err))
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", logfields.Error(err))
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", CLI.Config)
	case "version":
		fmt.Println(version.ToolVersion())
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}
	if CLI.Verbose {
		cfg.Logging.Level = "debug"
	}
	applyLogging(cfg.Logging)
	return cfg
}

func applyLogging(lc config.LoggingConfig) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runDaemon(cfg *config.Config) error {
	slog.Info("Starting registry daemon", slog.String("version", version.ToolVersion()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.NewDaemonWithConfigFile(ctx, cfg, CLI.Config)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	return d.Start(ctx)
}

func runIngest(cfg *config.Config, file string) error {
	var in io.Reader = os.Stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open metadata file: %w", err)
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	// Accept either a single metadata object or an array of them.
	var batch []catalog.ReleaseMetadata
	if err := json.Unmarshal(data, &batch); err != nil {
		var single catalog.ReleaseMetadata
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("failed to parse release metadata JSON: %w", err)
		}
		batch = append(batch, single)
	}

	ctx := context.Background()
	store, err := catalog.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ing := ingest.New(store, nil)
	for _, meta := range batch {
		relID, err := ing.Ingest(ctx, meta)
		if err != nil {
			return err
		}
		fmt.Printf("ingested %s %s (release %d)\n", meta.Package, meta.Version, relID)
	}
	return nil
}

func runClaim(cfg *config.Config, releaseID int64, rustcVersion, toolVersion string) error {
	if toolVersion == "" {
		toolVersion = version.ToolVersion()
	}

	ctx := context.Background()
	store, err := catalog.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	buildID, err := tracker.New(store, nil).Claim(ctx, releaseID, rustcVersion, toolVersion)
	if err != nil {
		return err
	}
	fmt.Printf("claimed build %d for release %d\n", buildID, releaseID)
	return nil
}

func runComplete(cfg *config.Config, buildID int64, rawStatus, errText string) error {
	// Normalize at the boundary; an unrecognized status never reaches the store.
	status, err := catalog.ParseBuildStatus(rawStatus)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := catalog.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := tracker.New(store, nil).Complete(ctx, buildID, status, errText); err != nil {
		return err
	}
	fmt.Printf("build %d completed with status %s\n", buildID, status)
	return nil
}

func runStale(cfg *config.Config, cutoffStr string, limit int) error {
	cutoff, err := time.ParseInLocation("2006-01-02", cutoffStr, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid cutoff date %q, want YYYY-MM-DD: %w", cutoffStr, err)
	}

	ctx := context.Background()
	store, err := catalog.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	batch, err := staleness.NewDetector(store, nil).FindStale(ctx, cutoff, limit)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		fmt.Println("no stale releases")
		return nil
	}
	for _, sr := range batch {
		fmt.Printf("%s %s\tnightly %s\tlast attempt %s\n",
			sr.Package, sr.Version,
			catalog.FormatNightlyDate(sr.NightlyDate),
			sr.LastAttempt.UTC().Format(time.RFC3339))
	}
	return nil
}

func runBuilds(cfg *config.Config, pkg, ver string) error {
	ctx := context.Background()
	store, err := catalog.NewSQLiteStore(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	cov, err := resolver.New(store).Resolve(ctx, pkg, ver)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", cov.Package, cov.Version)
	fmt.Printf("  rustdoc: %t  tests: %t  yanked: %t  archived: %t\n",
		cov.RustdocStatus, cov.TestStatus, cov.Yanked, cov.ArchiveStorage)
	if cov.DefaultTarget != "" {
		fmt.Printf("  default target: %s\n", cov.DefaultTarget)
	}
	if usable := cov.LatestUsable(); usable != nil {
		fmt.Printf("  usable docs: build %d (%s)\n", usable.ID, usable.RustcVersion)
	} else {
		fmt.Println("  usable docs: none")
	}

	if cov.Attempts() == 0 {
		fmt.Println("  no build attempts recorded")
		return nil
	}
	fmt.Printf("  attempts (%d, most recent first):\n", cov.Attempts())
	for _, b := range cov.Builds {
		line := fmt.Sprintf("    #%d %s %s at %s",
			b.ID, b.Status, b.RustcVersion, b.BuildTime().UTC().Format(time.RFC3339))
		if b.Errors != "" {
			line += " errors: " + b.Errors
		}
		fmt.Println(line)
	}
	return nil
}
