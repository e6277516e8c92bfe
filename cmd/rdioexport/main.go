package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/mmcdole/rdioexport/internal/adapter"
	"github.com/mmcdole/rdioexport/internal/adapter/source/rdio"
	"github.com/mmcdole/rdioexport/internal/domain"
	"github.com/mmcdole/rdioexport/internal/metrics"
	"github.com/mmcdole/rdioexport/internal/store"
	"github.com/mmcdole/rdioexport/internal/usersync"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is set at build time via -ldflags
var Version = "dev"

// CLI definition & global flags
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (defaults to ~/.config/rdioexport/config.yaml)"`
	Verbose bool             `short:"v" help:"Log at debug level"`
	NoTUI   bool             `name:"no-tui" help:"Print plain progress lines instead of the interactive view"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Sync   SyncCmd   `cmd:"" help:"Sync one or more users and write an export file for each"`
	Export ExportCmd `cmd:"" help:"Re-export a previously synced user from the object store"`
	Find   FindCmd   `cmd:"" help:"Search synced objects by name or key"`
	Init   InitCmd   `cmd:"" help:"Write a configuration file with the default settings"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("rdioexport"),
		kong.Description("Export Rdio users' collections, playlists and every object they reference."),
		kong.UsageOnError(),
		kong.Vars{"version": "rdioexport " + Version},
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env holds everything a command needs once the configuration is loaded
type env struct {
	cfg      *adapter.Config
	logger   *slog.Logger
	store    domain.SyncStore
	recorder *metrics.PrometheusRecorder // nil when metrics are disabled

	closers []io.Closer
}

// open loads the configuration, sets up logging and opens the object store
func (c *CLI) open() (*env, error) {
	cfg, err := adapter.LoadConfig(c.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.Verbose {
		cfg.Logging.Level = "DEBUG"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, logCloser, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger, logCloser = adapter.NullLogger(), io.NopCloser(nil)
	}
	slog.SetDefault(logger)
	logger.Info("starting rdioexport", "version", Version)

	s, err := store.NewObjectStore(cfg.Storage.Path)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	e := &env{cfg: cfg, logger: logger, store: s, closers: []io.Closer{s, logCloser}}
	if cfg.Metrics.Textfile != "" {
		e.recorder = metrics.NewPrometheusRecorder(prometheus.NewRegistry())
	}
	return e, nil
}

// Close flushes metrics and releases the store and log file
func (e *env) Close() error {
	if e.recorder != nil {
		if err := e.recorder.WriteTextfile(e.cfg.Metrics.Textfile); err != nil {
			e.logger.Error("failed to write metrics", "path", e.cfg.Metrics.Textfile, "error", err)
		}
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.logger.Error("close failed", "error", err)
		}
	}
	return nil
}

// newSource creates the web service client. A configured access token is
// used as-is; otherwise one is obtained with the app credentials.
func (e *env) newSource() (*rdio.Client, error) {
	if !e.cfg.IsConfigured() {
		return nil, fmt.Errorf("no credentials configured: set rdio.access_token or rdio.client_id and rdio.client_secret in %s",
			filepath.Join(adapter.DefaultConfigPath(), "config.yaml"))
	}

	var tokens rdio.TokenSource
	if e.cfg.Rdio.AccessToken != "" {
		tokens = rdio.StaticToken(e.cfg.Rdio.AccessToken)
	} else {
		tokens = rdio.NewClientCredentials(e.cfg.Rdio.TokenURL, e.cfg.Rdio.ClientID, e.cfg.Rdio.ClientSecret, e.logger)
	}

	client := rdio.NewClient(e.cfg.Rdio.APIURL, tokens, e.logger)
	client.SetPageSize(e.cfg.Sync.PageSize)
	client.SetBatchSize(e.cfg.Sync.ChunkSize)
	return client, nil
}

// controllerOptions returns the options shared by every controller of a run
func (e *env) controllerOptions() []usersync.Option {
	opts := []usersync.Option{
		usersync.WithLogger(e.logger),
		usersync.WithChunkSize(e.cfg.Sync.ChunkSize),
		usersync.WithConcurrency(e.cfg.Sync.Concurrency),
	}
	if e.recorder != nil {
		opts = append(opts, usersync.WithRecorder(e.recorder))
	}
	return opts
}

// exportDir returns override, or the configured export directory
func (e *env) exportDir(override string) string {
	if override != "" {
		return adapter.ExpandHome(override)
	}
	return e.cfg.Export.Dir
}
