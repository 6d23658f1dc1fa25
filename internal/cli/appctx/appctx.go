// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, journal opening, and client construction
// to reduce boilerplate across commands.
package appctx

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/orgsync/internal/ado"
	"github.com/lherron/orgsync/internal/attach"
	"github.com/lherron/orgsync/internal/config"
	"github.com/lherron/orgsync/internal/db"
	"github.com/lherron/orgsync/internal/journal"
	"github.com/lherron/orgsync/internal/logging"
	"github.com/lherron/orgsync/internal/render"
	"github.com/lherron/orgsync/internal/syncer"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Log writes progress and warnings to stderr
	Log *logging.Logger

	// DB is the opened journal database (nil if NeedsJournal is false)
	DB      *db.DB
	Journal *journal.Journal

	// Source and Target are the two organizations (nil if NeedsEndpoints is false)
	Source syncer.Endpoint
	Target syncer.Endpoint
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
		a.Journal = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsJournal opens and migrates the run journal.
	NeedsJournal bool

	// NeedsEndpoints validates the config and builds both REST clients.
	NeedsEndpoints bool
}

// DefaultOptions returns options for commands that migrate something.
func DefaultOptions() Options {
	return Options{NeedsJournal: true, NeedsEndpoints: true}
}

// JournalOnly returns options for commands that only read run history.
func JournalOnly() Options {
	return Options{NeedsJournal: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The journal is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	cfg, err := config.Load(flagValue(cmd, "config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v := flagValue(cmd, "journal"); v != "" {
		cfg.JournalPath = v
	}
	if v := flagValue(cmd, "output"); v != "" {
		cfg.Output = v
	}
	if v := flagValue(cmd, "log-level"); v != "" {
		cfg.LogLevel = v
	}
	if _, err := render.ParseFormat(cfg.Output); err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		Log:    logging.New(cmd.ErrOrStderr(), logging.ParseLevel(cfg.LogLevel)),
	}

	if opts.NeedsEndpoints {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		clientOpts := ado.Options{
			APIVersion: cfg.APIVersion,
			Timeout:    time.Duration(cfg.HTTPTimeout) * time.Second,
			Logger:     app.Log,
		}
		source, err := ado.New(cfg.Source, clientOpts)
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		target, err := ado.New(cfg.Target, clientOpts)
		if err != nil {
			return nil, fmt.Errorf("target: %w", err)
		}
		app.Source, app.Target = source, target
	}

	if opts.NeedsJournal {
		database, err := db.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		// The journal schema is private to this tool, so it is upgraded in place.
		applied, err := database.Migrate()
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to migrate journal: %w", err)
		}
		if len(applied) > 0 {
			app.Log.Debugf("journal %s: applied %v", database.Path(), applied)
		}
		app.DB = database
		app.Journal = journal.New(database)
	}

	return app, nil
}

// SessionOptions translates the configuration into engine options.
func (a *App) SessionOptions() syncer.Options {
	c := a.Config
	return syncer.Options{
		TrackingField:            c.TrackingField,
		MigrateInlineAttachments: c.MigrateInlineAttachments,
		MaxParentDepth:           c.MaxParentDepth,
		Staging: attach.Config{
			StagingDir: c.StagingDir,
			MaxMB:      int64(c.AttachmentsMaxMB),
		},
		TypeMap:    c.TypeMap,
		CopyFields: c.CopyFields,
		RemapPaths: c.RemapPaths,
		WIQLFilter: c.WIQLFilter,
	}
}

// Renderer returns a renderer for the configured output format.
func (a *App) Renderer(w io.Writer) (*render.Renderer, error) {
	format, err := render.ParseFormat(a.Config.Output)
	if err != nil {
		return nil, err
	}
	return render.NewRenderer(w, render.Options{Format: format, Color: format == render.FormatTable}), nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
