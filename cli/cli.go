package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"damai-scraper/config"
	"damai-scraper/scraper/damai"
	"damai-scraper/services"
	"damai-scraper/storage"
	"damai-scraper/utils"
	"damai-scraper/web"
)

// ErrPartialFailure is returned by update when at least one artist failed.
var ErrPartialFailure = errors.New("one or more artists failed to update")

type rootOptions struct {
	logLevel string
}

// NewRootCmd creates the root command with the update, serve and report subcommands.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "damai-scraper",
		Short: "Scrape Damai show listings into a relational store",
		Long: `Searches damai.cn for artists, expands multi-day listings into one
show per day and stores the ones not seen before.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")

	cmd.AddCommand(newUpdateCmd(opts), newServeCmd(opts), newReportCmd(opts))
	return cmd
}

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		artists []string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "update [artist...]",
		Short: "Scrape and store the shows of one or more artists",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := collectArtists(append(artists, args...))
			if len(names) == 0 {
				return fmt.Errorf("at least one artist is required")
			}
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			results := a.updater().UpdateShows(ctx, names)
			if err := writeResults(cmd.OutOrStdout(), outFormat, results); err != nil {
				return err
			}
			for _, r := range results {
				if !r.Success {
					return ErrPartialFailure
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&artists, "artist", "a", nil, "Artist to update (repeatable)")
	cmd.Flags().StringVar(&format, "format", string(FormatText), "Output format: text or json")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the update endpoint over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           web.NewServer(a.updater(), a.logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("[serve] Listening on %s", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				a.logger.Info("[serve] Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var artist string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise the stored shows of an artist",
		RunE: func(cmd *cobra.Command, args []string) error {
			artist = strings.TrimSpace(artist)
			if artist == "" {
				return fmt.Errorf("--artist is required")
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			shows, err := a.store.ListByArtist(cmd.Context(), artist)
			if err != nil {
				return fmt.Errorf("listing shows: %w", err)
			}
			svc := services.NewReportService(a.logger)
			svc.Print(cmd.OutOrStdout(), svc.Generate(artist, shows, time.Now()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&artist, "artist", "a", "", "Artist to report on (required)")
	_ = cmd.MarkFlagRequired("artist")
	return cmd
}

// app bundles the configuration, logger and store shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *utils.Logger
	store  *storage.SQLStore
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg := config.Load()
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger := cfg.Logger()

	if cfg.DBDriver == config.DriverSQLite && cfg.DatabaseURL == "" && cfg.SQLitePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	logger.Info("[app] Connecting to %s", cfg.DBDriver)
	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) updater() *services.Updater {
	pipeline := services.NewUploadPipeline(a.store, a.cfg.RetryPolicy(a.logger), a.logger)
	scraper := damai.NewScraper(damai.NewFetcher(a.cfg, a.logger), a.logger)
	u := services.NewUpdater(scraper, pipeline, a.logger, a.cfg.MaxConcurrency, a.cfg.RateLimit())

	if a.cfg.SnapshotDir != "" {
		sink, err := storage.NewSnapshotWriter(a.cfg.SnapshotDir)
		if err != nil {
			a.logger.Warn("[app] Snapshots disabled: %v", err)
		} else {
			pipeline.WithSnapshots(sink)
			u.WithSnapshots(sink)
		}
	}
	return u
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("[app] Closing store: %v", err)
	}
}

// collectArtists trims names and drops blanks and repeats, keeping first-seen order.
func collectArtists(in []string) []string {
	seen := utils.NewKeySet()
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" || !seen.Add(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}
