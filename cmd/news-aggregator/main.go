// news-aggregator ingests headlines from the upstream news API into Postgres
// and serves them over a read-only HTTP API.
//
// Usage:
//
//	news-aggregator serve              # HTTP API plus background syncs
//	news-aggregator migrate            # apply database migrations
//	news-aggregator sync sources       # refresh the source catalogue once
//	news-aggregator sync headlines     # pull headlines once
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitesh/news_aggregator/internal/api"
	"github.com/nitesh/news_aggregator/internal/ingest"
	"github.com/nitesh/news_aggregator/internal/scheduler"
	"github.com/nitesh/news_aggregator/internal/service"
	"github.com/nitesh/news_aggregator/pkg/models"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "news-aggregator",
		Short:         "News headline aggregator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), syncCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sync jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply migrations at startup")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.migrate(); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			a.logger.Info("migrations applied")
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync and print its outcome",
	}
	cmd.AddCommand(syncSourcesCmd(), syncHeadlinesCmd())
	return cmd
}

func syncSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Replace the stored sources with the upstream catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return printReport(a.pipeline().SyncSources(cmd.Context()))
		},
	}
}

func syncHeadlinesCmd() *cobra.Command {
	var (
		countries, categories, sources []string
		query, language                string
		sampleCountries                int
		sampleCategories               int
		concurrency                    int
	)

	cmd := &cobra.Command{
		Use:   "headlines",
		Short: "Fetch top headlines for the configured or given filters",
		Long: "Flags override the sync section of the configuration. With no " +
			"country, category or source a single call is made with only the " +
			"query and language.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			f := cmd.Flags()
			req := headlinesRequest(a.cfg.Sync)
			if f.Changed("country") {
				req.Countries = countries
			}
			if f.Changed("category") {
				req.Categories = categories
			}
			if f.Changed("source") {
				req.Sources = sources
			}
			if f.Changed("query") {
				req.Query = query
			}
			if f.Changed("language") {
				req.Language = language
			}
			if f.Changed("sample-countries") {
				req.SampleCountries = sampleCountries
			}
			if f.Changed("sample-categories") {
				req.SampleCategories = sampleCategories
			}
			if f.Changed("concurrency") {
				a.cfg.Sync.Concurrency = max(concurrency, 1)
			}

			report, err := a.pipeline().SyncHeadlines(cmd.Context(), req)
			if errors.Is(err, ingest.ErrInvalidRequest) {
				return err
			}
			if err != nil {
				return fmt.Errorf("sync headlines: %w", err)
			}
			return printReport(report)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&countries, "country", nil, "country codes, e.g. us,fr")
	f.StringSliceVar(&categories, "category", nil, "categories, e.g. business,technology")
	f.StringSliceVar(&sources, "source", nil, "source ids (cannot be combined with country or category)")
	f.StringVarP(&query, "query", "q", "", "keyword query")
	f.StringVar(&language, "language", "", "language code")
	f.IntVar(&sampleCountries, "sample-countries", 0, "draw this many random countries")
	f.IntVar(&sampleCategories, "sample-categories", 0, "draw this many random categories")
	f.IntVar(&concurrency, "concurrency", 1, "upstream calls in flight")
	return cmd
}

// printReport writes the run as JSON and fails the command when nothing was
// synced.
func printReport(r *ingest.Report) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.Run); err != nil {
		return err
	}
	if r.Run.Status == models.SyncStatusFailed {
		return fmt.Errorf("%s sync failed: %w", r.Run.Kind, r.Err)
	}
	return nil
}

func runServe(ctx context.Context, skipMigrate bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !skipMigrate {
		if err := a.migrate(); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	svc := service.NewService(a.store, a.rdb, a.cfg.Redis.CacheTTL, a.logger.With("component", "service"))
	router := api.NewRouter(api.NewHandler(svc), a.logger.With("component", "http"))
	srv := &http.Server{
		Addr:              ":" + a.cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	schedDone := make(chan struct{})
	if a.cfg.Sync.Disabled {
		a.logger.Info("background sync disabled")
		close(schedDone)
	} else {
		pipeline := a.pipeline()
		sched := scheduler.New(a.logger.With("component", "scheduler"))
		sched.Add(scheduler.Job{
			Name:     models.SyncKindSources,
			Interval: a.cfg.Sync.SourcesInterval,
			Fn:       func(ctx context.Context) { pipeline.SyncSources(ctx) },
		})
		req := headlinesRequest(a.cfg.Sync)
		sched.Add(scheduler.Job{
			Name:     models.SyncKindHeadlines,
			Interval: a.cfg.Sync.HeadlinesInterval,
			Fn: func(ctx context.Context) {
				if _, err := pipeline.SyncHeadlines(ctx, req); err != nil {
					a.logger.Error("headline sync rejected, check sync configuration", "error", err)
				}
			},
		})
		go func() {
			sched.Run(ctx)
			close(schedDone)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			cancel()
			<-schedDone
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}
	<-schedDone
	return nil
}
