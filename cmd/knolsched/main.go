package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/conorfennell/knolsched/internal/config"
	"github.com/conorfennell/knolsched/internal/logger"
	"github.com/conorfennell/knolsched/internal/memory"
	"github.com/conorfennell/knolsched/internal/queue"
	"github.com/conorfennell/knolsched/internal/review"
	"github.com/conorfennell/knolsched/internal/settings"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/conorfennell/knolsched/internal/sync"
	"github.com/conorfennell/knolsched/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("knolsched failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("knolsched", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	addSource := fs.String("add-source", "", "Register a local directory or git URL as a note source")
	runSync := fs.Bool("sync", false, "Import notes from all sources and exit")
	resetDeck := fs.String("reset-deck", "", "Reset all cards of a deck id (or \"all\") to New and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	closeLog, err := logger.Configure(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, Format: cfg.Log.Format})
	if err != nil {
		slog.Warn("Logger configured with errors", "error", err)
	}
	defer closeLog()

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	slog.Info("Database opened", "path", cfg.Database.Path)

	importer := sync.New(db, cfg.Sources.ReposDir, sync.WithProgress(os.Stdout))

	if *addSource != "" {
		id, err := importer.AddSource(ctx, *addSource)
		if err != nil {
			return err
		}
		fmt.Printf("Source %d added: %s\n", id, *addSource)
		return nil
	}

	if *runSync {
		reports, err := importer.Run(ctx)
		if err != nil {
			return err
		}
		for _, r := range reports {
			fmt.Printf("%s: %d parsed, %d created, %d deleted, %d errors\n", r.Path, r.Parsed, r.Created, r.Deleted, len(r.Errors))
			for _, e := range r.Errors {
				fmt.Printf("- %s\n", e)
			}
		}
		return nil
	}

	model, err := memory.NewFSRS(cfg.Scheduler.Config)
	if err != nil {
		return err
	}
	provider, err := settings.NewFileProvider(cfg.Settings.File)
	if err != nil {
		return err
	}
	processor, err := review.NewProcessor(ctx, db, model, provider)
	if err != nil {
		return err
	}
	defer processor.Close()

	if *resetDeck != "" {
		var deckID *int64
		if *resetDeck != "all" {
			id, err := strconv.ParseInt(*resetDeck, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid deck id %q", *resetDeck)
			}
			deckID = &id
		}
		n, err := processor.ResetCardsInDeck(ctx, deckID)
		if err != nil {
			return err
		}
		fmt.Printf("%d cards reset\n", n)
		return nil
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	builder := queue.NewBuilder(db, queue.WithLocation(loc), queue.WithMaxScan(cfg.Database.MaxScan))

	go func() {
		if err := provider.Watch(ctx); err != nil {
			slog.Warn("Settings file is not watched", "path", cfg.Settings.File, "error", err)
		}
	}()

	var limiter *rate.Limiter
	if cfg.Server.WriteRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.WriteRate), max(cfg.Server.WriteBurst, 1))
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: web.NewServer(web.Deps{
			Reviewer: processor,
			Queue:    builder,
			Settings: provider,
			Catalog:  db,
			Importer: importer,
			Limiter:  limiter,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv)
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
