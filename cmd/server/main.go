package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/adledger/internal/api"
	"github.com/atmx/adledger/internal/auth"
	"github.com/atmx/adledger/internal/config"
	"github.com/atmx/adledger/internal/events"
	"github.com/atmx/adledger/internal/ledger"
	"github.com/atmx/adledger/internal/model"
	"github.com/atmx/adledger/internal/store"
	"github.com/atmx/adledger/internal/treasury"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	switch {
	case cfg.Database.URL != "":
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	case cfg.Snapshot.Path != "":
		snap, err := store.NewSnapshotStore(cfg.Snapshot.Path)
		if err != nil {
			slog.Error("snapshot store failed", "path", cfg.Snapshot.Path, "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() {
			if err := snap.Close(); err != nil {
				slog.Error("snapshot close failed", "err", err)
			}
		})
		st = snap
		slog.Info("using snapshot store", "path", cfg.Snapshot.Path)
	default:
		slog.Warn("no database or snapshot configured, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Event sinks ---
	wsHub := events.NewHub()
	go wsHub.Run(ctx)
	pubs := []ledger.Publisher{wsHub}

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		rp := events.NewRedisPublisher(rdb, cfg.Redis.Channel)
		go rp.Run(ctx)
		pubs = append(pubs, rp)
		slog.Info("Redis event publishing enabled", "channel", cfg.Redis.Channel)
	}

	// --- Ledger ---
	restored, err := st.Load(ctx)
	if err != nil {
		slog.Error("load state failed", "err", err)
		os.Exit(1)
	}
	journal := treasury.NewJournal(restored.TotalBalance)

	engine, err := ledger.NewEngine(ctx, st, journal, cfg.Ledger.Params(), pubs...)
	if err != nil {
		slog.Error("ledger init failed", "err", err)
		os.Exit(1)
	}
	if err := bootstrap(ctx, engine, cfg.Ledger); err != nil {
		slog.Error("ledger bootstrap failed", "err", err)
		os.Exit(1)
	}
	params := engine.Params()
	slog.Info("ledger ready",
		"name", params.Name,
		"escrow_multiplier", params.EscrowMultiplier.String(),
		"strict_share_sum", params.StrictShareSum,
		"owner", engine.Owner().String(),
		"total_balance", engine.TotalBalance().String(),
	)

	// --- HTTP ---
	var authn auth.Authenticator = auth.HeaderAuthenticator{}
	if cfg.Auth.Mode == auth.ModeSignature {
		authn = auth.NewSignatureAuthenticator(cfg.Auth.MaxSkew)
	}
	router := api.NewRouter(api.NewHandler(engine), authn, api.RouterOptions{
		Hub:        wsHub,
		RequestLog: cfg.Server.RequestLog,
		Timeout:    cfg.Server.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("adledger listening", "port", cfg.Server.Port, "auth", cfg.Auth.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down adledger...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("adledger stopped")
}

// bootstrap initializes the ledger with the configured owner when it has not
// been initialized yet, then applies the configured trusted service.
func bootstrap(ctx context.Context, engine *ledger.Engine, lc config.LedgerConfig) error {
	if lc.Owner == "" {
		if _, ok := engine.Access(); !ok {
			slog.Warn("ledger not initialized and no owner configured; waiting for POST /api/v1/initialize")
		}
		return nil
	}
	owner, err := model.ParseAddress(lc.Owner)
	if err != nil {
		return err
	}

	if _, err := engine.Initialize(ctx, owner); err != nil && !errors.Is(err, ledger.ErrAlreadyInitialized) {
		return fmt.Errorf("initialize: %w", err)
	}
	if lc.TrustedService == "" {
		return nil
	}

	service, err := model.ParseAddress(lc.TrustedService)
	if err != nil {
		return err
	}
	acc, _ := engine.Access()
	if acc.TrustedService == service {
		return nil
	}
	if acc.Owner != owner {
		slog.Warn("configured owner no longer owns the ledger; trusted service left unchanged",
			"owner", acc.Owner.String())
		return nil
	}
	if _, err := engine.SetTrustedService(ctx, owner, service); err != nil {
		return fmt.Errorf("set trusted service: %w", err)
	}
	return nil
}
