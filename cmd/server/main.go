package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodinwetrust10/fxsettle/internal/config"
	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/escrow"
	"github.com/inodinwetrust10/fxsettle/internal/events"
	"github.com/inodinwetrust10/fxsettle/internal/gateway"
	"github.com/inodinwetrust10/fxsettle/internal/handler"
	"github.com/inodinwetrust10/fxsettle/internal/listing"
	"github.com/inodinwetrust10/fxsettle/internal/logger"
	"github.com/inodinwetrust10/fxsettle/internal/market"
	"github.com/inodinwetrust10/fxsettle/internal/payout"
	"github.com/inodinwetrust10/fxsettle/internal/settlement"
	"github.com/inodinwetrust10/fxsettle/internal/wallet"
)

func main() {
	cfg, err := config.Load("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()
	log.Info("connected to database")

	store := db.NewStore(pool, log)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("publishing events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer pub.Close()

	retries := cfg.Settlement.MaxRetries
	wallets := wallet.New(store, log)
	listings := listing.New(store, log)
	h := handler.New(handler.Deps{
		Wallets:    wallets,
		Listings:   listings,
		Settlement: settlement.New(store, wallets, listings, pub, log, retries),
		Payouts: payout.New(store, wallets, payout.LogDisburser{Log: log}, pub, log, payout.Config{
			FeePct:          cfg.Fees.PayoutPct,
			DisburseTimeout: cfg.Payout.DisburseTimeout,
			MaxRetries:      retries,
		}),
		Goods: escrow.New(store, wallets, pub, log, escrow.Config{
			Fees: escrow.Fees{
				ListingPct:          cfg.Fees.ListingPct,
				SellerCommissionPct: cfg.Fees.SellerCommissionPct,
				BuyerPct:            cfg.Fees.BuyerPct,
				PayoutPct:           cfg.Fees.PayoutPct,
			},
			CrossBorderRate: cfg.Payout.CrossBorderRate,
			MaxRetries:      retries,
		}),
		Gateway: gateway.New(store, wallets, pub, log, retries),
		Market:  market.New(cfg.Market.BaseURL, cfg.Market.TTL, log),
	}, log)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("settlement service listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sc, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sc)
	})
	return g.Wait()
}
