package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/poker-table-coordinator/internal/config"
	"github.com/iliyamo/poker-table-coordinator/internal/database"
	"github.com/iliyamo/poker-table-coordinator/internal/engine"
	"github.com/iliyamo/poker-table-coordinator/internal/guard"
	"github.com/iliyamo/poker-table-coordinator/internal/handler"
	"github.com/iliyamo/poker-table-coordinator/internal/lobby"
	"github.com/iliyamo/poker-table-coordinator/internal/middleware"
	"github.com/iliyamo/poker-table-coordinator/internal/queue"
	"github.com/iliyamo/poker-table-coordinator/internal/router"
	queue_publisher "github.com/iliyamo/poker-table-coordinator/internal/service"
	"github.com/iliyamo/poker-table-coordinator/internal/session"
	"github.com/iliyamo/poker-table-coordinator/internal/view"
	"github.com/iliyamo/poker-table-coordinator/internal/wallet"
)

func main() {
	cfg := config.Load() // Load environment config

	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewExample()
	}
	return l
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	pings := []handler.Pinger{handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })}

	// The SQL ledger is used when DB_HOST is set; otherwise balances live
	// in memory and reset on restart.
	var ledger wallet.Ledger
	if cfg.Ledger.Enabled() {
		db, err := database.Open(cfg.Ledger)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		sqlLedger := wallet.NewSQLLedger(db, cfg.InitialBalance)
		if err := sqlLedger.EnsureSchema(ctx); err != nil {
			return err
		}
		ledger = sqlLedger
		pings = append(pings, handler.PingFunc(db.PingContext))
		log.Info("wallet ledger: mysql", zap.String("host", cfg.Ledger.Host), zap.String("db", cfg.Ledger.Name))
	} else {
		ledger = wallet.NewMemoryLedger(cfg.InitialBalance)
		log.Warn("wallet ledger: in-memory; balances are lost on restart")
	}

	coord := session.New(
		guard.New(rdb, guard.WithWait(cfg.GuardAcquireTimeout), guard.WithRetryInterval(cfg.GuardRetryInterval)),
		view.NewStore(rdb),
		lobby.NewRegistry(rdb, cfg.LobbyCapacity, cfg.LobbyTTL, log),
		wallet.NewAuthorizer(rdb, ledger, log),
		engine.NewHTTPClient(cfg.EngineURL, cfg.EngineTimeout),
		session.Options{
			Lease:      cfg.GuardLease,
			MinPlayers: cfg.MinPlayers,
			MinBalance: cfg.MinBalance,
			LobbyTTL:   cfg.LobbyTTL,
		},
		log,
	)
	pub := queue_publisher.NewPublisher(cfg.RabbitURL, cfg.EventsQueue, log)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	router.RegisterRoutes(e, pings...)
	router.RegisterSessions(e,
		handler.NewSessionHandler(coord, pub, log),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.HandLogConsumer {
		g.Go(func() error {
			err := queue.StartHandLogConsumer(ctx, cfg.RabbitURL, cfg.EventsQueue, cfg.HandLogDir, log)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
