//go:generate go tool swag init --parseInternal --parseDependencyLevel 1 -g main.go -o api_specs

// @title			Diamond Auction API
// @version		1.0
// @description	Live diamond auctions with manual and proxy bidding.
// @BasePath		/api
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"diamondauction/internal/auctionwatcher"
	"diamondauction/internal/broadcast"
	"diamondauction/internal/config"
	"diamondauction/internal/database/db_client"
	"diamondauction/internal/http/http_server"
	"diamondauction/internal/redis/redis_client"
	"diamondauction/internal/services/auction"
	"diamondauction/internal/store"
	"diamondauction/internal/syncdb"
	"diamondauction/internal/users"
	"diamondauction/internal/wallet"
	"diamondauction/internal/ws"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Postgres: schema, then restore the in-memory state from the mirror
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	if err := db_client.Migrate(ctx, pgDb); err != nil {
		Log.Fatal("pg-migrate", zap.Error(err))
	}

	auctionStore := store.New()
	restored, err := syncdb.Load(ctx, pgDb, auctionStore)
	if err != nil {
		Log.Fatal("pg-restore", zap.Error(err))
	}
	Log.Info("auctions restored", zap.Int("count", restored))

	// 4. Event fan-out: Redis Pub/Sub across instances, or in-process
	var (
		events broadcast.Broadcaster
		feed   ws.Feed
	)
	switch cfg.EventsBackend {
	case "local":
		local := broadcast.NewLocal(0)
		events, feed = local, ws.LocalFeed(local)
	default:
		redisClient, err := redis_client.NewRedisClient(cfg.RedisAuctionsHost, int(cfg.RedisAuctionsPort), cfg.RedisAuctionsPassword, cfg.RedisAuctionsDb)
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		events, feed = broadcast.NewRedis(redisClient), ws.RedisFeed(redisClient)
	}

	// 5. Services
	names, err := users.NewSQLDirectory(pgDb, cfg.UserNameCacheSize)
	if err != nil {
		Log.Fatal("user-directory", zap.Error(err))
	}
	ledger := wallet.NewMemoryLedger(wallet.WithJournal())
	replayed, err := syncdb.LoadWallet(ctx, pgDb, ledger)
	if err != nil {
		Log.Fatal("pg-restore-wallet", zap.Error(err))
	}
	Log.Info("wallet restored", zap.Int("transactions", replayed))
	auctionService := auction.NewAuctionService(auctionStore, ledger, events, names, auction.Options{
		MinIncrement:         cfg.BidMinIncrement,
		TieBreak:             auction.TieBreak(cfg.ProxyTieBreak),
		MaxResolveIterations: cfg.ProxyMaxIterations,
		PublishRetries:       cfg.PublishRetries,
	})

	// 6. HTTP + WS server
	wsSrv := ws.NewWsServer(ws.NewHub(), feed, auctionService)
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, auctionService, ledger)

	// 7. Background loops share the process lifetime with the HTTP server
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		auctionwatcher.Run(gctx, auctionService, cfg.SchedulerInterval)
		return nil
	})
	g.Go(func() error {
		syncdb.Run(gctx, syncdb.NewMirror(pgDb, auctionStore, syncdb.WithJournal(ledger)), cfg.SyncInterval)
		return nil
	})
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		return httpServer.Dispose()
	})

	if err := g.Wait(); err != nil {
		Log.Error("server stopped", zap.Error(err))
	}
	Log.Info("shutdown complete")
}
