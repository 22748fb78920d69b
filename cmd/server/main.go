package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-chatrooms/internal/api"
	"github.com/npezzotti/go-chatrooms/internal/config"
	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/server"
	"github.com/npezzotti/go-chatrooms/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	rawAddr        string
	storeKind      string
	dsn            string
	migrate        bool
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:3000", "server address")
	flag.StringVar(&rawAddr, "raw-addr", "localhost:3001", "raw websocket server address")
	flag.StringVar(&storeKind, "store", config.StorePostgres, "chat store backend (postgres or memory)")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.BoolVar(&migrate, "migrate", true, "apply database migrations on startup")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, rawAddr, storeKind, dsn, allowedOrigins, migrate)
	if err != nil {
		logger.Fatal("config:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux, "gochat-stats")
	statsUpdater.Run()
	defer statsUpdater.Stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("store open:", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	registry := server.NewRegistry(logger, statsUpdater)
	broadcaster := server.NewBroadcaster(logger, registry, statsUpdater)
	handler := server.NewHandler(logger, store, registry, broadcaster, statsUpdater)

	app := api.NewChatApp(mux, logger, handler, store, cfg)
	rawSrv := api.NewRawSocketServer(logger, handler, cfg)

	errCh := make(chan error, 2)
	go func() {
		errCh <- app.Start()
	}()
	go func() {
		errCh <- rawSrv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}
	if err := rawSrv.Shutdown(shutDownCtx); err != nil {
		logger.Println("raw socket server shutdown:", err)
	}

	logger.Println("closing websocket connections...")
	handler.CloseAll()

	logger.Println("shutdown complete")
}

func openStore(cfg *config.Config, logger *log.Logger) (database.ChatStore, error) {
	if cfg.Store == config.StoreMemory {
		logger.Println("using in-memory chat store")
		return database.NewMemoryChatStore(), nil
	}

	store, err := database.NewPgChatStore(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		logger.Println("applying database migrations...")
		if err := database.Migrate(store.DB()); err != nil {
			store.Close()
			return nil, err
		}
	}

	return store, nil
}
