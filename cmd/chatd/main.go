package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	"github.com/castlinker/chatd/internal/api"
	"github.com/castlinker/chatd/internal/config"
	"github.com/castlinker/chatd/internal/database"
	"github.com/castlinker/chatd/internal/presence"
	"github.com/castlinker/chatd/internal/server"
	"github.com/castlinker/chatd/internal/stats"
)

var (
	envFile string
	migrate bool
)

func main() {
	flag.StringVar(&envFile, "env-file", "", "path to an env file loaded before reading configuration")
	flag.BoolVar(&migrate, "migrate", true, "run database migrations on startup")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatd] ", log.LstdFlags)

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logger.Fatal("env file:", err)
		}
	} else {
		// a .env in the working directory is optional
		_ = godotenv.Load()
	}

	cfg, err := config.Load(nil)
	if err != nil {
		logger.Fatal("config:", err)
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelConnect()

	var dbConn *database.PgChatRepository
	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(connectCtx, backoff, func(ctx context.Context) error {
		var err error
		dbConn, err = database.NewPgChatRepository(cfg.DatabaseDSN)
		if err != nil {
			logger.Println("db open:", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if migrate {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("migrate:", err)
		}
	}

	var presenceStore *presence.RedisStore
	err = retry.Do(connectCtx, backoff, func(ctx context.Context) error {
		var err error
		presenceStore, err = presence.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.PresenceStaleAfter)
		if err != nil {
			logger.Println("redis connect:", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		logger.Fatal("redis connect:", err)
	}
	defer func() {
		if err := presenceStore.Close(); err != nil {
			logger.Println("redis close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, presenceStore, statsUpdater, cfg.TypingTTL)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewChatApp(mux, logger, chatServer, dbConn, presenceStore, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Println("listening on", cfg.ServerAddr)

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

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
