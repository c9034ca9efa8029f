// cmd/server/main.go
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/binkiewka/countdown-service/internal/auth"
	"github.com/binkiewka/countdown-service/internal/cache"
	"github.com/binkiewka/countdown-service/internal/config"
	"github.com/binkiewka/countdown-service/internal/countdown"
	"github.com/binkiewka/countdown-service/internal/database"
	"github.com/binkiewka/countdown-service/internal/handlers"
	"github.com/binkiewka/countdown-service/internal/metrics"
	"github.com/binkiewka/countdown-service/internal/store"
)

func main() {
	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfgFile := os.Getenv("CONFIG_FILE")
	if cfgFile == "" {
		cfgFile = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	// signing keys for watch session tokens; generated fresh unless pinned
	// to files, which keeps tokens valid across restarts
	priv, pub := os.Getenv("JWT_PRIVATE_KEY_FILE"), os.Getenv("JWT_PUBLIC_KEY_FILE")
	if priv != "" && pub != "" {
		err = auth.InitFromPath(priv, pub, cfg.Auth.TokenTTL)
	} else {
		err = auth.Init(cfg.Auth.TokenTTL)
	}
	if err != nil {
		logger.Fatalf("init session keys: %v", err)
	}

	var st store.Store
	if os.Getenv("COUNTDOWN_STORE") == "memory" {
		logger.Warn("using in-memory store; game state will not survive a restart")
		st = store.NewMemoryStore()
	} else {
		if err := cache.ConnectRedis(cfg.Redis.Addr, cfg.Redis.DB); err != nil {
			logger.Fatalf("connect redis: %v", err)
		}
		st = store.NewRedisStore(cache.Rdb)
	}

	if cfg.Postgres.DSN != "" {
		if err := database.ConnectDB(cfg.Postgres.DSN); err != nil {
			logger.Fatalf("connect postgres: %v", err)
		}
		defer database.DB.Close()
		if err := database.EnsureSchema(context.Background()); err != nil {
			logger.Fatalf("apply archive schema: %v", err)
		}
	} else {
		logger.Info("no postgres DSN configured; round history disabled")
	}

	manager := countdown.NewManager(st, cfg.Rules)
	m := metrics.New()

	games := handlers.NewGameServer(logger, manager, st, m)
	go games.Run(5 * time.Second)
	defer games.Stop()

	srv := handlers.NewServer(logger, manager, games, m, cfg.Auth.APIKeyHash)

	server := &http.Server{
		Handler:      srv.Routes(),
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
	}

	l, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}
}
