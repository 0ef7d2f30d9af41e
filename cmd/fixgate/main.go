package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Aidin1998/fixgate/api"
	"github.com/Aidin1998/fixgate/internal/config"
	"github.com/Aidin1998/fixgate/internal/fixengine"
	"github.com/Aidin1998/fixgate/internal/gateway"
	"github.com/Aidin1998/fixgate/internal/journal"
	"github.com/Aidin1998/fixgate/internal/mirror"
	"github.com/Aidin1998/fixgate/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	configPaths := flag.String("config", "config.yaml", "comma separated configuration files, later files override earlier ones")
	flag.Parse()

	loader := config.NewLoader(nil)
	cfg, err := loader.Load(strings.Split(*configPaths, ",")...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, level, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	loader.SetLogger(zapLogger)
	loader.OnReload(func(old, next *config.Config) {
		if old.Logging.Level != next.Logging.Level {
			level.SetLevel(logger.ParseLevel(next.Logging.Level))
			zapLogger.Info("Log level changed", zap.String("level", next.Logging.Level))
		}
	})
	loader.Watch()

	settings, err := fixengine.BuildSettings(cfg.FIX)
	if err != nil {
		zapLogger.Fatal("Invalid session settings", zap.Error(err))
	}

	gw := gateway.New(fixengine.NewRoles(settings), gateway.Options{
		RequestIDCeiling: cfg.FIX.RequestIDCeiling,
		SendRate:         cfg.FIX.SendRate,
		SendBurst:        cfg.FIX.SendBurst,
	}, zapLogger)
	engine := fixengine.New(gw, settings, fixengine.Options{
		Credentials: fixengine.Credentials{
			Username:         cfg.FIX.Username,
			Password:         cfg.FIX.Password,
			TargetSubID:      cfg.FIX.TargetSubID,
			TradingSessionID: cfg.FIX.TradingSessionID,
		},
		LogMessages: cfg.FIX.LogMessages,
	}, zapLogger)
	gw.Attach(engine, engine)

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := mirror.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		detach := mirror.NewRedisMirror(client, cfg.Redis.Prefix, zapLogger).Attach(gw.Events())
		closers = append(closers, func() {
			detach()
			_ = client.Close()
		})
		zapLogger.Info("Redis mirror enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Kafka.Enabled {
		exporter := mirror.NewKafkaExporter(mirror.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, zapLogger), zapLogger)
		detach := exporter.Attach(gw.Events())
		closers = append(closers, func() {
			detach()
			if err := exporter.Close(); err != nil {
				zapLogger.Error("Failed to close kafka exporter", zap.Error(err))
			}
		})
		zapLogger.Info("Kafka export enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var history api.History
	if cfg.Journal.Enabled {
		db, err := journal.Open(cfg.Journal)
		if err != nil {
			zapLogger.Fatal("Failed to open journal", zap.Error(err))
		}
		j, err := journal.New(db, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to prepare journal", zap.Error(err))
		}
		detach := j.Attach(gw.Events())
		closers = append(closers, func() {
			detach()
			_ = j.Close()
		})
		history = j
		zapLogger.Info("Journal enabled", zap.String("driver", cfg.Journal.Driver))
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(gw, api.Options{AllowedOrigins: cfg.API.AllowedOrigins, History: history}, zapLogger)
		go func() {
			if err := apiServer.Start(cfg.API.Addr); err != nil {
				zapLogger.Fatal("Failed to start API server", zap.Error(err))
			}
		}()
	}

	if err := gw.Connect(); err != nil {
		zapLogger.Fatal("Failed to connect", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down")

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Shutdown(ctx); err != nil {
			zapLogger.Error("API server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	gw.Shutdown()
	zapLogger.Info("Gateway exited properly")
}
