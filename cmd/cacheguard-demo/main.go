// @title           cacheguard-demo API
// @version         1.0
// @description     Reference product catalog API demonstrating cacheguard's cache-aside coordinator in front of Postgres.
// @license.name    Apache 2.0
// @license.url     http://www.apache.org/licenses/LICENSE-2.0.html
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/cacheguard"
	"github.com/custodia-labs/cacheguard/internal/codec"
	"github.com/custodia-labs/cacheguard/internal/metrics"
)

func main() {
	cfg := loadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	logger.Info("connecting to postgres")
	store, err := NewProductStore(ctx, DefaultDBConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer store.Close()

	logger.Info("connecting to redis")
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to parse REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry, "products")

	encCodec, err := codec.NewEncrypting[Product](codec.NewJSON[Product](), cfg.CodecKey, []byte("cacheguard-demo"))
	if err != nil {
		log.Fatalf("failed to build encrypting codec: %v", err)
	}

	opts := cacheguard.DefaultOptions()
	opts.Logger = logger
	opts.Metrics = recorder

	cache := cacheguard.NewClientCodec[Product](rdb, encCodec, opts)
	issuer := NewTokenIssuer(cfg.JWTSecret)

	srv := NewServer(ServerConfig{Host: "0.0.0.0", Port: cfg.Port}, cache, store, issuer, logger)

	metricsAddr := fmt.Sprintf(":%d", getEnvInt("METRICS_PORT", 9090))
	metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	defer metricsServer.Shutdown(context.Background())

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
