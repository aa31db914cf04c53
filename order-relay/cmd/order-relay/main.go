package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"notification-hub/order-relay/internal/app"
	"notification-hub/order-relay/internal/httpapi"
	"notification-hub/order-relay/internal/metrics"
	"notification-hub/order-relay/internal/store"
	"notification-hub/shared/pkg/config"
	"notification-hub/shared/pkg/db"
	"notification-hub/shared/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file read before the environment")
	port := pflag.String("port", "", "HTTP port, overrides PORT")
	pflag.Parse()

	cfg := config.MustLoad(*envFile)
	if *port != "" {
		cfg.HTTPPort = *port
	}
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		logger.Fatal(err)
	}

	// unwrap sql.DB for pool config
	sqlDB, err := gdb.DB()
	if err != nil {
		logger.Fatal(err)
	}
	defer sqlDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(gdb)
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal(err)
	}

	m := metrics.NewCollector()
	relay := app.New(ctx, st, app.KafkaBuilder(cfg, st, m))
	if err := relay.StartAll(); err != nil {
		logger.Fatal(err)
	}
	go relay.PollingCheck(ctx, cfg.Polling.CheckInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpapi.NewRouter(relay.Health(), relay, m.Registry()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("%s listening on :%s", cfg.AppName, cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown: %v", err)
	}
	relay.StopAll()
}
