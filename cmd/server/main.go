package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"treasury-backend/internal/app"
	"treasury-backend/internal/config"
	"treasury-backend/internal/db"
	"treasury-backend/internal/router"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	if err := db.InitDB(); err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}

	container, err := app.InitializeContainer(logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize service container")
	}
	defer container.Cleanup()

	r := router.SetupRouter(container, logger)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.WithField("addr", addr).Info("treasury backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server exited")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("forced shutdown")
	}
}
