package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SueMuBai/nebula/internal/config"
	"github.com/SueMuBai/nebula/internal/devserver"
	"github.com/SueMuBai/nebula/internal/logger"
)

func main() {
	logger.SetPrefix("devserver")
	logger.Info("starting dev server")
	cfg := config.Load()

	srv := devserver.New()
	httpSrv := &http.Server{
		Addr:         cfg.DevServer.ListenAddr,
		Handler:      srv.Router(cfg.DevServer.CORSAllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("dev server listening on %s", cfg.DevServer.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("dev server stopped")
}
