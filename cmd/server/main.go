package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricewidget/internal/app"
	"pricewidget/internal/config"
	"pricewidget/internal/presenter"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml")
	envFile := flag.String("env", ".env", "dotenv file with PRICEWIDGET_* overrides")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load(*cfgPath, *envFile)
	if err != nil {
		log.Fatalf("[ERROR] config: %v", err)
	}
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("[ERROR] open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	if cfg.CoinGecko.Enabled && cfg.CoinGecko.APIKey == "" {
		log.Println("[WARN] coingecko api key not set; anonymous rate limits apply")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg, app.WithSinks(presenter.LogSink{}))
	if err != nil {
		log.Fatalf("[ERROR] init: %v", err)
	}
	defer c.Close()

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(newMux(c, c.Gatherer, timeout), cfg.Server.MaxBodyBytes)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("[INFO] server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[ERROR] server: %v", err)
		}
	}()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[ERROR] scheduler: %v", err)
	}

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] shutdown: %v", err)
	}
	log.Println("[INFO] bye")
}
