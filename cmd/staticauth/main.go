package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/snehasaisneha/staticauth/internal/app"
	"github.com/snehasaisneha/staticauth/internal/platform/config"
	"github.com/snehasaisneha/staticauth/internal/platform/otel"
)

func main() {
	cfg := app.LoadConfigFromEnv()
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The HTTP server address")
	flag.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The sqlite database path")
	flag.Parse()

	log.SetPrefix("[STATICAUTH] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "staticauth")
	if err != nil {
		config.Exitf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
