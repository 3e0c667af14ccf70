// Package main copies every stored video from one storage backend to another
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chicogong/ytagents/pkg/config"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/storage"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file")
	from       = flag.String("from", storage.KindSQLite, "Source backend")
	to         = flag.String("to", "", "Destination backend")
)

func main() {
	flag.Parse()
	if *to == "" || *to == *from {
		fmt.Fprintln(os.Stderr, "usage: migrate -from <backend> -to <backend>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := storage.OpenKind(ctx, cfg.Storage, *from, log)
	if err != nil {
		log.Fatal("open source backend", "backend", *from, "error", err)
	}
	defer src.Close()

	dst, err := storage.OpenKind(ctx, cfg.Storage, *to, log)
	if err != nil {
		log.Fatal("open destination backend", "backend", *to, "error", err)
	}
	defer dst.Close()

	client := &http.Client{Timeout: cfg.Pipeline.Timeouts.Media.Duration}
	stats, err := storage.Migrate(ctx, src, dst, client, log)
	if err != nil {
		log.Error("migration aborted", "copied", stats.Copied, "skipped", stats.Skipped, "error", err)
		os.Exit(1)
	}
	log.Info("migration finished", "copied", stats.Copied, "skipped", stats.Skipped)
}
