// Package main is the entry point for the tonebridge device daemon
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/james-see/tonebridge/internal/appversion"
	"github.com/james-see/tonebridge/internal/config"
	"github.com/james-see/tonebridge/internal/daemon"
	"github.com/james-see/tonebridge/internal/logger"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "YAML or TOML config file (default: built-in TCP link and API on :8080)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.String())
		return
	}

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "tonebridged: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return err
		}
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("tonebridged starting", zap.String("version", appversion.Version()), zap.Int("channels", len(cfg.Enabled())))
	if cfg.HTTP.Enabled {
		log.Info("swagger docs", zap.String("url", fmt.Sprintf("http://%s/swagger/index.html", cfg.HTTP.Addr)))
	}
	return d.Run(ctx)
}
