package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/gomirror/internal/metrics"
	"github.com/betbot/gomirror/internal/mirror"
	"github.com/betbot/gomirror/internal/outcome"
	"github.com/betbot/gomirror/internal/report"
	"github.com/betbot/gomirror/internal/watcher"
	"github.com/betbot/gomirror/pkg/config"
	"github.com/betbot/gomirror/pkg/logger"
	"github.com/betbot/gomirror/pkg/sdk/api"
)

func main() {
	configPath := flag.String("config", "config.yaml", "configuration file path")
	dryRun := flag.Bool("dry-run", false, "log orders instead of sending them")
	flag.Parse()

	// .env is optional; real deployments export the variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.Mirror.DryRun = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	log := logger.Logger

	auth, err := api.NewAuth()
	if err != nil {
		log.Errorf("wallet setup failed: %v", err)
		os.Exit(1)
	}
	log.Infof("signing wallet: %s", auth.GetAddress().Hex())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clob := api.NewClobClient(auth)
	if !cfg.Mirror.DryRun {
		credsCtx, credsCancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := clob.DeriveAPICreds(credsCtx)
		credsCancel()
		if err != nil {
			log.Errorf("API credential setup failed: %v", err)
			os.Exit(1)
		}
		log.Info("CLOB API credentials ready")
	}

	dataClient := api.NewClient()
	resolver := outcome.NewResolver(dataClient, clob, log)
	m := mirror.New(clob, mirror.Config{
		SizeMultiplier: cfg.Mirror.SizeMultiplier,
		MinOrderUSDC:   cfg.Mirror.MinOrderUSDC,
		MaxOrderUSDC:   cfg.Mirror.MaxOrderUSDC,
		DryRun:         cfg.Mirror.DryRun,
	}, log)

	var journal *report.Writer
	if cfg.ReportCSV != "" {
		journal, err = report.NewWriter(cfg.ReportCSV)
		if err != nil {
			log.Errorf("report setup failed: %v", err)
			os.Exit(1)
		}
		defer journal.Close()
		log.Infof("trade journal: %s", cfg.ReportCSV)
	}

	if cfg.MetricsAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.MetricsAddr); err != nil {
			log.Warnf("metrics listener failed: %v", err)
		} else {
			log.Infof("metrics at http://%s/debug/vars", cfg.MetricsAddr)
		}
	}

	w := watcher.New(watcher.Config{
		Target:        cfg.TargetAddress,
		WSURL:         cfg.WSURL,
		WSBackupURL:   cfg.WSBackupURL,
		PollInterval:  time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		PollLimit:     cfg.ActivityLimit,
		PollTolerance: time.Duration(cfg.WatermarkToleranceS) * time.Second,
		DedupCapacity: cfg.DedupCapacity,
	}, dataClient, resolver, m, journal, log)

	log.Infof("mirroring %s (dry_run=%v, multiplier=%.2f)",
		cfg.TargetAddress, cfg.Mirror.DryRun, cfg.Mirror.SizeMultiplier)

	w.Run(ctx)
	log.Info("shutdown complete")
}
