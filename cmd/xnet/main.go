package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/laik/xnet/internal/config"
	"github.com/laik/xnet/pkg/capture"
	"github.com/laik/xnet/pkg/docker"
	"github.com/laik/xnet/pkg/exporter"
	"github.com/laik/xnet/pkg/pipeline"
	"github.com/laik/xnet/pkg/report"
)

var (
	configPath = flag.String("config", "/etc/xnet/config.yaml", "Path to configuration file")
	ifaceName  = flag.String("interface", "", "Network interface to monitor (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	if *ifaceName != "" {
		cfg.Interface = *ifaceName
	}

	slog.Info("Starting xnet", "interface", cfg.Interface)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tables := pipeline.NewTables(cfg.Tables)
	devices := pipeline.NewDeviceRegistry(tables)
	ingress := pipeline.NewIngress(tables)
	classifier := pipeline.NewClassifier(tables, devices)

	opts := capture.DefaultOptions()
	opts.SnapLen = cfg.SnapLen
	opts.BufferSizeMB = cfg.BufferSizeMB

	manager := capture.NewManager(opts, ingress, classifier, devices)
	defer manager.Close()

	if err := manager.Attach(cfg.Interface, true); err != nil {
		log.Fatalf("Failed to attach to %s: %v", cfg.Interface, err)
	}

	var dockerClient *docker.Client
	if cfg.DockerDiscovery {
		dockerClient, err = docker.NewClient(cfg.DockerLabels)
		if err != nil {
			log.Fatalf("Failed to initialize Docker client: %v", err)
		}
		defer dockerClient.Close()
	}

	apiServer := exporter.NewAPIServer(cfg.APIKey, tables, devices, manager)

	go func() {
		slog.Info("Starting API server", "address", cfg.ServerAddr)
		if err := apiServer.StartServer(cfg.ServerAddr); err != nil {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()

	var promExporter *exporter.PrometheusExporter
	if cfg.PrometheusAddr != "" {
		promExporter = exporter.NewPrometheusExporter()
		go func() {
			slog.Info("Starting Prometheus server", "address", cfg.PrometheusAddr)
			if err := promExporter.StartServer(cfg.PrometheusAddr); err != nil {
				log.Fatalf("Failed to start Prometheus server: %v", err)
			}
		}()
	}

	reportTicker := time.NewTicker(cfg.ReportInterval)
	defer reportTicker.Stop()

	discoveryTicker := time.NewTicker(cfg.DiscoveryInterval)
	defer discoveryTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("xnet started successfully")

	for {
		select {
		case <-sigCh:
			slog.Info("Received shutdown signal, cleaning up...")
			return

		case <-discoveryTicker.C:
			if dockerClient == nil {
				continue
			}
			found, err := dockerClient.DiscoverDevices(ctx)
			if err != nil {
				slog.Error("Error discovering container devices", "error", err)
				continue
			}
			slog.Info("Discovered container devices", "count", len(found))
			for _, dev := range found {
				devices.Register(dev.Iface, pipeline.DirIngress)
				if err := manager.Attach(dev.Iface, false); err != nil {
					slog.Debug("Device already attached", "interface", dev.Iface, "error", err)
				}
			}

		case <-reportTicker.C:
			summary := report.Collect(tables, devices)
			summary.Log(cfg.ReportTopN)
			if promExporter != nil {
				promExporter.UpdateStats(summary)
			}
		}
	}
}
