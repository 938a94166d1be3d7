package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/appletsync/internal/client"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/config"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/appletsync/internal/lifecycle"
	"github.com/GriffinCanCode/appletsync/internal/orchestrator"
	"github.com/GriffinCanCode/appletsync/internal/sandbox"
	"github.com/GriffinCanCode/appletsync/internal/shared/types"
)

const previewLimit = 240

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	serverURL := flag.String("server", cfg.Sync.ServerURL, "Applet server base URL")
	appletFlag := flag.String("applet", "", "Applet id to host")
	interval := flag.Duration("interval", cfg.Sync.Interval, "Change detection interval")
	clearData := flag.Bool("clear", false, "Clear the applet's stored data and exit")
	replace := flag.String("replace", "", "Audio file describing a change to apply after the first load")
	metricsAddr := flag.String("metrics", "", "Serve sync metrics on this address")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	if *appletFlag == "" {
		log.Fatal("-applet is required")
	}
	applet := types.AppletID(*appletFlag)

	logCfg := logging.DefaultConfig()
	if *dev {
		logCfg = logging.DevelopmentConfig()
	} else {
		logCfg.Level = cfg.Logging.Level
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ccfg := client.DefaultConfig()
	ccfg.BaseURL = *serverURL
	ccfg.Timeout = cfg.Sync.Timeout
	ccfg.UploadTimeout = cfg.Sync.UploadTimeout
	api := client.NewClient(ccfg)
	actions := lifecycle.New(api, logger.Component("lifecycle"))

	if *clearData {
		actions.ClearData(ctx, applet)
		return
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewSyncMetrics(registry)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, registry, logger.Component("metrics"))
	}

	frame := sandbox.New(sandbox.DefaultConfig(), logger.Component("sandbox"))
	defer frame.Close()

	preview := logger.Component("host")
	orch := orchestrator.New(applet, api, frame, orchestrator.Options{
		Interval: *interval,
		Logger:   logger.Applet("sync", applet.String()),
		Metrics:  metrics,
		OnLoad: func(id types.AppletID) {
			text, err := frame.Text()
			if err != nil {
				preview.Warn("Failed to render preview", zap.Error(err))
				return
			}
			preview.Info("Applet loaded",
				zap.String("applet", id.String()),
				zap.String("preview", truncate(text, previewLimit)),
			)
		},
	})

	if err := orch.Start(ctx); err != nil {
		logger.Fatal("Failed to start sync", zap.Error(err))
	}
	defer orch.Stop()

	if *replace != "" {
		next, err := replaceFrom(ctx, actions, applet, *replace)
		if err != nil {
			logger.Error("Failed to replace applet", zap.Error(err))
		} else if err := orch.SetApplet(ctx, next); err != nil {
			logger.Warn("Reload after replace failed", zap.Error(err))
		}
	}

	<-ctx.Done()
	logger.Info("Shutting down", zap.Any("stats", orch.Stats()))
}

// replaceFrom uploads an audio file as a change request for applet
func replaceFrom(ctx context.Context, actions *lifecycle.Actions, applet types.AppletID, path string) (types.AppletID, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType := "audio/webm"
	// webm sniffs as video/webm, which the server only accepts undeclared
	if m, err := mimetype.DetectFile(path); err == nil && strings.HasPrefix(m.String(), "audio/") {
		contentType = m.String()
	}
	return actions.Replace(ctx, applet, client.Audio{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Reader:      f,
	})
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("Serving sync metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server stopped", zap.Error(err))
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
