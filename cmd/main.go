package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/miu200521358/vr-auto-trace/pkg/config"
	"github.com/miu200521358/vr-auto-trace/pkg/model"
	"github.com/miu200521358/vr-auto-trace/pkg/osc"
	"github.com/miu200521358/vr-auto-trace/pkg/session"
	"github.com/miu200521358/vr-auto-trace/pkg/usecase"
)

var logLevel string
var configPath string
var calibPath string
var replayDir string
var offline bool

func init() {
	flag.StringVar(&logLevel, "logLevel", "INFO", "set log level")
	flag.StringVar(&configPath, "config", "", "set config yaml path")
	flag.StringVar(&calibPath, "calib", "", "set calibration json path")
	flag.StringVar(&replayDir, "replayDir", "", "set recorded keypoints directory (default: read estimator stream from stdin)")
	flag.BoolVar(&offline, "offline", false, "replay without pacing")
	flag.Parse()

	switch logLevel {
	case "INFO":
		slog.SetLogLoggerLevel(slog.LevelInfo)
	default:
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
}

func main() {
	cfg := config.New()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
	}

	calib := model.IdentityCalibration()
	if calibPath != "" {
		var err error
		calib, err = model.LoadCalibration(calibPath)
		if err != nil {
			slog.Error("Failed to load calibration", "error", err)
			os.Exit(1)
		}
	}

	var source session.Source
	if replayDir != "" {
		replay, err := usecase.NewReplaySource(replayDir, !offline)
		if err != nil {
			slog.Error("Failed to load replay frames", "error", err)
			os.Exit(1)
		}
		source = replay
	} else {
		source = usecase.NewStreamSource(os.Stdin)
	}

	sender := osc.NewSender(cfg.Output.Host, cfg.Output.Port)

	sess, err := session.New(cfg, calib, model.NewSkeletonModel(), source, sender)
	if err != nil {
		slog.Error("Failed to build session", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Send trackers", "host", cfg.Output.Host, "port", cfg.Output.Port, "rate", cfg.Output.RateHz)

	if err := sess.Run(ctx); err != nil {
		slog.Error("Session failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Done!")
}
