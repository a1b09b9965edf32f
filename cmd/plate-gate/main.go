package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"plate-gate/internal/actuator"
	"plate-gate/internal/clock"
	"plate-gate/internal/config"
	"plate-gate/internal/db"
	"plate-gate/internal/domain/anpr"
	httpapi "plate-gate/internal/http"
	"plate-gate/internal/logger"
	"plate-gate/internal/notify"
	"plate-gate/internal/pipeline"
	"plate-gate/internal/repository"
	"plate-gate/internal/rules"
	"plate-gate/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "plate-gate:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	_ = godotenv.Load()

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		configPath = ""
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	bootLog := logger.New(logger.Options{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	telegram := notify.NewTelegram(cfg.TelegramConfig(), bootLog)

	var forward io.Writer
	if cfg.Logging.ForwardToTelegram && cfg.Notify.Telegram.Enabled {
		lw := notify.NewLogWriter(telegram, "[plate-gate]")
		defer lw.Close()
		forward = lw
	}
	log := logger.New(logger.Options{
		Level:   cfg.Logging.Level,
		Pretty:  cfg.Logging.Pretty,
		File:    cfg.Logging.File,
		Forward: forward,
	})
	if configPath == "" {
		log.Warn().Msg("no config file found, running on defaults and environment")
	}

	var (
		repo     service.Repository
		recorder pipeline.Recorder
	)
	if cfg.Database.DSN != "" {
		conn, err := db.Open(cfg.Database.DSN, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(conn); err != nil {
				log.Error().Err(err).Msg("failed to close database")
			}
		}()
		gateRepo := repository.NewGateRepository(conn)
		repo, recorder = gateRepo, gateRepo
	} else {
		log.Info().Msg("database disabled, decisions are not persisted")
	}

	gate := actuator.NewGate(cfg.Actions.Gate.Mode, cfg.Actions.Gate.HTTPConfig(), log)
	alarm := actuator.NewAlarm(cfg.Actions.Alarm.Mode, cfg.Actions.Alarm.HTTPConfig(), log)

	pcfg := cfg.PipelineConfig()
	store := rules.NewStore(nil)
	clk := clock.Real{}
	p := pipeline.New(pcfg, store, pipeline.NewState(pcfg), clk, log.With().Str("component", "pipeline").Logger())
	dispatcher := pipeline.NewDispatcher(gate, alarm, telegram, recorder, log.With().Str("component", "dispatch").Logger())
	runner := pipeline.NewRunner(p, dispatcher, cfg.Pipeline.QueueSize, log)

	gateService := service.NewGateService(runner, store, repo, gate, clk, service.Options{
		CameraID:  cfg.Camera.ID,
		RuleFiles: cfg.RuleFiles(),
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := gateService.ReloadRules(ctx); err != nil {
		return err
	}

	runnerDone := make(chan error, 1)
	go func() { runnerDone <- runner.Run(ctx) }()

	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("auth.jwt_secret is empty, admin routes are disabled")
	}
	gin.SetMode(gin.ReleaseMode)
	handler := httpapi.NewHandler(gateService, log)
	router := httpapi.NewRouter(handler, cfg.HTTP.CORSOrigins, httpapi.AuthMiddleware(cfg.Auth.JWTSecret, log))
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("camera_id", cfg.Camera.ID).Msg("plate-gate listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	notice(telegram, "plate-gate started on "+cfg.HTTP.Addr)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := <-runnerDone; err != nil {
		log.Error().Err(err).Msg("pipeline stopped with error")
	}

	notice(telegram, "plate-gate stopped")
	log.Info().Msg("plate-gate stopped")
	return nil
}

func notice(n notify.Notifier, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = n.SendText(ctx, notify.Message{Text: text, Route: anpr.RouteDebug})
}
