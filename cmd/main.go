package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sb "spectrum_bridge"
	_ "spectrum_bridge/docs"
	"spectrum_bridge/internal/dsp"
	"spectrum_bridge/internal/handlers"
	"spectrum_bridge/internal/logger"
	"spectrum_bridge/internal/repository"
	"spectrum_bridge/internal/repository/db"
	"spectrum_bridge/internal/server"
	"spectrum_bridge/internal/service"
	"spectrum_bridge/internal/session"
	"spectrum_bridge/internal/transport"

	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

// @title           Spectrum Bridge API
// @version         1.0
// @description     Control and monitoring API for an RF spectrum analyzer bridge.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	log := logger.Get(viperLevel())

	if err := initConfig(); err != nil {
		log.Fatalw("config_load_failed", "err", err)
	}

	database, err := db.InitDB(viper.GetString("db.path"))
	if err != nil {
		log.Fatalw("db_init_failed", "err", err)
	}
	defer database.Close()

	repos := repository.NewRepository(database)

	sess := buildSession(repos, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Open(ctx); err != nil {
		// The bridge still serves the API and event log while disconnected;
		// a later /sweep/start can retry the device.
		log.Warnw("device_connect_failed", "err", err)
	} else if viper.GetBool("device.socket.delta_encoding") {
		// Ask the upstream bridge for sparse updates on constrained links.
		if err := sess.EnableDeltaEncoding(true, viper.GetFloat64("delta.threshold_db")); err != nil {
			log.Warnw("delta_encoding_request_failed", "err", err)
		}
	}

	services := service.NewService(service.Deps{
		Repos:      repos,
		Session:    sess,
		Log:        log,
		SigningKey: viper.GetString("auth.signing_key"),
	})
	go services.Pipeline.Run(ctx)

	h := handlers.NewHandler(services, log)

	srv := new(server.Server)
	go func() {
		if err := srv.Run(viper.GetString("port"), h.InitRoutes()); err != nil {
			log.Errorw("http_server_stopped", "err", err)
		}
	}()
	log.Infow("bridge_started", "port", viper.GetString("port"))

	waitForShutdown()
	log.Infow("shutting_down")

	cancel()
	sess.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("http_shutdown_failed", "err", err)
	}
}

// buildSession assembles the analyzer session from configuration: a local
// serial device or a remote websocket bridge.
func buildSession(repos *repository.Repository, log *logger.Logger) *session.Session {
	cfg := sb.DefaultSweepConfig()
	if saved, err := repos.ConfigRepo.Load(context.Background()); err == nil && saved.StepCount > 0 {
		cfg = saved
	}

	thresholds := dsp.Thresholds{
		CriticalDBm: viper.GetFloat64("thresholds.critical_dbm"),
		WarningDBm:  viper.GetFloat64("thresholds.warning_dbm"),
	}
	if thresholds.CriticalDBm == 0 {
		thresholds.CriticalDBm = dsp.DefaultCriticalDBm
	}
	if thresholds.WarningDBm == 0 {
		thresholds.WarningDBm = dsp.DefaultWarningDBm
	}

	factory := func(cb transport.Callbacks) transport.Transport {
		if viper.GetString("device.transport") == "socket" {
			return transport.NewSocket(viper.GetString("device.socket.url"), cb)
		}
		return transport.NewSerial(viper.GetString("device.serial.device"), cb)
	}

	return session.New(factory, session.Options{
		Config:     cfg,
		Thresholds: thresholds,
		Log:        log,
	})
}

func initConfig() error {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// viperLevel peeks at the log level before the main config load so startup
// errors are logged at the configured level.
func viperLevel() string {
	v := viper.New()
	v.AddConfigPath("configs")
	v.SetConfigName("config")
	if err := v.ReadInConfig(); err != nil {
		return logger.InfoLevel
	}
	if lvl := v.GetString("log.level"); lvl != "" {
		return lvl
	}
	return logger.InfoLevel
}

func waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
