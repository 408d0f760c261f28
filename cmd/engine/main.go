package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/firose-git/autovolt/internal/adapter/actor"
	"github.com/firose-git/autovolt/internal/adapter/ledger"
	"github.com/firose-git/autovolt/internal/config"
	coreactor "github.com/firose-git/autovolt/internal/core/actor"
	"github.com/firose-git/autovolt/internal/core/port"
	"github.com/firose-git/autovolt/internal/core/service"
	"github.com/firose-git/autovolt/internal/server"
	"github.com/firose-git/autovolt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	ledgerStore := ledger.NewMemoryLedgerStore()
	journal := ledger.NewMemoryJournal()

	var archive port.SettlementArchive
	var influxArchive *ledger.InfluxSettlementArchive
	if cfg.Influx.Enable {
		influxArchive = ledger.NewInfluxSettlementArchive(cfg.Influx, logger)
		archive = influxArchive
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return coreactor.NewMasterActor(*cfg,
			mqttActorProvider(cfg, logger),
			accountingActorProvider(cfg, ledgerStore, journal, archive, logger),
			logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
	if influxArchive != nil {
		influxArchive.Close()
	}
}

func initConfig() (*config.Config, error) {

	// alias PORT => AUTOVOLT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("AUTOVOLT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("autovolt")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check bounds
	if cfg.Energy.RatePerKwh < 0 {
		return nil, errors.New("config param energy.rate_per_kwh should be >= 0")
	}
	if cfg.Energy.DefaultWatts <= 0 {
		return nil, errors.New("config param energy.default_watts should be > 0")
	}
	if cfg.Liveness.TimeoutSeconds < 5 {
		return nil, errors.New("config param liveness.timeout_seconds should be >= 5")
	}
	if cfg.Liveness.SweepIntervalSeconds < 1 {
		return nil, errors.New("config param liveness.sweep_interval_seconds should be >= 1")
	}
	if len(cfg.Devices) == 0 {
		return nil, errors.New("at least one device must be configured")
	}
	seen := make(map[string]bool, len(cfg.Devices))
	for _, dev := range cfg.Devices {
		if dev.Id == "" {
			return nil, errors.New("device id cannot be empty")
		}
		if seen[dev.Id] {
			return nil, fmt.Errorf("duplicate device id %q", dev.Id)
		}
		seen[dev.Id] = true
	}
	for _, sched := range cfg.Schedules {
		if sched.Action != "on" && sched.Action != "off" {
			return nil, fmt.Errorf("schedule action must be on or off, got %q", sched.Action)
		}
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) coreactor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func accountingActorProvider(cfg *config.Config, ledgerStore port.LedgerStore, journal port.EventJournal,
	archive port.SettlementArchive, logger *zap.Logger) coreactor.AccountingActorProvider {
	calc := service.SettlementCalc{
		RatePerKwh:   cfg.Energy.RatePerKwh,
		Wattage:      cfg.Energy.WattageTable(),
		DefaultWatts: cfg.Energy.DefaultWatts,
	}
	return func(es *eventstream.EventStream) *coreactor.AccountingActor {
		return coreactor.NewAccountingActor(calc, ledgerStore, journal, archive, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.base_topic", "autovolt")
	viper.SetDefault("energy.rate_per_kwh", 8)
	viper.SetDefault("energy.default_watts", 40)
	viper.SetDefault("liveness.timeout_seconds", 90)
	viper.SetDefault("liveness.sweep_interval_seconds", 30)
	viper.SetDefault("motion.debounce_millis", 100)
	viper.SetDefault("motion.auto_off_delay_seconds", 30)
	viper.SetDefault("motion.weight_threshold", 0.7)
	viper.SetDefault("influx.enable", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Influx.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
