package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reefcontrol/internal/actuator"
	"reefcontrol/internal/controller"
	"reefcontrol/internal/feeder"
	"reefcontrol/internal/handlers"
	"reefcontrol/internal/logger"
	"reefcontrol/internal/repository"
	"reefcontrol/internal/repository/db"
	"reefcontrol/internal/serialio"
	"reefcontrol/internal/server"
	"reefcontrol/internal/service"

	"github.com/spf13/viper"
)

func main() {
	// load config.yml first so the log level is configurable
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(viper.GetString("log.level"))

	// open DB (event log)
	eventDB, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := eventDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(eventDB, settingsDir())

	transport := serialio.NewClient(log, viper.GetInt("serial.baud"))

	relays := actuator.Detect(log, actuator.DefaultPins)

	ctrl := controller.New(controller.Config{
		Log:        log,
		Transport:  transport,
		Relays:     relays,
		Events:     repos.Events,
		Settings:   repos.Settings,
		Feeder:     feeder.NewWebhookTrigger(viper.GetString("feeder.webhook_url")),
		StepsPerML: viper.GetInt("dosing.steps_per_ml"),
	})
	transport.Handle(ctrl.HandleLine, ctrl.HandleDisconnect)

	services := service.NewService(repos, ctrl, signingKey(log))
	apiHandler := handlers.NewHandler(services, log)

	// context for background loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// first connect attempt is best-effort; the reconnect loop retries
	if port := viper.GetString("serial.port"); port != "" {
		if err := ctrl.Connect(port); err != nil {
			log.Infow("initial connect failed, supervisor will retry", "port", port, "err", err)
		}
	}

	ctrl.Run(ctx)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, ctrl, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite event store using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "reefcontrol.db")
		dbPath = "reefcontrol.db"
	}
	return db.InitDB(dbPath)
}

// settingsDir resolves where the JSON settings documents live.
func settingsDir() string {
	dir := viper.GetString("settings.dir")
	if dir == "" {
		dir = "settings"
	}
	return dir
}

// signingKey reads the JWT signing key, refusing to run without one.
func signingKey(log *logger.Logger) string {
	key := viper.GetString("auth.signing_key")
	if key == "" {
		key = os.Getenv("REEF_SIGNING_KEY")
	}
	if key == "" {
		log.Fatalw("auth.signing_key not set in config and REEF_SIGNING_KEY empty")
	}
	return key
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, ctrl *controller.Controller, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop background loops, cancel pending timers, close the port
	cancel()
	ctrl.Shutdown()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
