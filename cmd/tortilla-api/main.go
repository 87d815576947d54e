package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/availability"
	"github.com/MarcoPoloResearchLab/tortilla/internal/batches"
	"github.com/MarcoPoloResearchLab/tortilla/internal/calendar"
	"github.com/MarcoPoloResearchLab/tortilla/internal/config"
	"github.com/MarcoPoloResearchLab/tortilla/internal/database"
	"github.com/MarcoPoloResearchLab/tortilla/internal/logging"
	"github.com/MarcoPoloResearchLab/tortilla/internal/metrics"
	"github.com/MarcoPoloResearchLab/tortilla/internal/ratings"
	"github.com/MarcoPoloResearchLab/tortilla/internal/server"
	"github.com/MarcoPoloResearchLab/tortilla/internal/stats"
	"github.com/MarcoPoloResearchLab/tortilla/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tortilla-api",
		Short: "Tortilla availability and rating service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, mysql, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "MySQL or Postgres DSN")
	cmd.PersistentFlags().String("timezone", defaults.GetString("app.timezone"), "IANA time zone that defines the rating day")
	cmd.PersistentFlags().String("storage-driver", defaults.GetString("storage.driver"), "Photo storage driver (local, oss, none)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "app.timezone", "timezone")
	bindFlag(cmd, "storage.driver", "storage-driver")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	location, err := calendar.LoadLocation(appConfig.Timezone)
	if err != nil {
		return err
	}

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	images, err := storage.New(appConfig.Storage)
	if err != nil {
		return err
	}

	ratingsService, err := ratings.NewService(ratings.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		Location:     location,
		Availability: availability.NewStore(db),
		Images:       images,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	batchesService, err := batches.NewService(batches.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	availabilityService, err := availability.NewService(availability.ServiceConfig{
		Database:    db,
		Clock:       time.Now,
		Logger:      logger,
		DayResetter: availability.DayResetters{ratingsService, batchesService},
	})
	if err != nil {
		return err
	}

	statsService, err := stats.NewService(stats.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Location: location,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	if state, err := availabilityService.State(ctx); err == nil {
		recorder.SetAvailable(state.IsAvailable)
	}

	deps := server.Dependencies{
		Availability:   availabilityService,
		Ratings:        ratingsService,
		Batches:        batchesService,
		Stats:          statsService,
		Metrics:        recorder,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
	}
	if appConfig.Storage.Driver == config.StorageDriverLocal {
		deps.UploadDir = appConfig.Storage.LocalDir
		deps.UploadPath = appConfig.Storage.PublicBaseURL
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("storage_driver", appConfig.Storage.Driver),
			zap.String("timezone", location.String()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
