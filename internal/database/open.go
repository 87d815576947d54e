package database

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/availability"
	"github.com/MarcoPoloResearchLab/tortilla/internal/batches"
	"github.com/MarcoPoloResearchLab/tortilla/internal/config"
	"github.com/MarcoPoloResearchLab/tortilla/internal/ratings"
	sqlite "github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Options selects and locates the relational store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured store and brings its schema up to date.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := dialectorFor(options)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", options.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if options.Driver == config.DatabaseDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(16)
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", options.Driver))
	return db, nil
}

func dialectorFor(options Options) (gorm.Dialector, error) {
	switch options.Driver {
	case config.DatabaseDriverSQLite, "":
		if options.Path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		return sqlite.Open(options.Path), nil
	case config.DatabaseDriverMySQL:
		if options.DSN == "" {
			return nil, fmt.Errorf("database dsn is required for mysql")
		}
		return mysql.Open(options.DSN), nil
	case config.DatabaseDriverPostgres:
		if options.DSN == "" {
			return nil, fmt.Errorf("database dsn is required for postgres")
		}
		return postgres.New(postgres.Config{DriverName: "postgres", DSN: options.DSN}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}
}

// Models lists every table the service owns.
func Models() []any {
	models := append([]any{}, availability.Models()...)
	models = append(models, ratings.Models()...)
	models = append(models, batches.Models()...)
	return append(models, &migrationRecord{})
}

// Migrate creates or updates tables and applies the named data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return applyMigrations(db, logger)
}
