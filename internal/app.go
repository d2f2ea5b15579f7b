// internal/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	router "mentor-points/internal/api"
	"mentor-points/internal/api/handler"
	"mentor-points/internal/config"
	"mentor-points/internal/events"
	"mentor-points/internal/lock"
	"mentor-points/internal/repository"
	"mentor-points/internal/repository/sqlstore"
	"mentor-points/internal/service"
	"mentor-points/internal/util"
	"mentor-points/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	ConfigPath string
	Config     *config.AppConfig
	Logger     *slog.Logger
	DB         *sqlx.DB
	Dialect    sqlstore.Dialect

	// Optional infrastructure
	Redis     *redis.Client
	Publisher events.Publisher

	// Repositories
	AccountRepository     repository.AccountRepository
	TransactionRepository repository.TransactionRepository

	// Services
	LedgerService service.LedgerService
	Sweeper       *service.ExpirationSweeper

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance. configPath may be empty,
// in which case only defaults and the environment are used.
func NewApplication(configPath string) *Application {
	return &Application{ConfigPath: configPath, Logger: util.GetLogger()}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig(app.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger(cfg.LogLevel)
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.", "db_driver", cfg.DB.Driver, "lock_backend", cfg.Ledger.LockBackend)

	// 3. Connect to Database
	database, err := db.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Dialect, err = sqlstore.DialectFor(cfg.DB.Driver)
	if err != nil {
		return err
	}
	app.Logger.Info("Database connection established.")

	if cfg.DB.AutoMigrate {
		if err := app.Migrate(ctx); err != nil {
			return err
		}
	}

	// 4. Initialize Repositories
	app.AccountRepository = sqlstore.NewAccountRepository(app.Dialect)
	app.TransactionRepository = sqlstore.NewTransactionRepository(app.Dialect)
	app.Logger.Info("Repositories initialized.")

	// 5. Initialize locking and events
	locker, err := app.newLocker(ctx)
	if err != nil {
		return err
	}
	if err := app.initPublisher(); err != nil {
		return err
	}

	// 6. Initialize Services
	// Pass the concrete db.BeginTx, db.CommitTx, db.RollbackTx functions from pkg/db
	app.LedgerService = service.NewLedgerService(
		app.DB, // This is the DBTxBeginner
		app.DB, // This is the DBExecutor
		app.AccountRepository,
		app.TransactionRepository,
		locker,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		service.WithPolicy(service.Policy{AllowNegativeBalance: cfg.Ledger.AllowNegativeBalance}),
		service.WithPublisher(app.Publisher),
		service.WithLogger(app.Logger),
	)
	app.Sweeper = service.NewExpirationSweeper(
		app.LedgerService,
		app.DB,
		app.TransactionRepository,
		cfg.Sweep.BatchSize,
		app.Logger,
	)
	app.Logger.Info("Services initialized.")

	// 7. Initialize HTTP Handlers and Router
	ledgerHandler := handler.NewLedgerHandler(app.LedgerService, app.Sweeper, app.Logger)
	app.HTTPHandler = router.NewRouter(ledgerHandler, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// Migrate applies the schema for the configured driver.
func (app *Application) Migrate(ctx context.Context) error {
	if err := app.Dialect.Migrate(ctx, app.DB); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	app.Logger.Info("Database schema is up to date.", "dialect", app.Dialect.Name)
	return nil
}

func (app *Application) newLocker(ctx context.Context) (lock.Locker, error) {
	cfg := app.Config
	if cfg.Ledger.LockBackend != config.LockBackendRedis {
		app.Logger.Info("Using in-process account locks.")
		return lock.NewKeyedLocker(cfg.Ledger.LockTimeout), nil
	}

	client, err := lock.ConnectRedis(ctx, lock.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.Redis = client
	app.Logger.Info("Using redis account locks.", "addr", cfg.Redis.Addr)
	return lock.NewRedisLocker(client, cfg.Ledger.LockTimeout, 0, app.Logger), nil
}

func (app *Application) initPublisher() error {
	if app.Config.AMQP.URL == "" {
		app.Publisher = events.NoopPublisher{}
		return nil
	}

	publisher, err := events.NewAMQPPublisher(events.AMQPConfig{
		URL:      app.Config.AMQP.URL,
		Exchange: app.Config.AMQP.Exchange,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to event broker: %w", err)
	}
	app.Publisher = publisher
	app.Logger.Info("Publishing ledger events.", "exchange", app.Config.AMQP.Exchange)
	return nil
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	var errs []error

	if app.Publisher != nil {
		if err := app.Publisher.Close(); err != nil {
			app.Logger.Error("Failed to close event publisher", "error", err)
			errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
		}
	}
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			app.Logger.Error("Failed to close redis client", "error", err)
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			errs = append(errs, fmt.Errorf("failed to close database connection: %w", err))
		} else {
			app.Logger.Info("Database connection closed.")
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
