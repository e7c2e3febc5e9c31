package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/sorrel/config"
	"github.com/Ramsey-B/sorrel/internal/repositories/alias"
	"github.com/Ramsey-B/sorrel/internal/repositories/identifier"
	"github.com/Ramsey-B/sorrel/internal/repositories/manuallink"
	"github.com/Ramsey-B/sorrel/internal/repositories/matchcandidate"
	"github.com/Ramsey-B/sorrel/internal/repositories/mergelog"
	"github.com/Ramsey-B/sorrel/internal/repositories/person"
	"github.com/Ramsey-B/sorrel/internal/repositories/relationship"
	"github.com/Ramsey-B/sorrel/internal/repositories/syncstate"
	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/events"
	"github.com/Ramsey-B/sorrel/pkg/graph"
	"github.com/Ramsey-B/sorrel/pkg/identity"
	"github.com/Ramsey-B/sorrel/pkg/kafka"
	"github.com/Ramsey-B/sorrel/pkg/logging"
	"github.com/Ramsey-B/sorrel/pkg/matching"
	"github.com/Ramsey-B/sorrel/pkg/merging"
	"github.com/Ramsey-B/sorrel/pkg/middleware"
	"github.com/Ramsey-B/sorrel/pkg/processor"
	"github.com/Ramsey-B/sorrel/pkg/redis"
	healthroutes "github.com/Ramsey-B/sorrel/pkg/routes/health"
	manuallinkroutes "github.com/Ramsey-B/sorrel/pkg/routes/manuallink"
	matchcandidateroutes "github.com/Ramsey-B/sorrel/pkg/routes/matchcandidate"
	mergeroutes "github.com/Ramsey-B/sorrel/pkg/routes/merge"
	personroutes "github.com/Ramsey-B/sorrel/pkg/routes/person"
	syncstateroutes "github.com/Ramsey-B/sorrel/pkg/routes/syncstate"
	"github.com/Ramsey-B/sorrel/pkg/startup"
	"github.com/Ramsey-B/sorrel/pkg/sweeper"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

const version = "0.3.0"

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// consumerDependency adapts the Kafka consumer to the startup contract
type consumerDependency struct {
	consumer *kafka.Consumer
}

func (d *consumerDependency) GetName() string     { return "kafka-consumer" }
func (d *consumerDependency) DependsOn() []string { return []string{"database"} }
func (d *consumerDependency) Start(ctx context.Context) error {
	return d.consumer.Start(ctx)
}
func (d *consumerDependency) Stop(ctx context.Context) error {
	return d.consumer.Stop()
}

// databaseDependency reports database readiness to the startup sequencer
type databaseDependency struct {
	db *sqlx.DB
}

func (d *databaseDependency) GetName() string     { return "database" }
func (d *databaseDependency) DependsOn() []string { return nil }
func (d *databaseDependency) Start(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
func (d *databaseDependency) Stop(ctx context.Context) error { return nil }

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, flushLogs, err := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.PrettyLogs})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer flushLogs()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		flushLogs()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger ectologger.Logger) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracing.SetTracer(otel.Tracer(cfg.AppName))

	// Postgres
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlxDB.Close()

	db := database.NewDatabaseInstance(sqlxDB, logger)
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	// Migrations
	migrateDriver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
	})
	if err := migrationService.Migrate(cfg.DatabaseName, migrateDriver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Redis (optional)
	var redisClient *redis.Client
	var locker *redis.Locker
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		locker = redis.NewLocker(redisClient, "sorrel:")
	}

	// Graph database (optional)
	var graphSvc *graph.PersonService
	if cfg.GraphDBEnabled {
		graphClient, err := graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to graph database: %w", err)
		}
		defer graphClient.Close(context.Background())
		graphSvc = graph.NewPersonService(graphClient, logger)
	}

	// Kafka producer and event emitter
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	defer producer.Close()
	emitter := events.NewEmitter(producer, logger)

	// Repositories
	personRepo := person.NewRepository(db, logger)
	identifierRepo := identifier.NewRepository(db, logger)
	aliasRepo := alias.NewRepository(db, logger)
	relationshipRepo := relationship.NewRepository(db, logger)
	candidateRepo := matchcandidate.NewRepository(db, logger)
	mergeLogRepo := mergelog.NewRepository(db, logger)
	manualLinkRepo := manuallink.NewRepository(db, logger)
	syncStateRepo := syncstate.NewRepository(db, logger)

	// Services
	identitySvc := identity.NewService(logger, personRepo, identifierRepo, aliasRepo, manualLinkRepo, emitter)
	mergeEngine := merging.NewEngine(logger, db, personRepo, identifierRepo, aliasRepo, relationshipRepo, mergeLogRepo, emitter, graphSvc)

	matchConfig := matching.DefaultConfig()
	matchConfig.Thresholds.Upper = cfg.MatchUpperThreshold
	matchConfig.Thresholds.Lower = cfg.MatchLowerThreshold
	matchConfig.SharedIdentifierThreshold = cfg.SharedIdentifierThreshold
	matchingSvc := matching.NewService(logger, matchConfig, personRepo, identifierRepo, candidateRepo, mergeEngine)

	sweepConfig := sweeper.DefaultConfig()
	sweepConfig.Interval = cfg.SweepInterval
	sweepConfig.CandidateLimit = cfg.CandidateBatchSize
	sweepConfig.MergeLimit = cfg.AutoMergeBatchSize
	sweep := sweeper.NewSweeper(logger, sweepConfig, matchingSvc, personRepo, locker)

	ingestProcessor := processor.NewIngestProcessor(logger, identitySvc, personRepo, syncStateRepo, graphSvc)
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaInputTopic,
		ConsumerGroup: cfg.KafkaConsumerGroup,
	}, logger, ingestProcessor.HandleRecord)

	// Dependency injection for route handlers
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}
	if err := registerDependencies(container, logger, db, personRepo, identifierRepo, aliasRepo, relationshipRepo, candidateRepo, mergeLogRepo, manualLinkRepo, syncStateRepo, identitySvc, matchingSvc, mergeEngine, sweep, graphSvc); err != nil {
		return fmt.Errorf("failed to register dependencies: %w", err)
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	api := e.Group("/api/v1")
	personroutes.Register(api.Group("/persons"))
	matchcandidateroutes.Register(api.Group("/match-candidates"))
	mergeroutes.Register(api.Group("/merges"))
	manuallinkroutes.Register(api.Group("/manual-links"))
	syncstateroutes.Register(api.Group("/sync-state"))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var redisPinger healthroutes.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	checker := healthroutes.NewChecker(sqlxDB, redisPinger, version)
	checker.RegisterRoutes(e)

	// Background dependencies
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&databaseDependency{db: sqlxDB})
	if cfg.KafkaConsumerEnabled {
		boot.AddDependency(&consumerDependency{consumer: consumer})
	}
	if cfg.SweepEnabled {
		boot.AddDependency(sweep)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStart()
	if err := boot.Start(startCtx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	checker.SetReady(true)

	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		logger.Infof("Received signal %s, shutting down", sig)
	}

	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down HTTP server cleanly")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop background dependencies cleanly")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down tracer provider cleanly")
	}

	logger.Info("Shutdown complete")
	return nil
}

func registerDependencies(
	container ectocontainer.DIContainer,
	logger ectologger.Logger,
	db database.DB,
	personRepo *person.Repository,
	identifierRepo *identifier.Repository,
	aliasRepo *alias.Repository,
	relationshipRepo *relationship.Repository,
	candidateRepo *matchcandidate.Repository,
	mergeLogRepo *mergelog.Repository,
	manualLinkRepo *manuallink.Repository,
	syncStateRepo *syncstate.Repository,
	identitySvc *identity.Service,
	matchingSvc *matching.Service,
	mergeEngine *merging.Engine,
	sweep *sweeper.Sweeper,
	graphSvc *graph.PersonService,
) error {
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*person.Repository](container, personRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*identifier.Repository](container, identifierRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*alias.Repository](container, aliasRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*relationship.Repository](container, relationshipRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*matchcandidate.Repository](container, candidateRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*mergelog.Repository](container, mergeLogRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*manuallink.Repository](container, manualLinkRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*syncstate.Repository](container, syncStateRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*identity.Service](container, identitySvc); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*matching.Service](container, matchingSvc); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*merging.Engine](container, mergeEngine); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*sweeper.Sweeper](container, sweep); err != nil {
		return err
	}
	if graphSvc != nil {
		if err := ectoinject.RegisterInstance[*graph.PersonService](container, graphSvc); err != nil {
			return err
		}
	}
	return nil
}
