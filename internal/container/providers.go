// Package container provides dependency injection and lifecycle management
// for the approval workflow system following Clean Architecture principles.
package container

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/opsdeck/approvalflow/internal/application/port"
	"github.com/opsdeck/approvalflow/internal/application/service"
	"github.com/opsdeck/approvalflow/internal/config"
	"github.com/opsdeck/approvalflow/internal/infrastructure/external/whatsapp"
	"github.com/opsdeck/approvalflow/internal/infrastructure/persistence/repository"
	"github.com/opsdeck/approvalflow/internal/infrastructure/persistence/sqlite"
	"github.com/opsdeck/approvalflow/internal/infrastructure/worker"
	"github.com/opsdeck/approvalflow/internal/webhook"
	"github.com/opsdeck/approvalflow/pkg/database"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase creates database connection and transaction manager.
// Returns DatabaseBundle containing sql.DB and TransactionManager.
// Also runs any pending database migrations automatically.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Open SQLite database with WAL mode and busy timeout
	sqlDB, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run database migrations if migrations directory is configured
	if cfg.MigrationsDir != "" {
		dbWrapper := &database.DB{DB: sqlDB}
		migrator := database.NewMigrator(dbWrapper, logger)

		if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Create transaction manager wrapper
	db := sqlite.NewDB(sqlDB, logger)

	return &DatabaseBundle{
		SqlDB:          sqlDB,
		TransactionMgr: db,
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
// Returns RepositoryBundle containing all repository implementations.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Step:       repository.NewStepRepository(sqlDB, logger),
		Token:      repository.NewTokenRepository(sqlDB, logger),
		Member:     repository.NewMemberRepository(sqlDB, logger),
		Tenant:     repository.NewTenantRepository(sqlDB, logger),
		MessageLog: repository.NewMessageLogRepository(sqlDB, logger),
		Request:    repository.NewRequestRepository(sqlDB, logger),
	}, nil
}

// ProvideChannelClient creates the WhatsApp Cloud API client.
func ProvideChannelClient(cfg *config.WhatsAppConfig, logger *zap.Logger) (*whatsapp.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("whatsapp config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	client := whatsapp.NewClient(whatsapp.Config{
		AccessToken:   cfg.AccessToken,
		PhoneNumberID: cfg.PhoneNumberID,
		Timeout:       cfg.APITimeout,
	}, logger)

	return client, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos     *RepositoryBundle
	TxManager port.TransactionManager
	Channel   port.ChannelClient
	TokenCfg  *config.TokenConfig
	Logger    *zap.Logger
}

// ProvideServices creates all application services.
// Returns ServiceBundle containing all service implementations.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.TokenCfg == nil {
		return nil, fmt.Errorf("token config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create logger adapter for services
	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	approver := service.NewApproverResolver(deps.Repos.Member, serviceLogger)
	tokens := service.NewTokenService(deps.Repos.Token, deps.TokenCfg.SigningKey, serviceLogger)
	kinds := service.NewKindRegistry(deps.Repos.Request)

	notification := service.NewNotificationService(
		deps.Repos.Tenant,
		deps.Repos.MessageLog,
		deps.Channel,
		approver,
		tokens,
		kinds,
		deps.Repos.Request,
		serviceLogger,
	)

	chain := service.NewChainService(
		deps.Repos.Step,
		deps.TxManager,
		notification,
		tokens,
		approver,
		serviceLogger,
	)

	submission := service.NewSubmissionService(
		deps.Repos.Tenant,
		deps.Repos.Request,
		chain,
		serviceLogger,
	)

	return &ServiceBundle{
		Submission:   submission,
		Chain:        chain,
		Token:        tokens,
		Approver:     approver,
		Notification: notification,
	}, nil
}

// WebhookDeps holds dependencies required for creating the webhook plumbing.
type WebhookDeps struct {
	WhatsAppCfg *config.WhatsAppConfig
	Services    *ServiceBundle
	Repos       *RepositoryBundle
	Channel     port.ChannelClient
	Logger      *zap.Logger
}

// ProvideWebhook creates the webhook signature verifier and inbound handler.
func ProvideWebhook(deps *WebhookDeps) (*webhook.Verifier, *webhook.Handler, error) {
	if deps == nil {
		return nil, nil, fmt.Errorf("webhook dependencies are required")
	}
	if deps.WhatsAppCfg == nil {
		return nil, nil, fmt.Errorf("whatsapp config is required")
	}
	if deps.Services == nil {
		return nil, nil, fmt.Errorf("services are required")
	}
	if deps.Repos == nil {
		return nil, nil, fmt.Errorf("repositories are required")
	}
	if deps.Logger == nil {
		return nil, nil, fmt.Errorf("logger is required")
	}

	verifier := webhook.NewVerifier(deps.WhatsAppCfg.VerifyToken, deps.WhatsAppCfg.AppSecret, deps.Logger)
	handler := webhook.NewHandler(
		deps.Services.Token,
		deps.Services.Chain,
		deps.Repos.MessageLog,
		deps.Channel,
		deps.Logger,
	)

	return verifier, handler, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Services *ServiceBundle
	TokenCfg *config.TokenConfig
	Logger   *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if deps.TokenCfg == nil {
		return nil, fmt.Errorf("token config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	sweeper := worker.NewTokenSweeper(deps.Services.Token, deps.TokenCfg.SweepInterval, deps.Logger)
	manager.Register(sweeper)

	return manager, nil
}
