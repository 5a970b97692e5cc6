// Package container wires the backend and the robot from configuration.
package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/application/service"
	"github.com/garyjia/onecost/internal/application/session"
	"github.com/garyjia/onecost/internal/config"
	"github.com/garyjia/onecost/internal/infrastructure/external/portal"
	"github.com/garyjia/onecost/internal/infrastructure/external/tracking"
	"github.com/garyjia/onecost/internal/infrastructure/persistence/repository"
	"github.com/garyjia/onecost/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/onecost/internal/infrastructure/storage"
	"github.com/garyjia/onecost/internal/infrastructure/worker"
	"github.com/garyjia/onecost/pkg/database"
	"github.com/garyjia/onecost/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories.
type RepositoryBundle struct {
	Solicitacao port.SolicitacaoRepository
	User        port.UserRepository
}

// ServiceBundle groups the backend's application services.
type ServiceBundle struct {
	Auth        service.AuthService
	Solicitacao service.SolicitacaoService
}

// ProvideDatabase opens the store and applies pending migrations.
func ProvideDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on one connection pool.
func ProvideRepositories(db *database.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Solicitacao: repository.NewSolicitacaoRepository(db.DB, logger),
		User:        repository.NewUserRepository(db.DB, logger),
	}
}

// ProvideServices creates the backend services.
func ProvideServices(cfg config.AuthConfig, repos *RepositoryBundle, tx port.TransactionManager, logger *zap.Logger) *ServiceBundle {
	adapter := utils.NewSugaredAdapter(logger)
	return &ServiceBundle{
		Auth: service.NewAuthService(service.AuthConfig{
			Secret:   cfg.JWTSecret,
			TokenTTL: cfg.TokenTTL,
		}, repos.User, adapter),
		Solicitacao: service.NewSolicitacaoService(repos.Solicitacao, tx, adapter),
	}
}

// ProvideWorkers registers the backend's background jobs.
func ProvideWorkers(cfg config.ReaperConfig, services *ServiceBundle, logger *zap.Logger) *worker.Manager {
	m := worker.NewManager(logger)
	m.Register(worker.NewStaleReaper(worker.StaleReaperConfig{
		Interval:   cfg.Interval,
		StaleAfter: cfg.StaleAfter,
	}, services.Solicitacao, logger))
	return m
}

// ProvidePortalConfig maps the portal settings onto the adapter's config.
func ProvidePortalConfig(cfg config.PortalConfig) portal.Config {
	return portal.Config{
		CostsURL:        cfg.CostsURL,
		ExtensionURL:    cfg.ExtensionURL,
		CDPEndpoint:     cfg.CDPEndpoint,
		BrowserCommand:  cfg.BrowserCommand,
		BrowserArgs:     cfg.BrowserArgs,
		ProfileDir:      cfg.ProfileDir,
		DownloadDir:     cfg.DownloadDir,
		SSOSearchText:   cfg.SSOSearchText,
		SSOMenuItem:     cfg.SSOMenuItem,
		ElementTimeout:  cfg.ElementTimeout,
		TableTimeout:    cfg.TableTimeout,
		LoginTimeout:    cfg.LoginTimeout,
		NetworkIdle:     cfg.NetworkIdle,
		DownloadTimeout: cfg.DownloadTimeout,
		ConnectAttempts: cfg.ConnectAttempts,
		ConnectInterval: cfg.ConnectInterval,
	}
}

// Robot bundles the robot's components. Close releases the browser.
type Robot struct {
	Service  *service.RobotService
	Tracking *tracking.Client
	Sessions *session.Controller
}

// Close tears down any browser session still open
func (r *Robot) Close() error {
	return r.Sessions.Close()
}

// ProvideRobot wires the portal adapter, artifact storage, tracking client
// and the processing services.
func ProvideRobot(cfg *config.Config, logger *zap.Logger) (*Robot, error) {
	tolerance, err := cfg.Robot.Tolerance()
	if err != nil {
		return nil, fmt.Errorf("invalid amount tolerance: %w", err)
	}
	if !tolerance.IsPositive() {
		return nil, fmt.Errorf("amount tolerance must be positive, got %s", tolerance)
	}

	custasCfg := service.DefaultCustasConfig()
	custasCfg.AmountTolerance = tolerance
	if len(cfg.Robot.ConclusionStatuses) > 0 {
		custasCfg.ConclusionStatuses = cfg.Robot.ConclusionStatuses
	}
	if len(cfg.Robot.AwaitingStatuses) > 0 {
		custasCfg.AwaitingStatuses = cfg.Robot.AwaitingStatuses
	}

	store := storage.NewLocalArtifactStore(cfg.Robot.ArtifactsRoot, logger)
	custas := service.NewCustasService(custasCfg, store, storage.NewPDFInspector(logger), logger)

	sessionCfg := session.DefaultConfig()
	sessionCfg.Timeout = cfg.Portal.SessionTimeout
	sessionCfg.RenewPause = cfg.Portal.RenewPause
	sessions := session.NewController(sessionCfg, portal.NewConnector(ProvidePortalConfig(cfg.Portal), logger), logger)

	client := tracking.NewClient(tracking.Config{
		BaseURL:  cfg.Tracking.BaseURL,
		Username: cfg.Tracking.Username,
		Password: cfg.Tracking.Password,
		Timeout:  cfg.Tracking.Timeout,
	}, logger)

	return &Robot{
		Service:  service.NewRobotService(client, sessions, custas, cfg.Robot.TerminalStatuses, logger),
		Tracking: client,
		Sessions: sessions,
	}, nil
}
