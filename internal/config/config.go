// Package config loads the settings shared by the robot, the API server and
// the admin tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
	Portal   PortalConfig   `mapstructure:"portal"`
	Robot    RobotConfig    `mapstructure:"robot"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// ReaperConfig controls the release of abandoned in-progress records
type ReaperConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// PortalConfig holds browser and portal settings of the robot
type PortalConfig struct {
	CostsURL        string        `mapstructure:"costs_url"`
	ExtensionURL    string        `mapstructure:"extension_url"`
	CDPEndpoint     string        `mapstructure:"cdp_endpoint"`
	BrowserCommand  string        `mapstructure:"browser_command"`
	BrowserArgs     []string      `mapstructure:"browser_args"`
	ProfileDir      string        `mapstructure:"profile_dir"`
	DownloadDir     string        `mapstructure:"download_dir"`
	SSOSearchText   string        `mapstructure:"sso_search_text"`
	SSOMenuItem     string        `mapstructure:"sso_menu_item"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
	ElementTimeout  time.Duration `mapstructure:"element_timeout"`
	TableTimeout    time.Duration `mapstructure:"table_timeout"`
	LoginTimeout    time.Duration `mapstructure:"login_timeout"`
	NetworkIdle     time.Duration `mapstructure:"network_idle"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectInterval time.Duration `mapstructure:"connect_interval"`
	RenewPause      time.Duration `mapstructure:"renew_pause"`
}

// RobotConfig holds record processing settings
type RobotConfig struct {
	ArtifactsRoot      string   `mapstructure:"artifacts_root"`
	AmountTolerance    string   `mapstructure:"amount_tolerance"`
	ConclusionStatuses []string `mapstructure:"conclusion_statuses"`
	AwaitingStatuses   []string `mapstructure:"awaiting_statuses"`
	TerminalStatuses   []string `mapstructure:"terminal_statuses"`
}

// Tolerance parses AmountTolerance
func (r RobotConfig) Tolerance() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(r.AmountTolerance))
}

// TrackingConfig holds the tracking backend client settings
type TrackingConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := gotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configPath (YAML) and the environment. An empty path means
// defaults plus environment only. Validation is left to the caller since
// each binary needs a different subset.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("database.path", "data/onecost.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("auth.token_ttl", 8*time.Hour)

	v.SetDefault("reaper.interval", 5*time.Minute)
	v.SetDefault("reaper.stale_after", 30*time.Minute)

	v.SetDefault("portal.costs_url", "https://juridico.bb.com.br/paj/app/paj-custos/spas/custos/custos.app.html#/inicio/*")
	v.SetDefault("portal.extension_url", "chrome-extension://lnidijeaekolpfeckelhkomndglcglhh/index.html")
	v.SetDefault("portal.cdp_endpoint", "http://localhost:9222")
	v.SetDefault("portal.browser_command", "")
	v.SetDefault("portal.browser_args", []string{})
	v.SetDefault("portal.profile_dir", "")
	v.SetDefault("portal.download_dir", "")
	v.SetDefault("portal.sso_search_text", "banco do")
	v.SetDefault("portal.sso_menu_item", "Banco do Brasil - Intranet")
	v.SetDefault("portal.session_timeout", 30*time.Minute)
	v.SetDefault("portal.element_timeout", 20*time.Second)
	v.SetDefault("portal.table_timeout", 15*time.Second)
	v.SetDefault("portal.login_timeout", 90*time.Second)
	v.SetDefault("portal.network_idle", 45*time.Second)
	v.SetDefault("portal.download_timeout", 60*time.Second)
	v.SetDefault("portal.connect_attempts", 25)
	v.SetDefault("portal.connect_interval", 2*time.Second)
	v.SetDefault("portal.renew_pause", 5*time.Second)

	v.SetDefault("robot.artifacts_root", "comprovantes")
	v.SetDefault("robot.amount_tolerance", "0.001")
	v.SetDefault("robot.conclusion_statuses", []string{"efetivado/liquidado", "liquidado", "efetivado"})
	v.SetDefault("robot.awaiting_statuses", []string{"aguardando confirmação", "aguardando confirmacao"})
	v.SetDefault("robot.terminal_statuses", []string{"Finalizado com Sucesso", "Finalizado (Sem Comprovantes)", "Arquivado"})

	v.SetDefault("tracking.base_url", "http://localhost:8000")
	v.SetDefault("tracking.timeout", 30*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds secrets to their conventional variable names
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET", "AUTH_JWT_SECRET")
	_ = v.BindEnv("tracking.username", "ROBOT_USERNAME", "TRACKING_USERNAME")
	_ = v.BindEnv("tracking.password", "ROBOT_PASSWORD", "TRACKING_PASSWORD")
	_ = v.BindEnv("tracking.base_url", "API_BASE_URL", "TRACKING_BASE_URL")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
}

// ValidateRobot checks the settings the robot needs
func (c *Config) ValidateRobot() error {
	if c.Tracking.BaseURL == "" {
		return fmt.Errorf("tracking.base_url is required")
	}
	if c.Tracking.Username == "" || c.Tracking.Password == "" {
		return fmt.Errorf("tracking credentials are required (ROBOT_USERNAME, ROBOT_PASSWORD)")
	}
	if c.Portal.CostsURL == "" || c.Portal.ExtensionURL == "" || c.Portal.CDPEndpoint == "" {
		return fmt.Errorf("portal.costs_url, portal.extension_url and portal.cdp_endpoint are required")
	}
	if c.Portal.SessionTimeout <= 0 {
		return fmt.Errorf("portal.session_timeout must be positive")
	}
	if c.Portal.ConnectAttempts <= 0 {
		return fmt.Errorf("portal.connect_attempts must be positive")
	}
	if c.Robot.ArtifactsRoot == "" {
		return fmt.Errorf("robot.artifacts_root is required")
	}
	tol, err := c.Robot.Tolerance()
	if err != nil || !tol.IsPositive() {
		return fmt.Errorf("robot.amount_tolerance must be a positive decimal: %q", c.Robot.AmountTolerance)
	}
	if len(c.Robot.ConclusionStatuses) == 0 || len(c.Robot.AwaitingStatuses) == 0 {
		return fmt.Errorf("robot.conclusion_statuses and robot.awaiting_statuses must not be empty")
	}
	return c.validateLogger()
}

// ValidateServer checks the settings the API server needs
func (c *Config) ValidateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters (JWT_SECRET)")
	}
	if c.Reaper.Interval <= 0 || c.Reaper.StaleAfter <= 0 {
		return fmt.Errorf("reaper.interval and reaper.stale_after must be positive")
	}
	return c.validateLogger()
}

// ValidateDatabase checks the settings needed to open the store
func (c *Config) ValidateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

func (c *Config) validateLogger() error {
	switch c.Logger.Format {
	case "json", "console":
		return nil
	}
	return fmt.Errorf("invalid logger format: %s", c.Logger.Format)
}
