package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Portal.SessionTimeout)
	assert.Equal(t, 25, cfg.Portal.ConnectAttempts)
	assert.Equal(t, "http://localhost:9222", cfg.Portal.CDPEndpoint)
	assert.Equal(t, []string{"efetivado/liquidado", "liquidado", "efetivado"}, cfg.Robot.ConclusionStatuses)

	tol, err := cfg.Robot.Tolerance()
	require.NoError(t, err)
	assert.True(t, tol.Equal(decimal.RequireFromString("0.001")))
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
portal:
  session_timeout: 10m
  browser_command: chromium
robot:
  amount_tolerance: "0.01"
  awaiting_statuses: ["pendente de aprovação"]
tracking:
  base_url: http://from-file:8000
`), 0o644))

	t.Setenv("ROBOT_USERNAME", "robo")
	t.Setenv("ROBOT_PASSWORD", "segredo")
	t.Setenv("TRACKING_BASE_URL", "http://from-env:8000")
	t.Setenv("PORTAL_RENEW_PAUSE", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Portal.SessionTimeout)
	assert.Equal(t, "chromium", cfg.Portal.BrowserCommand)
	assert.Equal(t, time.Second, cfg.Portal.RenewPause)
	assert.Equal(t, []string{"pendente de aprovação"}, cfg.Robot.AwaitingStatuses)
	assert.Equal(t, "robo", cfg.Tracking.Username)
	assert.Equal(t, "http://from-env:8000", cfg.Tracking.BaseURL)
	assert.NoError(t, cfg.ValidateRobot())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRobot(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateRobot(), "credentials missing")

	cfg.Tracking.Username, cfg.Tracking.Password = "robo", "segredo"
	require.NoError(t, cfg.ValidateRobot())

	cfg.Robot.AmountTolerance = "-1"
	assert.Error(t, cfg.ValidateRobot())
	cfg.Robot.AmountTolerance = "abc"
	assert.Error(t, cfg.ValidateRobot())
	// amounts are matched with a strict difference below the tolerance
	cfg.Robot.AmountTolerance = "0"
	assert.Error(t, cfg.ValidateRobot())
}

func TestValidateServer(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateServer(), "secret missing")

	cfg.Auth.JWTSecret = "0123456789abcdef"
	require.NoError(t, cfg.ValidateServer())

	cfg.Server.Port = 0
	assert.Error(t, cfg.ValidateServer())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ONECOST_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("ONECOST_TEST_DOTENV", "")
	os.Unsetenv("ONECOST_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("ONECOST_TEST_DOTENV"))
}
