package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/onecost/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "onecost.db")
	cfg.Auth.JWTSecret = "test-secret-0123456789"
	cfg.Reaper.Interval = time.Hour
	return cfg
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Ready())
	assert.False(t, c.Health().Overall)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()))

	health := c.Health()
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)

	ctx := context.Background()
	_, err = c.Services().Auth.Register(ctx, "admin", "segredo", true)
	require.NoError(t, err)
	token, err := c.Services().Auth.Login(ctx, "admin", "segredo")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	w := httptest.NewRecorder()
	c.Server().Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""

	_, err := NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(nil, zap.NewNop())
	assert.Error(t, err)
}

func TestProvideRobot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Robot.ArtifactsRoot = t.TempDir()

	robot, err := ProvideRobot(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, robot.Service)
	assert.NoError(t, robot.Close())

	cfg.Robot.AmountTolerance = "x"
	_, err = ProvideRobot(cfg, zap.NewNop())
	assert.Error(t, err)

	cfg.Robot.AmountTolerance = "0"
	_, err = ProvideRobot(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "must be positive")
}
