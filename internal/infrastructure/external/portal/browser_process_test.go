package portal

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBrowserProcess_AttachedIsNoop(t *testing.T) {
	p, err := startBrowser("", []string{"--ignored"}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, p.Alive())
	assert.NoError(t, p.Close())
	assert.True(t, p.Alive())
}

func TestBrowserProcess_CloseTerminates(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on the sleep(1) utility")
	}
	p, err := startBrowser("sleep", []string{"30"}, zap.NewNop())
	require.NoError(t, err)
	require.True(t, p.Alive())

	start := time.Now()
	require.NoError(t, p.Close())

	assert.False(t, p.Alive())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NoError(t, p.Close())
}

func TestBrowserProcess_StartFailure(t *testing.T) {
	_, err := startBrowser("/nonexistent/onecost-browser", nil, zap.NewNop())
	assert.Error(t, err)
}
