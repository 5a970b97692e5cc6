package portal

import (
	"net/url"
	"time"
)

// Config holds browser and portal navigation settings
type Config struct {
	CostsURL     string
	ExtensionURL string

	// CDPEndpoint is the http://host:port of the debug-protocol endpoint.
	CDPEndpoint string

	// BrowserCommand launches the dedicated browser. When empty the robot
	// attaches to a browser already listening on CDPEndpoint.
	BrowserCommand string
	// BrowserArgs replaces the derived launch flags when set.
	BrowserArgs []string
	ProfileDir  string
	DownloadDir string

	SSOSearchText string
	SSOMenuItem   string

	ElementTimeout  time.Duration
	TableTimeout    time.Duration
	LoginTimeout    time.Duration
	NetworkIdle     time.Duration
	DownloadTimeout time.Duration

	ConnectAttempts int
	ConnectInterval time.Duration
}

// DefaultConfig returns default portal configuration
func DefaultConfig() Config {
	return Config{
		CostsURL:        "https://juridico.bb.com.br/paj/app/paj-custos/spas/custos/custos.app.html#/inicio/*",
		ExtensionURL:    "chrome-extension://lnidijeaekolpfeckelhkomndglcglhh/index.html",
		CDPEndpoint:     "http://localhost:9222",
		SSOSearchText:   "banco do",
		SSOMenuItem:     "Banco do Brasil - Intranet",
		ElementTimeout:  20 * time.Second,
		TableTimeout:    15 * time.Second,
		LoginTimeout:    90 * time.Second,
		NetworkIdle:     45 * time.Second,
		DownloadTimeout: 60 * time.Second,
		ConnectAttempts: 25,
		ConnectInterval: 2 * time.Second,
	}
}

// LaunchArgs returns the flags passed to BrowserCommand. Unless BrowserArgs
// overrides them, the debug port is taken from CDPEndpoint and the profile
// from ProfileDir.
func (c Config) LaunchArgs() []string {
	if len(c.BrowserArgs) > 0 {
		return c.BrowserArgs
	}
	port := "9222"
	if u, err := url.Parse(c.CDPEndpoint); err == nil && u.Port() != "" {
		port = u.Port()
	}
	args := []string{
		"--remote-debugging-port=" + port,
		"--no-first-run",
		"--no-default-browser-check",
	}
	if c.ProfileDir != "" {
		args = append(args, "--user-data-dir="+c.ProfileDir)
	}
	return args
}
