// Package portal drives the bank's costs portal through the Chrome DevTools
// Protocol. The connector launches a dedicated browser, walks the SSO
// extension handshake and hands back a session positioned on the costs
// module.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/pkg/retry"
	"go.uber.org/zap"
)

// Connector implements port.PortalConnector with chromedp.
type Connector struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewConnector creates a new portal connector
func NewConnector(config Config, logger *zap.Logger) *Connector {
	return &Connector{
		config:     config,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Session is one authenticated browser session.
type Session struct {
	page      *Page
	startedAt time.Time
	process   *browserProcess
	cancels   []context.CancelFunc
	logger    *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) Page() port.PortalPage { return s.page }
func (s *Session) StartedAt() time.Time  { return s.startedAt }

// Close detaches the automation handles, newest first, then terminates the
// browser process.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		for i := len(s.cancels) - 1; i >= 0; i-- {
			s.cancels[i]()
		}
		if s.process != nil {
			s.closeErr = s.process.Close()
		}
		s.logger.Info("Portal session closed")
	})
	return s.closeErr
}

// Connect launches the browser, performs the SSO handshake and opens the
// costs module. Any failure tears down what was already started.
func (c *Connector) Connect(ctx context.Context) (sess port.PortalSession, err error) {
	proc, err := startBrowser(c.config.BrowserCommand, c.config.LaunchArgs(), c.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", port.ErrConnection, err)
	}

	s := &Session{process: proc, logger: c.logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	wsURL, err := c.debuggerURL(ctx, proc)
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), wsURL, chromedp.NoModifyURL)
	s.cancels = append(s.cancels, cancelAlloc)

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	s.cancels = append(s.cancels, cancelBrowser)

	if err := c.prepareBrowser(browserCtx); err != nil {
		return nil, err
	}

	portalID, err := c.login(ctx, browserCtx)
	if err != nil {
		return nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(browserCtx, chromedp.WithTargetID(portalID))
	s.cancels = append(s.cancels, cancelTab)

	page, err := c.openCosts(ctx, tabCtx)
	if err != nil {
		return nil, err
	}

	s.page = page
	s.startedAt = c.now()
	c.logger.Info("Portal session ready", zap.Time("started_at", s.startedAt))
	return s, nil
}

// debuggerURL waits for the debug endpoint with a bounded number of
// attempts and returns its browser websocket URL.
func (c *Connector) debuggerURL(ctx context.Context, proc *browserProcess) (string, error) {
	endpoint := strings.TrimRight(c.config.CDPEndpoint, "/") + "/json/version"
	policy := retry.Fixed(c.config.ConnectAttempts, c.config.ConnectInterval)
	policy.InitialDelay = c.config.ConnectInterval

	var wsURL string
	res := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		if !proc.Alive() {
			return retry.Permanent(fmt.Errorf("browser process exited"))
		}
		c.logger.Info("Connecting to browser debug endpoint", zap.Int("attempt", attempt), zap.String("endpoint", endpoint))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("debug endpoint returned %d", resp.StatusCode)
		}

		var info versionInfo
		if err := json.Unmarshal(body, &info); err != nil {
			return fmt.Errorf("failed to decode version info: %w", err)
		}
		if info.WebSocketDebuggerURL == "" {
			return fmt.Errorf("debug endpoint did not report a websocket URL")
		}
		wsURL = info.WebSocketDebuggerURL
		c.logger.Info("Connected to browser", zap.String("browser", info.Browser))
		return nil
	}, nil)
	if res.Err != nil {
		return "", fmt.Errorf("%w: %w", port.ErrConnection, res.Err)
	}
	return wsURL, nil
}

// prepareBrowser opens the session's anchor tab and closes the pages left
// over in the persistent profile. The connection is allocated here, on a
// context without deadline, so the bounded steps that follow share it.
func (c *Connector) prepareBrowser(browserCtx context.Context) error {
	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("%w: %w", port.ErrConnection, err)
	}
	cc := chromedp.FromContext(browserCtx)

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		c.logger.Warn("Failed to list open pages", zap.Error(err))
		return nil
	}
	execCtx := cdp.WithExecutor(browserCtx, cc.Browser)
	closed := 0
	for _, id := range stalePages(targets, cc.Target.TargetID) {
		if err := target.CloseTarget(id).Do(execCtx); err != nil {
			c.logger.Warn("Failed to close stale page", zap.String("target_id", string(id)), zap.Error(err))
			continue
		}
		closed++
	}
	if closed > 0 {
		c.logger.Info("Closed stale pages", zap.Int("count", closed))
	}
	return nil
}

// stalePages returns the page targets other than keep.
func stalePages(targets []*target.Info, keep target.ID) []target.ID {
	var ids []target.ID
	for _, t := range targets {
		if t == nil || t.Type != "page" || t.TargetID == keep {
			continue
		}
		ids = append(ids, t.TargetID)
	}
	return ids
}

// login walks the SSO extension and returns the target id of the portal tab
// the extension opens.
func (c *Connector) login(ctx context.Context, browserCtx context.Context) (target.ID, error) {
	extCtx, cancelExt := chromedp.NewContext(browserCtx)
	defer cancelExt()

	c.logger.Info("Opening SSO extension", zap.String("url", c.config.ExtensionURL))
	searchSel := fmt.Sprintf("input[placeholder=%s]", jsString(ssoPlaceholder))

	err := runBounded(ctx, extCtx, "login", c.config.ElementTimeout,
		chromedp.Navigate(c.config.ExtensionURL),
		chromedp.WaitVisible(searchSel, chromedp.ByQuery),
		chromedp.SendKeys(searchSel, c.config.SSOSearchText, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		clickScript(scriptClickByText(ssoMenuItem, c.config.SSOMenuItem), "SSO menu item"),
	)
	if err != nil {
		return "", err
	}

	var extID target.ID
	if t := chromedp.FromContext(extCtx).Target; t != nil {
		extID = t.TargetID
	}

	waitCtx, cancelWait := context.WithTimeout(extCtx, c.config.LoginTimeout)
	defer cancelWait()
	opened := chromedp.WaitNewTarget(waitCtx, func(info *target.Info) bool {
		return info.Type == "page" && info.TargetID != extID
	})

	c.logger.Info("Clicking access button, waiting for portal tab")
	if err := runBounded(ctx, extCtx, "login", c.config.ElementTimeout,
		clickScript(scriptClickByText("button", labelAccess), "access button"),
	); err != nil {
		return "", err
	}

	select {
	case id, ok := <-opened:
		if !ok {
			return "", port.UITimeout("login", waitCtx.Err())
		}
		c.logger.Info("Portal tab opened", zap.String("target_id", string(id)))
		return id, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", port.UITimeout("login", waitCtx.Err())
	}
}

// openCosts waits for the portal home, then navigates to the costs module
// and enables the network and download trackers on the tab.
func (c *Connector) openCosts(ctx context.Context, tabCtx context.Context) (*Page, error) {
	tracker := newNetworkTracker()
	tracker.listen(tabCtx)

	dir := c.config.DownloadDir
	if dir == "" {
		var err error
		if dir, err = os.MkdirTemp("", "onecost-downloads-"); err != nil {
			return nil, fmt.Errorf("failed to create download dir: %w", err)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	downloads := newDownloadTracker(dir)
	downloads.listen(tabCtx)

	c.logger.Info("Waiting for portal home marker")
	if err := runBounded(ctx, tabCtx, "login", c.config.LoginTimeout,
		network.Enable(),
		chromedp.WaitVisible(selHomeMarker, chromedp.ByQuery),
	); err != nil {
		return nil, err
	}

	page := newPage(c.config, tabCtx, tracker, downloads, c.logger)
	if err := runBounded(ctx, tabCtx, "login", c.config.NetworkIdle, page.waitIdle()); err != nil {
		c.logger.Warn("Portal home did not settle", zap.Error(err))
	}

	c.logger.Info("Opening costs module", zap.String("url", c.config.CostsURL))
	if err := runBounded(ctx, tabCtx, "navegação", c.config.LoginTimeout,
		downloads.enable(),
		chromedp.Navigate(c.config.CostsURL),
		page.waitIdle(),
		chromedp.WaitVisible(selSearchInput, chromedp.ByQuery),
	); err != nil {
		return nil, err
	}
	return page, nil
}

var _ port.PortalConnector = (*Connector)(nil)
