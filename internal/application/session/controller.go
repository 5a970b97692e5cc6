// Package session owns the single authenticated portal session of a robot
// run: it establishes it, renews it when it gets old or stops answering,
// and tears it down at the end of the run.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"go.uber.org/zap"
)

// ErrNoSession is returned when EnsureFresh is called before Establish.
var ErrNoSession = errors.New("no portal session established")

// Config holds session controller settings
type Config struct {
	// Timeout is the maximum session age before a proactive renewal.
	Timeout time.Duration
	// ProbeTimeout bounds the liveness probe.
	ProbeTimeout time.Duration
	// RenewPause is waited between teardown and relaunch.
	RenewPause time.Duration
}

// DefaultConfig returns default controller configuration
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Minute,
		ProbeTimeout: 5 * time.Second,
		RenewPause:   3 * time.Second,
	}
}

// Controller keeps exactly one working session for the run. It is not safe
// for concurrent use; the run drives it from a single goroutine.
type Controller struct {
	config    Config
	connector port.PortalConnector
	logger    *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	current  port.PortalSession
	renewals int
}

// NewController creates a new session controller
func NewController(config Config, connector port.PortalConnector, logger *zap.Logger) *Controller {
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	return &Controller{
		config:    config,
		connector: connector,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// ShouldRenew decides whether a session must be replaced. The probe is only
// consulted while the session is younger than timeout.
func ShouldRenew(elapsed, timeout time.Duration, probe func() error) (bool, string) {
	if elapsed >= timeout {
		return true, "timeout"
	}
	if err := probe(); err != nil {
		return true, "liveness probe failed: " + err.Error()
	}
	return false, ""
}

// Establish creates the run's first session. Failures here are run-fatal
// and are returned as-is (ErrConnection, ErrUITimeout, ...).
func (c *Controller) Establish(ctx context.Context) (port.PortalPage, error) {
	if c.current != nil {
		return c.current.Page(), nil
	}

	c.logger.Info("Establishing portal session")
	sess, err := c.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to establish portal session: %w", err)
	}
	c.current = sess

	c.logger.Info("Portal session established", zap.Time("started_at", sess.StartedAt()))
	return sess.Page(), nil
}

// EnsureFresh returns a page no older than the configured timeout.
// When the current session is too old or fails the liveness probe it is
// torn down and replaced; a failed replacement yields *port.SessionExpiredError.
func (c *Controller) EnsureFresh(ctx context.Context) (port.PortalPage, error) {
	if c.current == nil {
		return nil, ErrNoSession
	}

	elapsed := c.now().Sub(c.current.StartedAt())
	renew, reason := ShouldRenew(elapsed, c.config.Timeout, func() error {
		probeCtx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
		defer cancel()
		_, err := c.current.Page().Title(probeCtx)
		return err
	})
	if !renew {
		c.logger.Debug("Portal session still valid",
			zap.Duration("elapsed", elapsed),
			zap.Duration("timeout", c.config.Timeout))
		return c.current.Page(), nil
	}

	c.logger.Warn("Renewing portal session",
		zap.String("reason", reason),
		zap.Duration("elapsed", elapsed))

	c.teardown()

	if err := c.sleep(ctx, c.config.RenewPause); err != nil {
		return nil, &port.SessionExpiredError{Age: elapsed, Cause: err}
	}

	sess, err := c.connector.Connect(ctx)
	if err != nil {
		c.logger.Error("Portal session renewal failed", zap.Error(err))
		return nil, &port.SessionExpiredError{Age: elapsed, Cause: err}
	}

	c.current = sess
	c.renewals++
	c.logger.Info("Portal session renewed", zap.Int("renewals", c.renewals))
	return sess.Page(), nil
}

// Renewals returns how many times the session was replaced.
func (c *Controller) Renewals() int {
	return c.renewals
}

// Close tears down the current session, if any.
func (c *Controller) Close() error {
	if c.current == nil {
		return nil
	}
	err := c.current.Close()
	c.current = nil
	if err != nil {
		c.logger.Warn("Error closing portal session", zap.Error(err))
	}
	return err
}

func (c *Controller) teardown() {
	if err := c.current.Close(); err != nil {
		c.logger.Warn("Non-critical error closing expired session", zap.Error(err))
	}
	c.current = nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
