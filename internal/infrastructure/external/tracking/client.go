// Package tracking is the robot's HTTP client for the OneCost tracking
// backend.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/garyjia/onecost/pkg/retry"
	"go.uber.org/zap"
)

const pageSize = 100

// Config holds tracking backend client settings
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	Retry    retry.Policy
}

// Client talks to the tracking backend with one bearer token per run.
// Authenticate must be called before any other method.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger

	identity *port.Identity
}

// NewClient creates a new tracking backend client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = retry.Policy{MaxAttempts: 3, Interval: time.Second, Multiplier: 2, MaxInterval: 10 * time.Second}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// statusError is a non-2xx response
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tracking backend returned %d: %s", e.Code, e.Body)
}

func (e *statusError) Is(target error) bool {
	switch target {
	case port.ErrUnauthenticated:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case port.ErrNotFound:
		return e.Code == http.StatusNotFound
	case port.ErrConflict:
		return e.Code == http.StatusConflict
	}
	return false
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type countResponse struct {
	Count int `json:"count"`
}

// Authenticate logs in with the robot credentials and resolves the actor
// id used for confirmations.
func (c *Client) Authenticate(ctx context.Context) (*port.Identity, error) {
	form := url.Values{}
	form.Set("username", c.config.Username)
	form.Set("password", c.config.Password)

	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, "/login", nil, func() (io.Reader, string, error) {
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
	}, &tok)
	if err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", port.ErrUnauthenticated)
	}

	c.identity = &port.Identity{Token: tok.AccessToken}

	var me userResponse
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &me); err != nil {
		c.identity = nil
		return nil, fmt.Errorf("failed to resolve robot user: %w", err)
	}
	c.identity.ActorID = me.ID

	c.logger.Info("Authenticated against tracking backend",
		zap.String("username", me.Username),
		zap.Int64("actor_id", me.ID))
	return c.identity, nil
}

// ListPending pages through every record whose status_robo is not in
// excludeStatuses.
func (c *Client) ListPending(ctx context.Context, excludeStatuses []string) ([]*entity.Solicitacao, error) {
	var all []*entity.Solicitacao
	for skip := 0; ; skip += pageSize {
		q := url.Values{}
		q.Set("skip", strconv.Itoa(skip))
		q.Set("limit", strconv.Itoa(pageSize))
		if len(excludeStatuses) > 0 {
			q.Set("status_robo_ne", strings.Join(excludeStatuses, ","))
		}

		var page []*entity.Solicitacao
		if err := c.do(ctx, http.MethodGet, "/solicitacoes/", q, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list pending records: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}

	c.logger.Info("Fetched pending records", zap.Int("count", len(all)))
	return all, nil
}

// UpdateRecord sends only the fields set in update.
func (c *Client) UpdateRecord(ctx context.Context, id int64, update entity.SolicitacaoUpdate) (*entity.Solicitacao, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update: %w", err)
	}

	var updated entity.Solicitacao
	err = c.do(ctx, http.MethodPut, "/solicitacoes/"+strconv.FormatInt(id, 10), nil, func() (io.Reader, string, error) {
		return bytes.NewReader(body), "application/json", nil
	}, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to update record %d: %w", id, err)
	}

	c.logger.Debug("Record updated", zap.Int64("record_id", id), zap.ByteString("payload", body))
	return &updated, nil
}

// ResetErrorStatuses requires an admin robot account.
func (c *Client) ResetErrorStatuses(ctx context.Context) (int, error) {
	var resp countResponse
	if err := c.do(ctx, http.MethodPost, "/solicitacoes/reset-erros", nil, nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to reset error statuses: %w", err)
	}
	c.logger.Info("Error statuses reset", zap.Int("count", resp.Count))
	return resp.Count, nil
}

// do runs one request with retries on transport errors and 5xx answers.
// body is a factory so each attempt gets a fresh reader.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body func() (io.Reader, string, error), out interface{}) error {
	endpoint := c.config.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	res := retry.Do(ctx, c.config.Retry, func(ctx context.Context, attempt int) error {
		var reader io.Reader
		var contentType string
		if body != nil {
			var err error
			reader, contentType, err = body()
			if err != nil {
				return retry.Permanent(err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		if c.identity != nil {
			req.Header.Set("Authorization", "Bearer "+c.identity.Token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
			if resp.StatusCode >= 500 {
				return serr
			}
			return retry.Permanent(serr)
		}

		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("Tracking backend request failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	return res.Err
}

var _ port.TrackingClient = (*Client)(nil)
